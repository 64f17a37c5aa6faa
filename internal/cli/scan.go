package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/hivecarve/pkg/carve"
	"github.com/joshuapare/hivecarve/pkg/types"
)

var (
	scanOut        string
	scanDeep       bool
	scanDecompress bool
	scanRebuild    bool
	scanVolumes    []int64
)

func init() {
	cmd := newScanCmd()
	cmd.Flags().StringVarP(&scanOut, "out", "o", "", "Directory to write carved artifacts into (required)")
	cmd.Flags().BoolVar(&scanDeep, "deep", false, "Advance one page at a time so overlapping candidates are all visited")
	cmd.Flags().BoolVar(&scanDecompress, "decompress", false, "Probe signature misses for LZNT1-compressed hive material")
	cmd.Flags().BoolVar(&scanRebuild, "rebuild", false, "Stitch fragmented hives from the pool after the carve pass")
	cmd.Flags().Int64SliceVar(&scanVolumes, "ntfs-volume", nil, "Byte offset of an NTFS volume in the image (repeatable)")
	rootCmd.AddCommand(cmd)
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Carve registry hives out of a raw image",
		Long: `The scan command sweeps an image for registry hive material and carves
every validated hit into the output directory: intact and truncated hives,
orphaned bin fragments, and (with --decompress) LZNT1-compressed hive
material. With --rebuild the fragment pool is stitched into whole hives
after the pass; with --ntfs-volume the volume's file table drives an exact
reassembly instead.

Example:
  hivecarve scan disk.img -o carved/
  hivecarve scan memory.dmp -o carved/ --deep --decompress
  hivecarve scan disk.img -o carved/ --rebuild --ntfs-volume 1048576 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(args)
		},
	}
	return cmd
}

func runScan(args []string) error {
	imagePath := args[0]

	if scanOut == "" {
		return fmt.Errorf("missing output directory: use -o DIR")
	}
	if err := os.MkdirAll(scanOut, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	printVerbose("Opening image: %s\n", imagePath)

	im, err := carve.Open(imagePath)
	if err != nil {
		return err
	}
	defer im.Close()

	logger.Info("scan started",
		"image", imagePath, "size", im.Size(),
		"deep", scanDeep, "decompress", scanDecompress)

	e := &emitter{im: im, dir: scanOut}
	opts := types.ScanOptions{
		Deep:       scanDeep,
		Decompress: scanDecompress,
		Progress: func(read, total int64) {
			logger.Debug("scanning", "read", read, "total", total)
		},
	}

	var results []types.Result
	s := im.Scan(opts)
	for s.Next() {
		res := s.Result()
		results = append(results, res)
		if err := e.result(res); err != nil {
			return err
		}
	}
	if err := s.Err(); err != nil {
		return err
	}

	if scanRebuild || len(scanVolumes) > 0 {
		if err := runReconstruction(im, e, results, scanVolumes, scanRebuild); err != nil {
			return err
		}
	}

	logger.Info("scan finished", "artifacts", e.written, "bytes", e.bytes)
	if !jsonOut {
		printInfo("\n%d artifact(s), %d bytes written to %s\n", e.written, e.bytes, scanOut)
	}
	return nil
}
