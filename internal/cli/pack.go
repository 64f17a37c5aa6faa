package cli

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"
	"github.com/spf13/cobra"
)

var (
	packOut       string
	packRecipient string
)

func init() {
	cmd := newPackCmd()
	cmd.Flags().StringVarP(&packOut, "out", "o", "", "Archive file to create (required)")
	cmd.Flags().StringVar(&packRecipient, "recipient", "", "age X25519 public key to encrypt the archive to")
	rootCmd.AddCommand(cmd)
}

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack <dir>",
		Short: "Bundle an output directory into an evidence archive",
		Long: `The pack command bundles a directory of carved artifacts into a tar.gz
archive for transport, optionally encrypted to an age X25519 recipient so
the evidence is unreadable without the matching identity. An existing
archive is never overwritten.

Example:
  hivecarve pack carved/ -o case-0142.tar.gz
  hivecarve pack carved/ -o case-0142.tar.gz.age --recipient age1ql3z7hjy54pw3hyww5ayyfg7zqgvc7w3j2elw8zmrj2kg5sfn9aqmcac8p`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPack(args)
		},
	}
	return cmd
}

// packResult summarizes a finished archive.
type packResult struct {
	Path      string `json:"path"`
	Encrypted bool   `json:"encrypted"`
	Files     int    `json:"files"`
	Bytes     int64  `json:"bytes"`
}

func runPack(args []string) error {
	srcDir := args[0]

	if packOut == "" {
		return fmt.Errorf("missing archive path: use -o FILE")
	}

	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", srcDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", srcDir)
	}

	var recipient age.Recipient
	if packRecipient != "" {
		r, err := age.ParseX25519Recipient(packRecipient)
		if err != nil {
			return fmt.Errorf("parse recipient: %w", err)
		}
		recipient = r
	}

	printVerbose("Packing %s\n", srcDir)

	res, err := packDir(srcDir, packOut, recipient)
	if err != nil {
		return err
	}

	logger.Info("packed", "path", res.Path, "files", res.Files, "bytes", res.Bytes, "encrypted", res.Encrypted)
	if jsonOut {
		return printJSON(res)
	}
	printInfo("Packed %d file(s) into %s (%d bytes)\n", res.Files, res.Path, res.Bytes)
	if res.Encrypted {
		printInfo("Archive is encrypted; keep the matching age identity safe.\n")
	}
	return nil
}

// packDir writes the tree rooted at srcDir into a fresh archive at outPath:
// tar inside gzip, inside an age stream when a recipient is given. A partial
// archive is removed on error; an existing one is never touched.
func packDir(srcDir, outPath string, recipient age.Recipient) (packResult, error) {
	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return packResult{}, fmt.Errorf("refusing to overwrite %s", outPath)
		}
		return packResult{}, fmt.Errorf("create archive: %w", err)
	}

	done := false
	defer func() {
		_ = out.Close()
		if !done {
			_ = os.Remove(outPath)
		}
	}()

	counter := &countingWriter{w: out}

	var sink io.Writer = counter
	var enc io.WriteCloser
	if recipient != nil {
		enc, err = age.Encrypt(counter, recipient)
		if err != nil {
			return packResult{}, fmt.Errorf("start encryption: %w", err)
		}
		sink = enc
	}

	gz := gzip.NewWriter(sink)
	tw := tar.NewWriter(gz)

	files := 0
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		hdr := &tar.Header{
			Name:    filepath.ToSlash(rel),
			Mode:    int64(fi.Mode().Perm()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(tw, f); err != nil {
			return err
		}
		files++
		return nil
	})
	if walkErr != nil {
		return packResult{}, fmt.Errorf("pack %s: %w", srcDir, walkErr)
	}

	// Close order matters: tar flushes into gzip, gzip into the cipher.
	if err := tw.Close(); err != nil {
		return packResult{}, fmt.Errorf("finish tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return packResult{}, fmt.Errorf("finish gzip: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return packResult{}, fmt.Errorf("finish encryption: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		return packResult{}, fmt.Errorf("close archive: %w", err)
	}

	done = true
	return packResult{Path: outPath, Encrypted: recipient != nil, Files: files, Bytes: counter.n}, nil
}

// countingWriter tallies bytes on their way to the archive file.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
