package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joshuapare/hivecarve/internal/format"
	"github.com/joshuapare/hivecarve/internal/writer"
	"github.com/joshuapare/hivecarve/pkg/carve"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// record is one row of the report stream: a carved or reconstructed artifact
// and where it was persisted.
type record struct {
	Kind          string `json:"kind"`
	Offset        int64  `json:"offset"`
	Size          int64  `json:"size"`
	LogicalOffset *int64 `json:"logicalOffset,omitempty"`
	Truncated     bool   `json:"truncated"`
	FileName      string `json:"fileName,omitempty"`
	Role          string `json:"role,omitempty"`
	LastWrite     string `json:"lastWrite,omitempty"`
	Tier          string `json:"tier,omitempty"`
	Holes         []hole `json:"holes,omitempty"`
	Path          string `json:"path"`
}

type hole struct {
	Offset int64 `json:"offset"`
	Length int64 `json:"length"`
}

// lastWriteOf pulls the header timestamp out of a carved hive. Unparseable
// or out-of-range stamps yield the empty string rather than a bogus date.
func lastWriteOf(data []byte) string {
	env, err := format.ParseEnvelope(data)
	if err != nil {
		return ""
	}
	ts := format.FiletimeToTime(env.LastWriteRaw)
	if ts.IsZero() {
		return ""
	}
	return ts.Format(time.RFC3339)
}

// emitter persists artifacts into the output directory and reports one
// record per artifact on stdout.
type emitter struct {
	im  *carve.Image
	dir string

	written int
	bytes   int64
}

// result persists one carve pass hit. Plain results are re-read from the
// source; compressed ones already carry their decoded bytes.
func (e *emitter) result(res types.Result) error {
	switch r := res.(type) {
	case types.CarveResult:
		data, err := e.im.Extract(r.Offset, r.Size)
		if err != nil {
			return err
		}
		role := types.ClassifyFileName(r.FileName)
		rec := record{
			Kind:      "hive",
			Offset:    r.Offset,
			Size:      r.Size,
			Truncated: r.Truncated,
			FileName:  r.FileName,
			Role:      role.String(),
			LastWrite: lastWriteOf(data),
		}
		return e.write(rec, fmt.Sprintf("%010x_%s.hive", r.Offset, role), data)
	case types.FragmentCandidate:
		data, err := e.im.Extract(r.Offset, r.Size)
		if err != nil {
			return err
		}
		lo := r.LogicalOffset
		rec := record{
			Kind:          "fragment",
			Offset:        r.Offset,
			Size:          r.Size,
			LogicalOffset: &lo,
		}
		return e.write(rec, fmt.Sprintf("%010x.frag", r.Offset), data)
	case types.CompressedResult:
		role := types.ClassifyFileName(r.FileName)
		rec := record{
			Kind:      "compressed-hive",
			Offset:    r.Offset,
			Size:      int64(len(r.Data)),
			Truncated: r.Truncated,
			FileName:  r.FileName,
			Role:      role.String(),
			LastWrite: lastWriteOf(r.Data),
		}
		return e.write(rec, fmt.Sprintf("%010x_%s.lznt1.hive", r.Offset, role), r.Data)
	case types.CompressedFragment:
		lo := r.LogicalOffset
		rec := record{
			Kind:          "compressed-fragment",
			Offset:        r.Offset,
			Size:          int64(len(r.Data)),
			LogicalOffset: &lo,
		}
		return e.write(rec, fmt.Sprintf("%010x.lznt1.frag", r.Offset), r.Data)
	}
	return nil
}

// reconstructed persists one reassembled hive. kind names the pass that
// produced it ("stitched" or "ntfs").
func (e *emitter) reconstructed(rec types.Reconstructed, kind string) error {
	role := types.ClassifyFileName(rec.Source.FileName)
	row := record{
		Kind:      kind,
		Offset:    rec.Source.Offset,
		Size:      int64(len(rec.Data)),
		FileName:  rec.Source.FileName,
		Role:      role.String(),
		LastWrite: lastWriteOf(rec.Data),
		Tier:      rec.Tier.String(),
	}
	for _, h := range rec.Holes {
		row.Holes = append(row.Holes, hole{Offset: h.Offset, Length: h.Length})
	}
	return e.write(row, fmt.Sprintf("%010x_%s.rebuilt.hive", rec.Source.Offset, role), rec.Data)
}

// write persists data under name in the output directory, then reports the
// finished record.
func (e *emitter) write(rec record, name string, data []byte) error {
	path := filepath.Join(e.dir, name)
	w := &writer.FileWriter{Path: path}
	if err := w.WriteHive(data); err != nil {
		return fmt.Errorf("persist %s: %w", name, err)
	}
	e.written++
	e.bytes += int64(len(data))
	rec.Path = path
	return e.report(rec)
}

// report prints the record as a JSON line or an aligned text row.
func (e *emitter) report(rec record) error {
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(rec)
	}
	status := paint(ansiGreen, "ok")
	switch {
	case rec.Tier == types.TierChecksummed.String():
		status = paint(ansiGreen, rec.Tier)
	case rec.Tier != "":
		status = rec.Tier
		if len(rec.Holes) > 0 {
			status = fmt.Sprintf("%s, %d hole(s)", rec.Tier, len(rec.Holes))
		}
		status = paint(ansiYellow, status)
	case rec.Truncated:
		status = paint(ansiYellow, "truncated")
	}
	printInfo("  %#012x  %-19s %10d B  %-11s %s\n",
		rec.Offset, rec.Kind, rec.Size, status, filepath.Base(rec.Path))
	return nil
}

// runReconstruction drives the reconstruction passes over a finished carve.
// The NTFS pass runs first when volume offsets are given; the heuristic pass
// then serves only the anchors no volume accounted for, so an exact
// reassembly is never shadowed by a guessed one.
func runReconstruction(im *carve.Image, e *emitter, results []types.Result, volumes []int64, heuristic bool) error {
	served := make(map[int64]bool)

	if len(volumes) > 0 {
		vr := im.NewVolumeRebuilder(types.RebuildOptions{})
		vr.SetFragments(results)
		if err := vr.FindDataRuns(volumes...); err != nil {
			return err
		}
		for _, off := range volumes {
			it := vr.Volume(off)
			for it.Next() {
				rec := it.Reconstruction()
				served[rec.Source.Offset] = true
				logger.Debug("reassembled from volume", "volume", off, "anchor", rec.Source.Offset, "tier", rec.Tier.String())
				if err := e.reconstructed(rec, "ntfs"); err != nil {
					return err
				}
			}
			if err := it.Err(); err != nil {
				return err
			}
		}
	}

	if heuristic {
		rb := im.NewRebuilder(types.RebuildOptions{})
		rb.SetFragments(results)
		it := rb.Fragmented()
		for it.Next() {
			rec := it.Reconstruction()
			if served[rec.Source.Offset] {
				continue
			}
			logger.Debug("stitched from pool", "anchor", rec.Source.Offset, "tier", rec.Tier.String(), "holes", len(rec.Holes))
			if err := e.reconstructed(rec, "stitched"); err != nil {
				return err
			}
		}
		if err := it.Err(); err != nil {
			return err
		}
	}

	return nil
}
