package ntfs

import (
	"github.com/joshuapare/hivecarve/internal/buf"
	"github.com/joshuapare/hivecarve/internal/source"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// Volume is one NTFS filesystem located inside a larger stream. It holds the
// decoded geometry and the physical extents of the file table, resolved once
// at open time through the table's own record zero.
type Volume struct {
	r       source.Reader
	base    int64
	boot    BootSector
	mft     []extent
	records int64
}

// extent is one physical byte span of the file table. off is -1 for sparse
// stretches, which read as zeros.
type extent struct {
	off int64
	n   int64
}

// OpenVolume validates the boot sector at base and locates the file table.
// base must already be known to be sector-aligned; offset policy belongs to
// the caller.
func OpenVolume(r source.Reader, base int64) (*Volume, error) {
	sector, err := readFull(r, base, BootSectorLen)
	if err != nil {
		return nil, ErrBadBootSector
	}
	boot, err := ParseBootSector(sector)
	if err != nil {
		return nil, err
	}

	cs := boot.ClusterSize()
	mftOff, ok := clusterBytes(boot.MFTCluster, cs)
	if !ok {
		return nil, ErrNoMFT
	}
	recBuf, err := readFull(r, base+mftOff, boot.RecordSize)
	if err != nil {
		return nil, ErrNoMFT
	}
	rec, err := ParseRecord(recBuf, boot.BytesPerSector)
	if err != nil || len(rec.DataRuns) == 0 {
		return nil, ErrNoMFT
	}

	v := &Volume{r: r, base: base, boot: boot}
	var allocated int64
	for _, run := range rec.DataRuns {
		n, ok := clusterBytes(run.Count, cs)
		if !ok {
			return nil, ErrNoMFT
		}
		off := int64(-1)
		if run.Cluster >= 0 {
			if off, ok = clusterBytes(run.Cluster, cs); !ok {
				return nil, ErrNoMFT
			}
			off += base
		}
		v.mft = append(v.mft, extent{off: off, n: n})
		allocated += n
	}

	tableSize := rec.DataSize
	if tableSize <= 0 || tableSize > allocated {
		tableSize = allocated
	}
	v.records = tableSize / boot.RecordSize
	if v.records == 0 {
		return nil, ErrNoMFT
	}
	return v, nil
}

// Boot returns the decoded boot sector.
func (v *Volume) Boot() BootSector { return v.boot }

// Base returns the volume's byte offset in the stream.
func (v *Volume) Base() int64 { return v.base }

// Layout decodes every usable file record into a VolumeLayout. Records that
// are torn, malformed, or unreadable are skipped; only a stream-level read
// failure aborts the walk. onRecord, when non-nil, is called once per decoded
// record so long preparatory passes can report progress.
func (v *Volume) Layout(onRecord func()) (types.VolumeLayout, error) {
	layout := types.VolumeLayout{
		Offset:      v.base,
		ClusterSize: v.boot.ClusterSize(),
	}
	it := v.Records()
	for it.Next() {
		if onRecord != nil {
			onRecord()
		}
		rec := it.Record()
		if rec.IsDirectory || rec.Extension || len(rec.DataRuns) == 0 {
			continue
		}
		layout.Files = append(layout.Files, types.FileRunList{
			Name: rec.Name,
			Size: rec.DataSize,
			Runs: rec.DataRuns,
		})
	}
	if err := it.Err(); err != nil {
		return types.VolumeLayout{}, err
	}
	return layout, nil
}

// Records returns an iterator over the file table's decodable records.
func (v *Volume) Records() *RecordIter {
	return &RecordIter{v: v}
}

// RecordIter walks the file table one record per advance, skipping records
// that fail structural checks. Exhausted after one traversal.
type RecordIter struct {
	v   *Volume
	idx int64
	rec Record
	err error
}

// Next advances to the next decodable record.
func (it *RecordIter) Next() bool {
	if it.err != nil {
		return false
	}
	recSize := it.v.boot.RecordSize
	p := make([]byte, recSize)
	for it.idx < it.v.records {
		off := it.idx * recSize
		it.idx++
		sparse, err := it.v.readMFT(p, off)
		if err != nil {
			it.err = err
			return false
		}
		if sparse {
			continue
		}
		rec, err := ParseRecord(p, it.v.boot.BytesPerSector)
		if err != nil {
			continue
		}
		it.rec = rec
		return true
	}
	return false
}

// Err reports the stream-level failure that stopped the walk, if any.
func (it *RecordIter) Err() error { return it.err }

// Record returns the record produced by the last successful Next.
func (it *RecordIter) Record() Record { return it.rec }

// readMFT fills p with the table bytes at logical offset off, following the
// extent map. Reports sparse = true when any part of the span falls in a
// sparse stretch.
func (v *Volume) readMFT(p []byte, off int64) (sparse bool, err error) {
	want := int64(len(p))
	for _, ext := range v.mft {
		if want == 0 {
			break
		}
		if off >= ext.n {
			off -= ext.n
			continue
		}
		n := ext.n - off
		if n > want {
			n = want
		}
		if ext.off < 0 {
			return true, nil
		}
		chunk, err := readFull(v.r, ext.off+off, n)
		if err != nil {
			return false, err
		}
		copy(p[int64(len(p))-want:], chunk)
		want -= n
		off = 0
	}
	if want != 0 {
		return false, source.ErrShortRead
	}
	return false, nil
}

// readFull reads exactly n bytes at off or fails.
func readFull(r source.Reader, off, n int64) ([]byte, error) {
	if off < 0 || n <= 0 || off > r.Size()-n {
		return nil, source.ErrShortRead
	}
	p := make([]byte, n)
	if _, err := r.ReadAt(p, off); err != nil {
		return nil, err
	}
	return p, nil
}

// clusterBytes converts a cluster coordinate to bytes, guarding the product.
func clusterBytes(clusters, clusterSize int64) (int64, bool) {
	if clusters < 0 || clusterSize <= 0 {
		return 0, false
	}
	return buf.MulOverflowSafe(clusters, clusterSize)
}
