package carve

import (
	"errors"
	"strconv"
	"strings"

	"github.com/joshuapare/hivecarve/internal/buf"
	"github.com/joshuapare/hivecarve/internal/format"
	"github.com/joshuapare/hivecarve/internal/ntfs"
	"github.com/joshuapare/hivecarve/internal/source"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// sectorAlign is the alignment every supplied volume offset must satisfy.
const sectorAlign = 512

// VolumeRebuilder reassembles hives through NTFS metadata instead of
// heuristics. FindDataRuns decodes file run lists at caller-supplied volume
// offsets; Volume then matches scan results against those run lists and reads
// each matched file back cluster-exactly. The pass never guesses: a match
// that cannot be read in full, or whose assembled bytes are not a well-formed
// hive, yields nothing.
type VolumeRebuilder struct {
	src  source.Reader
	w    *source.Window
	opts types.RebuildOptions

	anchors []types.CarveResult
	frags   []types.FragmentCandidate
	layouts map[int64]types.VolumeLayout
	fed     bool
}

// NewVolumeRebuilder prepares a metadata-assisted pass over the image.
func (im *Image) NewVolumeRebuilder(opts types.RebuildOptions) *VolumeRebuilder {
	return &VolumeRebuilder{
		src:     im.src,
		w:       source.NewWindow(im.src),
		opts:    opts,
		layouts: make(map[int64]types.VolumeLayout),
	}
}

// SetFragments ingests the results of a completed scan. CarveResults seed
// matches by name or by position; FragmentCandidates seed matches by position
// only. Compressed variants have no stable source extent and are ignored.
func (vr *VolumeRebuilder) SetFragments(results []types.Result) {
	vr.fed = true
	for _, r := range results {
		switch v := r.(type) {
		case types.CarveResult:
			vr.anchors = append(vr.anchors, v)
		case types.FragmentCandidate:
			vr.frags = append(vr.frags, v)
		}
	}
}

// FindDataRuns decodes the MFT at each supplied volume byte-offset and
// retains the run lists of every file that carries non-resident data. Offsets
// must be non-negative multiples of 512. An offset that holds no NTFS boot
// sector fails with ErrNotNTFS; a volume whose MFT cannot be walked fails
// with a volume-kind error.
func (vr *VolumeRebuilder) FindDataRuns(volumeOffsets ...int64) error {
	for _, off := range volumeOffsets {
		if off < 0 || off%sectorAlign != 0 {
			return types.ErrBadVolumeOffset
		}
		vol, err := ntfs.OpenVolume(vr.src, off)
		if err != nil {
			if errors.Is(err, ntfs.ErrBadBootSector) {
				return types.ErrNotNTFS
			}
			return volumeFailed(off, err)
		}
		layout, err := vol.Layout(vr.opts.Tick)
		if err != nil {
			return volumeFailed(off, err)
		}
		vr.layouts[off] = layout
	}
	return nil
}

// Layout returns the decoded layout for a prepared volume offset.
func (vr *VolumeRebuilder) Layout(volumeOffset int64) (types.VolumeLayout, bool) {
	l, ok := vr.layouts[volumeOffset]
	return l, ok
}

// Volume returns an iterator over hives reassembled from the run lists of the
// volume at volumeOffset, which must have been prepared with FindDataRuns.
// Anchors are matched before fragments; each file record is reassembled at
// most once.
func (vr *VolumeRebuilder) Volume(volumeOffset int64) *VolumeIter {
	it := &VolumeIter{vr: vr, emitted: make(map[int]bool)}
	if !vr.fed {
		it.err = types.ErrNoFragmentPool
		return it
	}
	layout, ok := vr.layouts[volumeOffset]
	if !ok {
		it.err = &types.Error{
			Kind: types.ErrKindVolume,
			Msg:  "volume " + strconv.FormatInt(volumeOffset, 10) + " not prepared; call FindDataRuns first",
		}
		return it
	}
	it.layout = layout
	return it
}

// VolumeIter yields one Reconstructed per matched file record.
type VolumeIter struct {
	vr      *VolumeRebuilder
	layout  types.VolumeLayout
	seed    int
	emitted map[int]bool
	cur     types.Reconstructed
	err     error
}

// Next advances to the next reconstruction.
func (it *VolumeIter) Next() bool {
	if it.err != nil {
		return false
	}
	total := len(it.vr.anchors) + len(it.vr.frags)
	for it.seed < total {
		i := it.seed
		it.seed++
		var rec types.Reconstructed
		var ok bool
		var err error
		if i < len(it.vr.anchors) {
			rec, ok, err = it.vr.matchAnchor(it.layout, it.vr.anchors[i], it.emitted)
		} else {
			rec, ok, err = it.vr.matchFragment(it.layout, it.vr.frags[i-len(it.vr.anchors)], it.emitted)
		}
		if err != nil {
			it.err = err
			return false
		}
		it.vr.tick()
		if !ok {
			continue
		}
		it.cur = rec
		return true
	}
	return false
}

// Reconstruction returns the output produced by the last successful Next.
func (it *VolumeIter) Reconstruction() types.Reconstructed { return it.cur }

// Err returns the failure that stopped the pass, if any.
func (it *VolumeIter) Err() error { return it.err }

// matchAnchor finds a record whose name matches the anchor's self-recorded
// file name, or whose first data run starts exactly where the anchor was
// carved. Several records can share a name (config plus RegBack copies); the
// first one that assembles cleanly wins.
func (vr *VolumeRebuilder) matchAnchor(layout types.VolumeLayout, a types.CarveResult, emitted map[int]bool) (types.Reconstructed, bool, error) {
	base := lastPathComponent(a.FileName)
	for fi := range layout.Files {
		if emitted[fi] {
			continue
		}
		f := layout.Files[fi]
		byName := base != "" && strings.EqualFold(base, f.Name)
		if !byName && runStart(layout, f) != a.Offset {
			continue
		}
		data, env, ok, err := vr.assemble(layout, f)
		if err != nil {
			return types.Reconstructed{}, false, err
		}
		if !ok {
			continue
		}
		emitted[fi] = true
		return finish(a, data, env), true, nil
	}
	return types.Reconstructed{}, false, nil
}

// matchFragment finds a record one of whose data runs contains the fragment.
// Reassembling the whole file recovers the envelope the fragment lost.
func (vr *VolumeRebuilder) matchFragment(layout types.VolumeLayout, frag types.FragmentCandidate, emitted map[int]bool) (types.Reconstructed, bool, error) {
	for fi := range layout.Files {
		if emitted[fi] {
			continue
		}
		f := layout.Files[fi]
		if !runsContain(layout, f, frag.Offset) {
			continue
		}
		data, env, ok, err := vr.assemble(layout, f)
		if err != nil {
			return types.Reconstructed{}, false, err
		}
		if !ok {
			continue
		}
		emitted[fi] = true
		seed := types.CarveResult{
			Offset:    frag.Offset,
			Size:      frag.Size,
			Truncated: true,
			FileName:  env.FileName,
		}
		return finish(seed, data, env), true, nil
	}
	return types.Reconstructed{}, false, nil
}

// assemble reads a file back run by run. ok is false whenever the result
// would require guessing: a size beyond the materialization cap, runs the
// stream cannot supply in full, or assembled bytes that do not form a
// well-formed hive envelope.
func (vr *VolumeRebuilder) assemble(layout types.VolumeLayout, f types.FileRunList) ([]byte, format.Envelope, bool, error) {
	if f.Size < format.MinEnvelopeLen || f.Size > maxHiveSize {
		return nil, format.Envelope{}, false, nil
	}
	data := make([]byte, f.Size)
	var pos int64
	for _, r := range f.Runs {
		if pos >= f.Size {
			break
		}
		runBytes, ok := buf.MulOverflowSafe(r.Count, layout.ClusterSize)
		if !ok {
			return nil, format.Envelope{}, false, nil
		}
		n := runBytes
		if pos+n > f.Size {
			n = f.Size - pos
		}
		if r.Cluster < 0 {
			// Sparse clusters are authoritative zeros, not holes.
			pos += n
			continue
		}
		start, ok := buf.MulOverflowSafe(r.Cluster, layout.ClusterSize)
		if !ok {
			return nil, format.Envelope{}, false, nil
		}
		got, err := vr.w.ReadAt(layout.Offset+start, n)
		if err == source.ErrShortRead {
			return nil, format.Envelope{}, false, nil
		}
		if err != nil {
			return nil, format.Envelope{}, false, ioFailed("volume", err)
		}
		copy(data[pos:], got)
		pos += n
	}
	if pos < f.Size {
		return nil, format.Envelope{}, false, nil
	}
	env, perr := format.ParseEnvelope(data)
	if perr != nil {
		return nil, format.Envelope{}, false, nil
	}
	return data, env, true, nil
}

// finish grades an assembled file. Coverage is exact by construction, so the
// tier rides on the envelope checksum alone.
func finish(seed types.CarveResult, data []byte, env format.Envelope) types.Reconstructed {
	tier := types.TierBestEffort
	if env.ChecksumValid {
		tier = types.TierChecksummed
	}
	return types.Reconstructed{Source: seed, Data: data, Tier: tier}
}

// runStart returns the absolute byte offset of a file's first cluster, or -1
// when the file starts sparse.
func runStart(layout types.VolumeLayout, f types.FileRunList) int64 {
	if len(f.Runs) == 0 || f.Runs[0].Cluster < 0 {
		return -1
	}
	return layout.Offset + f.Runs[0].Cluster*layout.ClusterSize
}

// runsContain reports whether off falls inside any allocated run of f.
func runsContain(layout types.VolumeLayout, f types.FileRunList, off int64) bool {
	for _, r := range f.Runs {
		if r.Cluster < 0 {
			continue
		}
		start := layout.Offset + r.Cluster*layout.ClusterSize
		if off >= start && off < start+r.Count*layout.ClusterSize {
			return true
		}
	}
	return false
}

// lastPathComponent returns the final component of a Windows or POSIX style
// path. Hive headers record path tails like "emRoot\System32\Config\SAM".
func lastPathComponent(p string) string {
	if i := strings.LastIndexAny(p, `\/`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func volumeFailed(off int64, err error) error {
	return &types.Error{
		Kind: types.ErrKindVolume,
		Msg:  "volume at " + strconv.FormatInt(off, 10),
		Err:  err,
	}
}

func (vr *VolumeRebuilder) tick() {
	if vr.opts.Tick != nil {
		vr.opts.Tick()
	}
}
