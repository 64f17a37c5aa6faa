package carve

import (
	"github.com/RoaringBitmap/roaring"
	"github.com/joshuapare/hivecarve/internal/format"
	"github.com/joshuapare/hivecarve/internal/source"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// Rebuilder stitches truncated hives back together from the fragment pool of
// a completed scan. Each truncated anchor is rebuilt toward its declared
// size: the validated prefix is copied as-is, gaps are filled with pooled
// fragments whose self-declared logical offsets land exactly on the gap, and
// whatever the pool cannot supply stays as a zero-filled hole. Assembled
// output leaves with matching sequence counters and a recomputed header
// checksum.
type Rebuilder struct {
	w    *source.Window
	opts types.RebuildOptions

	anchors []types.CarveResult
	pool    []poolFragment
	fed     bool
}

// poolFragment is a pooled fragment reduced to what stitching needs. Only
// whole 4096-byte pages count; a clipped tail is unverifiable and dropped.
// data is non-nil for decompressed fragments, whose bytes exist nowhere in
// the source stream.
type poolFragment struct {
	off     int64
	logical int64
	size    int64
	data    []byte
	used    bool
}

// NewRebuilder prepares a stitching pass over the image.
func (im *Image) NewRebuilder(opts types.RebuildOptions) *Rebuilder {
	return &Rebuilder{w: source.NewWindow(im.src), opts: opts}
}

// SetFragments ingests the results of a completed scan. CarveResults become
// anchors (only truncated ones are rebuilt); FragmentCandidates and
// CompressedFragments join the pool, the latter contributing their carried
// decompressed bytes. Order is preserved, which keeps reconstruction
// deterministic.
func (rb *Rebuilder) SetFragments(results []types.Result) {
	rb.fed = true
	for _, r := range results {
		switch v := r.(type) {
		case types.CarveResult:
			rb.anchors = append(rb.anchors, v)
		case types.FragmentCandidate:
			usable := format.AlignHBINDown(v.Size)
			if usable <= 0 || v.LogicalOffset < 0 || v.LogicalOffset%format.HBINAlignment != 0 {
				continue
			}
			rb.pool = append(rb.pool, poolFragment{off: v.Offset, logical: v.LogicalOffset, size: usable})
		case types.CompressedFragment:
			usable := format.AlignHBINDown(int64(len(v.Data)))
			if usable <= 0 || v.LogicalOffset < 0 || v.LogicalOffset%format.HBINAlignment != 0 {
				continue
			}
			rb.pool = append(rb.pool, poolFragment{off: v.Offset, logical: v.LogicalOffset, size: usable, data: v.Data[:usable]})
		}
	}
}

// Fragmented returns an iterator over reconstructions of the truncated
// anchors, in ingest order. Each pooled fragment is consumed at most once
// across the whole pass.
func (rb *Rebuilder) Fragmented() *RebuildIter {
	it := &RebuildIter{rb: rb}
	if !rb.fed {
		it.err = types.ErrNoFragmentPool
	}
	return it
}

// RebuildIter yields one Reconstructed per rebuildable anchor.
type RebuildIter struct {
	rb  *Rebuilder
	idx int
	cur types.Reconstructed
	err error
}

// Next advances to the next reconstruction. Anchors that are complete, or
// whose envelope no longer yields a credible declared size, are skipped.
func (it *RebuildIter) Next() bool {
	if it.err != nil {
		return false
	}
	for it.idx < len(it.rb.anchors) {
		a := it.rb.anchors[it.idx]
		it.idx++
		if !a.Truncated {
			continue
		}
		rec, ok, err := it.rb.stitch(a)
		if err != nil {
			it.err = err
			return false
		}
		if !ok {
			continue
		}
		it.cur = rec
		return true
	}
	return false
}

// Reconstruction returns the output produced by the last successful Next.
func (it *RebuildIter) Reconstruction() types.Reconstructed { return it.cur }

// Err returns the read failure that stopped the pass, if any.
func (it *RebuildIter) Err() error { return it.err }

// stitch rebuilds one anchor. ok is false when the anchor cannot seed a
// reconstruction at all: its envelope is gone from the stream or its declared
// size is garbage or implausible.
func (rb *Rebuilder) stitch(a types.CarveResult) (types.Reconstructed, bool, error) {
	head, err := rb.w.ReadAt(a.Offset, format.MinEnvelopeLen)
	if err != nil && err != source.ErrShortRead {
		return types.Reconstructed{}, false, ioFailed("stitch", err)
	}
	env, perr := format.ParseEnvelope(head)
	if perr != nil || !env.SizeValid {
		return types.Reconstructed{}, false, nil
	}
	binsSize := int64(env.HiveBinsDataSize)
	total := env.TotalSize()
	if total > maxHiveSize {
		return types.Reconstructed{}, false, nil
	}
	out := make([]byte, total)

	// Lay in the anchor's validated extent. A short read only means the
	// stream shrank under us; the missing part simply stays uncovered.
	prefix, err := rb.w.ReadAt(a.Offset, a.Size)
	if err != nil && err != source.ErrShortRead {
		return types.Reconstructed{}, false, ioFailed("stitch", err)
	}
	copy(out, prefix)
	prefixBins := int64(len(prefix)) - format.HeaderSize
	if prefixBins < 0 {
		prefixBins = 0
	}
	if prefixBins > binsSize {
		prefixBins = binsSize
	}

	pages := binsSize / format.HBINAlignment
	covered := roaring.New()
	if p := prefixBins / format.HBINAlignment; p > 0 {
		covered.AddRange(0, uint64(p))
	}

	anchorEnd := a.Offset + a.Size
	for page := prefixBins / format.HBINAlignment; page < pages; {
		target := page * format.HBINAlignment
		cands := rb.candidates(target)
		if len(cands) == 0 {
			page++
			continue
		}
		f := &rb.pool[rb.pick(anchorEnd, cands)]
		f.used = true
		usable := f.size
		if target+usable > binsSize {
			usable = binsSize - target
		}
		data := f.data
		if data == nil {
			var err error
			data, err = rb.w.ReadAt(f.off, usable)
			if err != nil && err != source.ErrShortRead {
				return types.Reconstructed{}, false, ioFailed("stitch", err)
			}
		} else if int64(len(data)) > usable {
			data = data[:usable]
		}
		copy(out[format.HeaderSize+target:], data)
		if got := int64(len(data)) / format.HBINAlignment; got > 0 {
			covered.AddRange(uint64(page), uint64(page+got))
		}
		page += usable / format.HBINAlignment
		rb.tick()
	}

	var holes []types.ByteRange
	for page := int64(0); page < pages; {
		if covered.Contains(uint32(page)) {
			page++
			continue
		}
		start := page
		for page < pages && !covered.Contains(uint32(page)) {
			page++
		}
		holes = append(holes, types.ByteRange{
			Offset: format.HeaderSize + start*format.HBINAlignment,
			Length: (page - start) * format.HBINAlignment,
		})
	}

	// Confidence is graded on the evidence as found; the output header is
	// then normalized so downstream parsers see matching sequence counters
	// and a checksum that covers the assembled buffer.
	tier := types.TierBestEffort
	if len(holes) == 0 && env.ChecksumValid && env.SequencesMatch {
		tier = types.TierChecksummed
	}
	format.NormalizeSequences(out)
	return types.Reconstructed{Source: a, Data: out, Tier: tier, Holes: holes}, true, nil
}

// candidates returns pool indexes of unused fragments whose logical offset
// lands exactly on target, in ingest order.
func (rb *Rebuilder) candidates(target int64) []int {
	var cands []int
	for i := range rb.pool {
		if f := &rb.pool[i]; !f.used && f.logical == target {
			cands = append(cands, i)
		}
	}
	return cands
}

// pick resolves which candidate fills a gap, delegating to the configured
// policy. An out-of-range answer from a caller-supplied policy falls back to
// the first candidate rather than panicking.
func (rb *Rebuilder) pick(lastPhysical int64, cands []int) int {
	offs := make([]int64, len(cands))
	for i, c := range cands {
		offs[i] = rb.pool[c].off
	}
	policy := rb.opts.Pick
	if policy == nil {
		policy = pickNearest
	}
	i := policy(lastPhysical, offs)
	if i < 0 || i >= len(cands) {
		i = 0
	}
	return cands[i]
}

// pickNearest is the default gap-filling policy: the candidate whose physical
// offset is numerically closest to the anchor's last known physical offset
// wins, ties to the smallest offset.
func pickNearest(lastPhysical int64, candidates []int64) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		di := distance(candidates[i], lastPhysical)
		db := distance(candidates[best], lastPhysical)
		if di < db || (di == db && candidates[i] < candidates[best]) {
			best = i
		}
	}
	return best
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

func (rb *Rebuilder) tick() {
	if rb.opts.Tick != nil {
		rb.opts.Tick()
	}
}
