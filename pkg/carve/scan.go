package carve

import (
	"github.com/joshuapare/hivecarve/internal/format"
	"github.com/joshuapare/hivecarve/internal/source"
	"github.com/joshuapare/hivecarve/pkg/types"
)

const (
	// defaultProgressEvery is the reporting cadence when the caller does not
	// choose one.
	defaultProgressEvery = 8 << 20

	// lznt1ProbeInput bounds the compressed bytes read to classify a region
	// before committing to a full decode.
	lznt1ProbeInput = 64 << 10

	// maxHiveSize caps how large a hive the engine will materialize in
	// memory, whether decoded from an LZNT1 region or reassembled from
	// fragments. A hostile size field must not drive the allocation.
	maxHiveSize = 1 << 30

	// maxUnsizedDecode caps the decoded size of a compressed hive whose
	// envelope carries a garbage size field.
	maxUnsizedDecode = 16 << 20

	// maxFragmentDecode caps the decoded size of a compressed region that
	// classifies as a bare block chain rather than a whole hive.
	maxFragmentDecode = 1 << 20
)

// Scan walks 4096-aligned candidate offsets and yields one classified result
// per hit. Drive it like a bufio.Scanner: Next, Result, then Err once Next
// returns false.
type Scan struct {
	w    *source.Window
	opts types.ScanOptions

	off        int64
	res        types.Result
	err        error
	done       bool
	cadence    int64
	lastReport int64
}

// Scan begins a carve pass over the image.
func (im *Image) Scan(opts types.ScanOptions) *Scan {
	cadence := opts.ProgressEvery
	if cadence <= 0 {
		cadence = defaultProgressEvery
	}
	return &Scan{w: source.NewWindow(im.src), opts: opts, cadence: cadence}
}

// Next advances to the next result. It returns false at the end of the stream
// or on a genuine read failure; Err tells the two apart.
func (s *Scan) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	size := s.w.Size()
	for s.off < size {
		candidate := s.off
		res, advance, err := s.classify(candidate)
		if err != nil {
			s.err = err
			return false
		}
		if s.opts.Deep || advance < format.HBINAlignment {
			advance = format.HBINAlignment
		}
		s.off = candidate + advance
		s.report(false)
		if res != nil {
			s.res = res
			return true
		}
	}
	s.done = true
	s.report(true)
	return false
}

// Result returns the result produced by the last successful Next.
func (s *Scan) Result() types.Result { return s.res }

// Err returns the read failure that stopped the scan, if any. Exhausting the
// stream is not an error.
func (s *Scan) Err() error { return s.err }

func (s *Scan) report(final bool) {
	if s.opts.Progress == nil {
		return
	}
	read := s.w.BytesRead()
	if final || read-s.lastReport >= s.cadence {
		s.lastReport = read
		s.opts.Progress(read, s.w.Size())
	}
}

// classify inspects one candidate offset. It returns the result to emit (nil
// for a miss) and how far to advance when shortcuts are enabled.
func (s *Scan) classify(candidate int64) (types.Result, int64, error) {
	head, err := s.w.ReadAt(candidate, format.HeaderSize)
	if err != nil && err != source.ErrShortRead {
		return nil, 0, ioFailed("scan", err)
	}
	if env, perr := format.ParseEnvelope(head); perr == nil {
		return s.carveHive(candidate, env)
	}
	if blk, perr := format.ParseBlock(head); perr == nil {
		return s.carveFragment(candidate, blk), int64(blk.Size), nil
	}
	if s.opts.Decompress && format.LooksCompressed(head) {
		return s.carveCompressed(candidate)
	}
	return nil, format.HBINAlignment, nil
}

// carveHive anchors a result on a well-formed envelope and validates the body
// block by block. The advance distance equals the validated extent, so a scan
// without Deep resumes exactly after the truncation point.
func (s *Scan) carveHive(candidate int64, env format.Envelope) (types.Result, int64, error) {
	validated, truncated, err := s.walkBlocks(candidate, env)
	if err != nil {
		return nil, 0, err
	}
	size := format.HeaderSize + validated
	res := types.CarveResult{
		Offset:    candidate,
		Size:      size,
		Truncated: truncated,
		FileName:  env.FileName,
	}
	return res, size, nil
}

// walkBlocks validates the block chain after the envelope at candidate: each
// block's logical-offset echo must equal the running total of sizes walked so
// far. It returns the validated bins extent and whether the chain stopped
// short of the declared size. An envelope with a garbage size field is walked
// to wherever the chain breaks and always reported truncated; the extent then
// serves as a lower bound.
func (s *Scan) walkBlocks(candidate int64, env format.Envelope) (int64, bool, error) {
	declared := int64(-1)
	if env.SizeValid {
		declared = int64(env.HiveBinsDataSize)
	}
	var logical int64
	pos := candidate + format.HeaderSize
	for declared < 0 || logical < declared {
		hdr, err := s.w.ReadAt(pos, format.HBINHeaderSize)
		if err == source.ErrShortRead {
			return logical, true, nil
		}
		if err != nil {
			return 0, false, ioFailed("scan", err)
		}
		blk, perr := format.ParseBlock(hdr)
		if perr != nil || int64(blk.LogicalOffset) != logical {
			return logical, true, nil
		}
		bs := int64(blk.Size)
		if declared >= 0 && logical+bs > declared {
			return logical, true, nil
		}
		if _, err := s.w.ReadAt(pos+format.HBINHeaderSize, bs-format.HBINHeaderSize); err != nil {
			if err == source.ErrShortRead {
				return logical, true, nil
			}
			return 0, false, ioFailed("scan", err)
		}
		logical += bs
		pos += bs
	}
	return logical, false, nil
}

// carveFragment records an orphaned block, clipping its usable length at the
// stream's edge.
func (s *Scan) carveFragment(candidate int64, blk format.Block) types.FragmentCandidate {
	size := int64(blk.Size)
	if remaining := s.w.Size() - candidate; size > remaining {
		size = remaining
	}
	return types.FragmentCandidate{
		Offset:        candidate,
		Size:          size,
		LogicalOffset: int64(blk.LogicalOffset),
	}
}

// carveCompressed probes an LZNT1 region with a bounded window, classifies the
// decoded prefix, and only then decodes enough to carry the result. The
// advance distance covers the compressed bytes actually consumed.
func (s *Scan) carveCompressed(candidate int64) (types.Result, int64, error) {
	win, err := s.w.ReadAt(candidate, lznt1ProbeInput)
	if err != nil && err != source.ErrShortRead {
		return nil, 0, ioFailed("scan", err)
	}
	probe, _, derr := format.DecompressLZNT1(win, format.HeaderSize)
	if derr != nil {
		return nil, format.HBINAlignment, nil
	}
	if env, perr := format.ParseEnvelope(probe); perr == nil {
		return s.decodeHive(candidate, env)
	}
	if format.IsBlockShaped(probe) {
		return s.decodeFragment(candidate)
	}
	return nil, format.HBINAlignment, nil
}

func (s *Scan) decodeHive(candidate int64, env format.Envelope) (types.Result, int64, error) {
	limit := int64(maxUnsizedDecode)
	if env.SizeValid {
		limit = env.TotalSize()
		if limit > maxHiveSize {
			limit = maxHiveSize
		}
	}
	win, err := s.w.ReadAt(candidate, compressedInputBudget(limit))
	if err != nil && err != source.ErrShortRead {
		return nil, 0, ioFailed("scan", err)
	}
	data, consumed, derr := format.DecompressLZNT1(win, int(limit))
	if derr != nil {
		return nil, format.HBINAlignment, nil
	}
	if int64(len(data)) > limit {
		data = data[:limit]
	}
	validated, truncated := walkDecodedBlocks(data, env)
	if size := format.HeaderSize + validated; size < int64(len(data)) {
		data = data[:size]
	}
	res := types.CompressedResult{
		Offset:    candidate,
		Truncated: truncated,
		FileName:  env.FileName,
		Data:      data,
	}
	return res, format.AlignHBIN(int64(consumed)), nil
}

func (s *Scan) decodeFragment(candidate int64) (types.Result, int64, error) {
	win, err := s.w.ReadAt(candidate, compressedInputBudget(maxFragmentDecode))
	if err != nil && err != source.ErrShortRead {
		return nil, 0, ioFailed("scan", err)
	}
	data, consumed, derr := format.DecompressLZNT1(win, maxFragmentDecode)
	if derr != nil {
		return nil, format.HBINAlignment, nil
	}
	first, perr := format.ParseBlock(data)
	if perr != nil {
		return nil, format.HBINAlignment, nil
	}
	keep := decodedChain(data, int64(first.LogicalOffset))
	if keep == 0 {
		return nil, format.HBINAlignment, nil
	}
	res := types.CompressedFragment{
		Offset:        candidate,
		LogicalOffset: int64(first.LogicalOffset),
		Data:          data[:keep],
	}
	return res, format.AlignHBIN(int64(consumed)), nil
}

// walkDecodedBlocks is the in-memory counterpart of walkBlocks, used to
// re-validate decompressed output before it is emitted.
func walkDecodedBlocks(data []byte, env format.Envelope) (int64, bool) {
	declared := int64(-1)
	if env.SizeValid {
		declared = int64(env.HiveBinsDataSize)
	}
	var logical int64
	for declared < 0 || logical < declared {
		start := format.HeaderSize + logical
		if start+format.HBINHeaderSize > int64(len(data)) {
			return logical, true
		}
		blk, err := format.ParseBlock(data[start:])
		if err != nil || int64(blk.LogicalOffset) != logical {
			return logical, true
		}
		bs := int64(blk.Size)
		if declared >= 0 && logical+bs > declared {
			return logical, true
		}
		if start+bs > int64(len(data)) {
			return logical, true
		}
		logical += bs
	}
	return logical, false
}

// decodedChain measures the leading run of internally consistent blocks in
// data: consecutive headers whose echoes continue from logical. Only whole
// blocks count.
func decodedChain(data []byte, logical int64) int64 {
	var keep int64
	for {
		if keep+format.HBINHeaderSize > int64(len(data)) {
			return keep
		}
		blk, err := format.ParseBlock(data[keep:])
		if err != nil || int64(blk.LogicalOffset) != logical {
			return keep
		}
		bs := int64(blk.Size)
		if keep+bs > int64(len(data)) {
			return keep
		}
		keep += bs
		logical += bs
	}
}

// compressedInputBudget sizes the source window for decoding n output bytes.
// A token-encoded chunk can expand literals by one tag bit per byte, so the
// bound is 9/8 of the target plus a couple of headers' slack.
func compressedInputBudget(n int64) int64 {
	return n + n/8 + 256
}
