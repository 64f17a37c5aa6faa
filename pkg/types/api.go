package types

import "io"

// -----------------------------------------------------------------------------
// Typed Errors (stable categories for programmatic handling)
// -----------------------------------------------------------------------------

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindSource ErrKind = iota // source unreadable/unseekable (the only fatal class)
	ErrKindIO                    // read failure mid-scan (device error, not end-of-stream)
	ErrKindFormat                // malformed structure where a well-formed one was required
	ErrKindVolume                // bad volume offset or non-NTFS boot sector
)

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Sentinels commonly returned by implementations.
var (
	// ErrNotNTFS indicates the bytes at a supplied volume offset do not form
	// an NTFS boot sector.
	ErrNotNTFS = &Error{Kind: ErrKindVolume, Msg: "no NTFS boot sector at volume offset"}
	// ErrBadVolumeOffset indicates a negative or non-sector-aligned volume offset.
	ErrBadVolumeOffset = &Error{Kind: ErrKindVolume, Msg: "volume offset must be a non-negative multiple of 512"}
	// ErrNoFragmentPool indicates a reconstruction pass was started before
	// any carve results were supplied.
	ErrNoFragmentPool = &Error{Kind: ErrKindFormat, Msg: "no carve results ingested"}
)

// -----------------------------------------------------------------------------
// Source abstraction
// -----------------------------------------------------------------------------

// Source is the byte stream a scan reads: random access plus a known length.
// Implementations are expected to tolerate reads near the end returning fewer
// bytes than requested; the engine treats that as a classification, never a
// failure.
type Source interface {
	io.ReaderAt
	Size() int64
}

// -----------------------------------------------------------------------------
// Scan results (sealed union)
// -----------------------------------------------------------------------------

// ByteRange addresses a span of the source stream or of a hive's logical
// space. Immutable once produced.
type ByteRange struct {
	Offset int64
	Length int64
}

// End returns the first offset past the range.
func (r ByteRange) End() int64 { return r.Offset + r.Length }

// Result is the tagged union of everything a scan can yield. Consumers
// type-switch over the four shapes; no other types implement it.
type Result interface{ isResult() }

// CarveResult is a hive found essentially intact, modulo trailing
// truncation. Size counts the 4096-byte header plus the validated portion of
// the bins space; for a complete hive it equals the envelope's declared
// total.
type CarveResult struct {
	Offset    int64  // position in the source stream
	Size      int64  // validated extent in bytes
	Truncated bool   // body ends before the declared total
	FileName  string // hive's self-recorded path tail, possibly empty or garbled
}

func (CarveResult) isResult() {}

// FragmentCandidate is a block-shaped range with no envelope at the expected
// position: an orphaned piece of some hive's body, pooled for stitching.
type FragmentCandidate struct {
	Offset        int64 // position in the source stream
	Size          int64 // usable length, clipped at the stream's edge
	LogicalOffset int64 // the block's self-declared position in bins space
}

func (FragmentCandidate) isResult() {}

// CompressedResult is a hive recovered from an LZNT1 region. The decompressed
// image travels with the result because its layout has no stable mapping back
// to source offsets beyond Offset.
type CompressedResult struct {
	Offset    int64  // position of the compressed region in the source stream
	Truncated bool   // decode ended before the declared total
	FileName  string // decoded from the decompressed envelope
	Data      []byte // decompressed hive image
}

func (CompressedResult) isResult() {}

// CompressedFragment is a block-shaped piece recovered from an LZNT1 region.
type CompressedFragment struct {
	Offset        int64 // position of the compressed region in the source stream
	LogicalOffset int64 // first block's self-declared position in bins space
	Data          []byte
}

func (CompressedFragment) isResult() {}

// -----------------------------------------------------------------------------
// Reconstruction outputs
// -----------------------------------------------------------------------------

// ConfidenceTier grades a reconstruction.
type ConfidenceTier int

const (
	// TierBestEffort marks output with zero-filled holes or a failing
	// checksum: usable for partial extraction, not byte-trustworthy.
	TierBestEffort ConfidenceTier = iota
	// TierChecksummed marks output whose reassembled header checksum
	// validates with every logical page covered.
	TierChecksummed
)

// String implements the Stringer interface for ConfidenceTier.
func (t ConfidenceTier) String() string {
	switch t {
	case TierChecksummed:
		return "checksummed"
	case TierBestEffort:
		return "best-effort"
	default:
		return "unknown"
	}
}

// Reconstructed is a hive reassembled from an anchor plus pooled fragments,
// or from NTFS run lists. Data covers the envelope's full declared size in
// logical order; Holes lists any logical spans that had to be zero-filled.
type Reconstructed struct {
	Source CarveResult // the anchor that seeded the reassembly
	Data   []byte
	Tier   ConfidenceTier
	Holes  []ByteRange // logical spans, empty for complete reassemblies
}

// -----------------------------------------------------------------------------
// NTFS volume layouts
// -----------------------------------------------------------------------------

// FileRun is one extent of a file: Count clusters starting at Cluster.
// Cluster is -1 for sparse runs, which read as zeros.
type FileRun struct {
	Cluster int64
	Count   int64
}

// FileRunList is one file's exact physical layout as decoded from its file
// record: ordered runs plus the real (unallocated-tail-free) byte size.
type FileRunList struct {
	Name string
	Size int64
	Runs []FileRun
}

// VolumeLayout describes one NTFS volume found inside the source: where it
// starts, its cluster size, and the run lists of every file record that
// carries a non-resident data attribute.
type VolumeLayout struct {
	Offset      int64 // byte offset of the volume in the source stream
	ClusterSize int64
	Files       []FileRunList
}

// -----------------------------------------------------------------------------
// Options & progress callbacks
// -----------------------------------------------------------------------------

// ScanProgress receives cumulative bytes read versus total stream length at a
// fixed cadence during scanning. Pure side effect; must not block for long.
type ScanProgress func(bytesRead, bytesTotal int64)

// Tick is invoked once per unit of reconstruction work.
type Tick func()

// Pick chooses among physical source offsets competing to fill the same
// logical gap, given the anchor's last known physical offset. It returns an
// index into candidates. The default policy prefers the numerically closest
// offset, ties to the smallest.
type Pick func(lastPhysical int64, candidates []int64) int

// ScanOptions parameterizes a carve pass.
type ScanOptions struct {
	// Deep disables the shortcuts that skip over a hit's extent, so
	// candidates nested inside other results are not missed.
	Deep bool
	// Decompress probes LZNT1 regions and yields Compressed variants.
	Decompress bool
	// Progress, when set, is called roughly every ProgressEvery bytes.
	Progress ScanProgress
	// ProgressEvery overrides the reporting cadence in bytes. Zero selects
	// a sensible default.
	ProgressEvery int64
}

// RebuildOptions parameterizes the reconstruction passes.
type RebuildOptions struct {
	Tick Tick
	// Pick overrides the gap-filling policy. Nil selects the locality rule.
	Pick Pick
}
