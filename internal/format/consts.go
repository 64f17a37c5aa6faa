// Package format houses low-level decoders for the Windows Registry hive file
// format as it appears in raw byte streams. The goal is to keep the parsing
// focused, allocation-free where possible, and independent from the public API
// so higher-level packages can orchestrate the data in a more ergonomic form.
//
// Unlike a hive reader that can trust its input to be a complete file, every
// decoder here is written for carving: input buffers may stop mid-structure,
// carry garbage, or overlap unrelated data. Decoders therefore classify rather
// than fail, and callers decide what a classification means for the scan.
package format

var (
	// REGFSignature is the four-byte signature at the start of every hive file.
	// Layout (little-endian):
	//   0x00  'r' 'e' 'g' 'f'
	REGFSignature = []byte{'r', 'e', 'g', 'f'}

	// HBINSignature is the four-byte signature at the beginning of each hive bin.
	// Layout:
	//   0x00  'h' 'b' 'i' 'n'
	HBINSignature = []byte{'h', 'b', 'i', 'n'}
)

const (
	// HeaderSize is the size of the REGF header in bytes. In all observed hive
	// variants this is 4096 bytes (the size of a single memory page).
	HeaderSize = 4096

	// HBINHeaderSize is the size of the HBIN header in bytes.
	HBINHeaderSize = 0x20

	// Base of where the hive data starts (first HBIN).
	HiveDataBase = 0x1000

	// HBINAlignment is the required alignment of hive bins. On-disk structures
	// are aligned to 4 KiB, which is also the scan granularity for carving:
	// a hive deposited by the OS always begins on a cluster boundary, and
	// clusters are 4 KiB or a multiple on every NTFS volume that matters.
	HBINAlignment = 0x1000

	// HBINAlignmentMask is the bitmask used for aligning to 4KB boundaries (HBINAlignment - 1).
	HBINAlignmentMask = HBINAlignment - 1

	// HBIN field offsets within the header structure.
	HBINSignatureOffset  = 0x000 // 4
	HBINSignatureSize    = 4
	HBINOffsetEchoOffset = 0x04 // uint32, bin's own offset relative to the first bin
	HBINSizeOffset       = 0x08 // uint32, total bin size including this header
)

// ============================================================================
// REGF Header Constants
// ============================================================================

const (
	// 0x000.. fields.
	REGFSignatureOffset    = 0x000 // 4
	REGFSignatureSize      = 4
	REGFPrimarySeqOffset   = 0x004 // Sequence1 (uint32)
	REGFSecondarySeqOffset = 0x008 // Sequence2 (uint32)
	REGFTimeStampOffset    = 0x00C // _LARGE_INTEGER (uint64 LE, Windows FILETIME)
	REGFMajorVersionOffset = 0x014 // uint32
	REGFMinorVersionOffset = 0x018 // uint32
	REGFTypeOffset         = 0x01C // uint32
	REGFFormatOffset       = 0x020 // uint32
	REGFRootCellOffset     = 0x024 // uint32 (HCELL index rel to 0x1000)
	REGFDataSizeOffset     = 0x028 // uint32 (sum of HBIN sizes)
	REGFClusterOffset      = 0x02C // uint32
	REGFFileNameOffset     = 0x030 // [64] byte, UTF-16LE tail of the hive's path
	REGFFileNameSize       = 64
	REGFCheckSumOffset     = 0x1FC // uint32 (XOR of first 508 bytes)
)

// Header checksum covers the first 508 bytes (0x000..0x1FB), i.e. 127 dwords.
const (
	REGFChecksumRegionLen = 508
	REGFChecksumDwords    = 127
)

// MinEnvelopeLen is the smallest prefix of a header that carries every field
// the carver classifies on, checksum included. A candidate shorter than this
// cannot be an envelope at all.
const MinEnvelopeLen = 512

// ============================================================================
// LZNT1 Compression Constants
// ============================================================================
// NTFS stores compressed data as a sequence of LZNT1 chunks, each holding up
// to 4 KiB of uncompressed data. The chunk header packs length, a fixed
// signature, and a compressed/stored flag into one uint16.

const (
	// LZNT1ChunkHeaderSize is the size of the per-chunk header.
	LZNT1ChunkHeaderSize = 2

	// LZNT1ChunkSizeMask extracts (payload length - 1) from the chunk header.
	LZNT1ChunkSizeMask = 0x0FFF

	// LZNT1SignatureMask and LZNT1Signature identify a valid chunk header.
	// Bits 12..14 must hold the value 3.
	LZNT1SignatureMask  = 0x7000
	LZNT1SignatureShift = 12
	LZNT1Signature      = 3

	// LZNT1CompressedFlag marks a chunk whose payload is token-encoded rather
	// than stored literally.
	LZNT1CompressedFlag = 0x8000

	// LZNT1MaxChunkData is the uncompressed capacity of a single chunk.
	LZNT1MaxChunkData = 4096

	// LZNT1MinCopyLength is the shortest back-reference a copy token encodes.
	LZNT1MinCopyLength = 3
)
