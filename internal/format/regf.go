package format

import (
	"bytes"

	"github.com/joshuapare/hivecarve/internal/buf"
)

// Envelope captures the subset of the REGF header a carver classifies on.
// The diagram below highlights the offsets we care about.
//
//	Offset  Size  Description
//	------  ----  ----------------------------------------------------------
//	 0x000   4    'r' 'e' 'g' 'f'
//	 0x004   4    Primary sequence number
//	 0x008   4    Secondary sequence number
//	 0x00C   8    Last write timestamp (FILETIME)
//	 0x014   4    Major version
//	 0x018   4    Minor version
//	 0x01C   4    Type (0 = primary, 1 = alternate)
//	 0x028   4    Total size of HBIN data
//	 0x030  64    UTF-16LE tail of the hive's original path
//	 0x1FC   4    XOR-32 checksum of bytes 0x000..0x1FB
//
// Windows stores the header in little-endian form.
type Envelope struct {
	PrimarySequence   uint32
	SecondarySequence uint32
	LastWriteRaw      uint64
	MajorVersion      uint32
	MinorVersion      uint32
	Type              uint32
	HiveBinsDataSize  uint32
	FileName          string

	// SizeValid reports whether HiveBinsDataSize is positive and bin-aligned.
	// A well-formed envelope with a garbage size field still anchors a
	// truncated carve, so the flag is carried instead of rejecting.
	SizeValid bool
	// SequencesMatch reports primary == secondary, i.e. the hive was not
	// captured mid-flush.
	SequencesMatch bool
	// ChecksumValid reports that the stored XOR-32 matches the header bytes.
	ChecksumValid bool
}

// TotalSize returns the declared size of the full hive, header included.
// Only meaningful when SizeValid is true.
func (e Envelope) TotalSize() int64 {
	return HeaderSize + int64(e.HiveBinsDataSize)
}

// ParseEnvelope classifies b as a hive envelope. It returns
// ErrSignatureMismatch when the magic is absent and ErrTruncated when b is
// shorter than the checksummed region; every other defect is recorded in the
// returned Envelope's validity flags rather than reported as an error.
func ParseEnvelope(b []byte) (Envelope, error) {
	if len(b) < REGFSignatureSize || !bytes.Equal(b[:REGFSignatureSize], REGFSignature) {
		return Envelope{}, ErrSignatureMismatch
	}
	if len(b) < MinEnvelopeLen {
		return Envelope{}, ErrTruncated
	}
	env := Envelope{
		PrimarySequence:   buf.U32LE(b[REGFPrimarySeqOffset:]),
		SecondarySequence: buf.U32LE(b[REGFSecondarySeqOffset:]),
		LastWriteRaw:      buf.U64LE(b[REGFTimeStampOffset:]),
		MajorVersion:      buf.U32LE(b[REGFMajorVersionOffset:]),
		MinorVersion:      buf.U32LE(b[REGFMinorVersionOffset:]),
		Type:              buf.U32LE(b[REGFTypeOffset:]),
		HiveBinsDataSize:  buf.U32LE(b[REGFDataSizeOffset:]),
	}
	env.FileName = DecodeFileName(b[REGFFileNameOffset : REGFFileNameOffset+REGFFileNameSize])
	env.SizeValid = env.HiveBinsDataSize > 0 && env.HiveBinsDataSize%HBINAlignment == 0
	env.SequencesMatch = env.PrimarySequence == env.SecondarySequence
	env.ChecksumValid = Checksum(b) == buf.U32LE(b[REGFCheckSumOffset:])
	return env, nil
}

// Checksum computes the REGF header checksum: the XOR of the first 127
// little-endian uint32 words (bytes 0x000..0x1FB). b must hold at least
// REGFChecksumRegionLen+4 bytes.
func Checksum(b []byte) uint32 {
	var sum uint32
	for i := 0; i < REGFChecksumRegionLen; i += 4 {
		sum ^= buf.U32LE(b[i:])
	}
	// Windows never stores 0 or 0xFFFFFFFF; it substitutes 1 and 0xFFFFFFFE.
	switch sum {
	case 0:
		return 1
	case 0xFFFFFFFF:
		return 0xFFFFFFFE
	}
	return sum
}

// PatchChecksum recomputes the header checksum of b in place. Used after a
// reconstruction pass normalizes sequence numbers in an assembled buffer.
func PatchChecksum(b []byte) {
	PutU32(b, REGFCheckSumOffset, Checksum(b))
}

// NormalizeSequences rewrites both sequence numbers of the header in b to the
// primary value, then repairs the checksum. A reassembled hive is by
// construction a settled snapshot, so the counters must agree.
func NormalizeSequences(b []byte) {
	PutU32(b, REGFSecondarySeqOffset, buf.U32LE(b[REGFPrimarySeqOffset:]))
	PatchChecksum(b)
}
