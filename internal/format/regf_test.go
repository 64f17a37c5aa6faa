package format

import (
	"encoding/binary"
	"testing"
)

func envelopeBuf(binsSize uint32) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, REGFSignature)
	binary.LittleEndian.PutUint32(buf[REGFPrimarySeqOffset:], 3)
	binary.LittleEndian.PutUint32(buf[REGFSecondarySeqOffset:], 3)
	binary.LittleEndian.PutUint64(buf[REGFTimeStampOffset:], 123456789)
	binary.LittleEndian.PutUint32(buf[REGFMajorVersionOffset:], 1)
	binary.LittleEndian.PutUint32(buf[REGFMinorVersionOffset:], 5)
	binary.LittleEndian.PutUint32(buf[REGFTypeOffset:], 0)
	binary.LittleEndian.PutUint32(buf[REGFRootCellOffset:], 0x20)
	binary.LittleEndian.PutUint32(buf[REGFDataSizeOffset:], binsSize)
	for i, r := range "SYSTEM" {
		binary.LittleEndian.PutUint16(buf[REGFFileNameOffset+2*i:], uint16(r))
	}
	PatchChecksum(buf)
	return buf
}

func TestParseEnvelopeSuccess(t *testing.T) {
	buf := envelopeBuf(0x3000)

	env, err := ParseEnvelope(buf)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.PrimarySequence != 3 || env.SecondarySequence != 3 {
		t.Fatalf("sequence mismatch: %+v", env)
	}
	if env.HiveBinsDataSize != 0x3000 {
		t.Fatalf("data size mismatch: %+v", env)
	}
	if env.TotalSize() != HeaderSize+0x3000 {
		t.Fatalf("TotalSize = %d", env.TotalSize())
	}
	if env.FileName != "SYSTEM" {
		t.Fatalf("file name = %q", env.FileName)
	}
	if !env.SizeValid || !env.SequencesMatch || !env.ChecksumValid {
		t.Fatalf("validity flags should all hold: %+v", env)
	}
}

func TestParseEnvelopeErrors(t *testing.T) {
	buf := envelopeBuf(0x1000)
	if _, err := ParseEnvelope(buf[:10]); err == nil {
		t.Fatalf("expected truncation error")
	}
	garbage := make([]byte, HeaderSize)
	if _, err := ParseEnvelope(garbage); err != ErrSignatureMismatch {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func TestParseEnvelopeDowngrades(t *testing.T) {
	// Sequence mismatch with a repaired checksum downgrades only consistency.
	buf := envelopeBuf(0x2000)
	binary.LittleEndian.PutUint32(buf[REGFSecondarySeqOffset:], 4)
	PatchChecksum(buf)
	env, err := ParseEnvelope(buf)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.SequencesMatch {
		t.Fatalf("sequences should not match")
	}
	if !env.ChecksumValid || !env.SizeValid {
		t.Fatalf("other flags should still hold: %+v", env)
	}

	// Corrupted checksum field downgrades only the checksum tier.
	buf = envelopeBuf(0x2000)
	binary.LittleEndian.PutUint32(buf[REGFCheckSumOffset:], 0xDEADBEEF)
	env, err = ParseEnvelope(buf)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.ChecksumValid {
		t.Fatalf("checksum should not validate")
	}
	if !env.SequencesMatch || !env.SizeValid {
		t.Fatalf("other flags should still hold: %+v", env)
	}

	// Misaligned and zero sizes clear SizeValid without rejecting.
	for _, size := range []uint32{0, 0x1234} {
		buf = envelopeBuf(size)
		env, err = ParseEnvelope(buf)
		if err != nil {
			t.Fatalf("ParseEnvelope(size=%d): %v", size, err)
		}
		if env.SizeValid {
			t.Fatalf("size %d should not be valid", size)
		}
	}
}

func TestChecksumSpecialValues(t *testing.T) {
	// An all-zero header XORs to 0, which Windows stores as 1.
	zero := make([]byte, HeaderSize)
	if got := Checksum(zero); got != 1 {
		t.Fatalf("Checksum(zero) = %d, want 1", got)
	}
}

func TestNormalizeSequences(t *testing.T) {
	buf := envelopeBuf(0x1000)
	binary.LittleEndian.PutUint32(buf[REGFSecondarySeqOffset:], 9)
	NormalizeSequences(buf)

	env, err := ParseEnvelope(buf)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if env.PrimarySequence != 3 || env.SecondarySequence != 3 {
		t.Fatalf("sequences not normalized: %+v", env)
	}
	if !env.ChecksumValid {
		t.Fatalf("checksum should validate after normalization")
	}
}
