// Package testutil synthesizes hive images, raw streams, and NTFS volumes
// for tests. Builders are deterministic: the same spec always yields the
// same bytes, so round-trip comparisons are meaningful.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joshuapare/hivecarve/internal/format"
)

// HiveSpec describes a synthetic hive.
type HiveSpec struct {
	BinsSize    uint32 // declared bins-space size in the header
	FileName    string // embedded path tail, UTF-16 encoded into the header
	SeqMismatch bool   // secondary sequence differs from primary
	BadChecksum bool   // stored checksum deliberately wrong
	Bins        []BinSpec
	// BodyTruncate, when positive, clips the body to that many bytes after
	// assembly. The header keeps its full declared size.
	BodyTruncate int
}

// BinSpec describes one bin of a synthetic hive body.
type BinSpec struct {
	Offset uint32 // logical offset echoed in the bin header
	Size   uint32
	Fill   byte
}

// BuildHive assembles a hive image from spec. With no explicit bins the body
// is tiled with 4096-byte bins covering the declared size, each filled with
// a byte derived from its logical offset. An empty FileName defaults to the
// SYSTEM hive path.
func BuildHive(spec HiveSpec) []byte {
	if spec.FileName == "" {
		spec.FileName = `\Windows\System32\Config\SYSTEM`
	}
	bins := spec.Bins
	if bins == nil {
		for off := uint32(0); off < spec.BinsSize; off += format.HBINAlignment {
			bins = append(bins, BinSpec{
				Offset: off,
				Size:   format.HBINAlignment,
				Fill:   byte(0x11 + off>>12),
			})
		}
	}

	var body []byte
	for _, bin := range bins {
		body = append(body, BuildBin(bin.Offset, bin.Size, bin.Fill)...)
	}

	buf := make([]byte, format.HeaderSize+len(body))
	copy(buf, format.REGFSignature)
	format.PutU32(buf, format.REGFPrimarySeqOffset, 2)
	secondary := uint32(2)
	if spec.SeqMismatch {
		secondary = 3
	}
	format.PutU32(buf, format.REGFSecondarySeqOffset, secondary)
	format.PutU64(buf, format.REGFTimeStampOffset, format.TimeToFiletime(time.Date(2025, 2, 7, 9, 30, 0, 0, time.UTC)))
	format.PutU32(buf, format.REGFMajorVersionOffset, 1)
	format.PutU32(buf, format.REGFMinorVersionOffset, 5)
	format.PutU32(buf, format.REGFRootCellOffset, 0x20)
	format.PutU32(buf, format.REGFDataSizeOffset, spec.BinsSize)
	encodeName(buf[format.REGFFileNameOffset:format.REGFFileNameOffset+format.REGFFileNameSize], spec.FileName)
	copy(buf[format.HeaderSize:], body)

	format.PatchChecksum(buf)
	if spec.BadChecksum {
		buf[format.REGFCheckSumOffset] ^= 0xFF
	}

	if spec.BodyTruncate > 0 && spec.BodyTruncate < len(body) {
		buf = buf[:format.HeaderSize+spec.BodyTruncate]
	}
	return buf
}

// BuildBin assembles a single bin: signature, logical offset echo, size, and
// a free cell spanning the payload with fill bytes behind the cell header.
func BuildBin(logical, size uint32, fill byte) []byte {
	b := make([]byte, size)
	copy(b, format.HBINSignature)
	format.PutU32(b, format.HBINOffsetEchoOffset, logical)
	format.PutU32(b, format.HBINSizeOffset, size)
	if size > format.HBINHeaderSize+4 {
		format.PutU32(b, format.HBINHeaderSize, size-format.HBINHeaderSize)
		for i := format.HBINHeaderSize + 4; i < int(size); i++ {
			b[i] = fill
		}
	}
	return b
}

// encodeName writes s as UTF-16LE into dst, NUL-padded. Longer names keep
// their tail, matching how Windows clips the field.
func encodeName(dst []byte, s string) {
	runes := []rune(s)
	if max := len(dst) / 2; len(runes) > max {
		runes = runes[len(runes)-max:]
	}
	for i, r := range runes {
		if r > 0xFFFF {
			r = 0xFFFD
		}
		format.PutU16(dst, 2*i, uint16(r))
	}
}

// Image assembles a raw test stream with structures placed at chosen
// offsets. Unwritten space stays zero.
type Image struct {
	buf []byte
}

// NewImage returns a zero-filled image of the given size.
func NewImage(size int64) *Image {
	return &Image{buf: make([]byte, size)}
}

// Place copies p into the image at off. Out-of-range placement panics; a
// spec that does not fit is a broken test, not a runtime condition.
func (im *Image) Place(off int64, p []byte) *Image {
	copy(im.buf[off:off+int64(len(p))], p)
	return im
}

// Bytes returns the assembled stream.
func (im *Image) Bytes() []byte { return im.buf }

// WriteTemp writes data to a file under t.TempDir and returns its path.
func WriteTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
