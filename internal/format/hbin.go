package format

import (
	"bytes"
	"fmt"

	"github.com/joshuapare/hivecarve/internal/buf"
)

// Block describes a hive bin as seen by the carver. Each bin begins with a
// 0x20-byte header with the following structure (little-endian):
//
//	Offset  Size  Field
//	0x00    4     'h' 'b' 'i' 'n'
//	0x04    4     Offset of this bin relative to the first bin (logical offset)
//	0x08    4     Size of bin, multiple of 0x1000
//	0x0C    4     Reserved / unknown
//	...
//	0x1C    4     Next bin offset (often equal to size)
//
// The logical offset is the load-bearing field for reassembly: it states where
// the bin belongs inside the hive's own address space no matter where the bin
// physically sits in the stream.
type Block struct {
	LogicalOffset uint32
	Size          uint32
}

// ParseBlock validates the bin header at the start of b and extracts the
// self-described placement fields. Returns ErrTruncated when b cannot hold a
// bin header, ErrSignatureMismatch when the magic is absent, and
// ErrMalformedSize when the declared size is zero or misaligned.
func ParseBlock(b []byte) (Block, error) {
	if len(b) < HBINHeaderSize {
		return Block{}, fmt.Errorf("hbin: %w", ErrTruncated)
	}
	if !bytes.Equal(b[:HBINSignatureSize], HBINSignature) {
		return Block{}, fmt.Errorf("hbin: %w", ErrSignatureMismatch)
	}
	echo := buf.U32LE(b[HBINOffsetEchoOffset:])
	size := buf.U32LE(b[HBINSizeOffset:])
	if size == 0 || size%HBINAlignment != 0 {
		return Block{}, fmt.Errorf("hbin: size %d: %w", size, ErrMalformedSize)
	}
	if echo%HBINAlignment != 0 {
		return Block{}, fmt.Errorf("hbin: logical offset %d: %w", echo, ErrMalformedSize)
	}
	return Block{LogicalOffset: echo, Size: size}, nil
}

// IsBlockShaped reports whether b begins with a structurally plausible bin
// header. Shorthand used on the scan's hot path.
func IsBlockShaped(b []byte) bool {
	_, err := ParseBlock(b)
	return err == nil
}
