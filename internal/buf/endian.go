// Package buf contains helpers for endian-safe decoding routines.
package buf

import "encoding/binary"

// U16LE reads a little-endian uint16 from b. Returns 0 when b is too short.
func U16LE(b []byte) uint16 {
	if len(b) < 2 {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

// U32LE reads a little-endian uint32 from b. Returns 0 when b is too short.
func U32LE(b []byte) uint32 {
	if len(b) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// U64LE reads a little-endian uint64 from b. Returns 0 when b is too short.
func U64LE(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// UVarLE reads an n-byte little-endian unsigned integer from b, n in [0,8].
// Returns 0, false when b is too short or n is out of range.
func UVarLE(b []byte, n int) (uint64, bool) {
	if n < 0 || n > 8 || len(b) < n {
		return 0, false
	}
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, true
}

// IVarLE reads an n-byte little-endian two's-complement integer from b,
// n in [0,8]. NTFS run lists store cluster deltas in this form.
// Returns 0, false when b is too short or n is out of range.
func IVarLE(b []byte, n int) (int64, bool) {
	v, ok := UVarLE(b, n)
	if !ok {
		return 0, false
	}
	if n > 0 && n < 8 && b[n-1]&0x80 != 0 {
		v |= ^uint64(0) << (8 * uint(n))
	}
	return int64(v), true
}
