package format

import "errors"

var (
	// ErrSignatureMismatch indicates a structure had an unexpected magic.
	ErrSignatureMismatch = errors.New("format: signature mismatch")
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrMalformedSize indicates a declared size that is zero, misaligned, or
	// otherwise impossible. The structure may still bound a truncated result.
	ErrMalformedSize = errors.New("format: malformed size field")
	// ErrNotCompressed indicates a buffer that does not begin with a plausible
	// LZNT1 chunk.
	ErrNotCompressed = errors.New("format: not an LZNT1 stream")
)
