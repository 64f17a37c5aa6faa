package testutil

import "github.com/joshuapare/hivecarve/internal/format"

// literalChunkMax is the most a token-encoded chunk can carry using literal
// tokens only: one tag byte per eight literals must still fit the 4096-byte
// payload bound.
const literalChunkMax = 3632

// CompressLZNT1 encodes data as an LZNT1 stream: a token-encoded first chunk
// built from literal tokens, stored chunks for the rest, and a zero
// terminator. Nothing actually shrinks, but the stream decodes byte-exactly
// and its first chunk carries the compressed flag.
func CompressLZNT1(data []byte) []byte {
	if len(data) == 0 {
		return []byte{0, 0}
	}
	first := len(data)
	if first > literalChunkMax {
		first = literalChunkMax
	}
	out := appendTokenChunk(nil, data[:first])
	data = data[first:]
	for len(data) > 0 {
		n := len(data)
		if n > format.LZNT1MaxChunkData {
			n = format.LZNT1MaxChunkData
		}
		out = appendStoredChunk(out, data[:n])
		data = data[n:]
	}
	return append(out, 0, 0)
}

// appendTokenChunk emits chunk as token-encoded data: a zero tag byte before
// every group of eight literals.
func appendTokenChunk(dst, chunk []byte) []byte {
	var payload []byte
	for i := 0; i < len(chunk); i += 8 {
		end := i + 8
		if end > len(chunk) {
			end = len(chunk)
		}
		payload = append(payload, 0)
		payload = append(payload, chunk[i:end]...)
	}
	header := uint16(len(payload)-1) |
		format.LZNT1Signature<<format.LZNT1SignatureShift |
		format.LZNT1CompressedFlag
	dst = append(dst, byte(header), byte(header>>8))
	return append(dst, payload...)
}

func appendStoredChunk(dst, chunk []byte) []byte {
	header := uint16(len(chunk)-1) | format.LZNT1Signature<<format.LZNT1SignatureShift
	dst = append(dst, byte(header), byte(header>>8))
	return append(dst, chunk...)
}
