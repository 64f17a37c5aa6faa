package format

import "github.com/joshuapare/hivecarve/internal/buf"

// LooksCompressed reports whether b plausibly begins an LZNT1 stream: a chunk
// header with the fixed signature bits, the compressed flag, and a payload
// large enough to expand into anything signature-bearing. Used as the cheap
// gate before attempting a real decode during a decompression-enabled scan.
func LooksCompressed(b []byte) bool {
	if len(b) < LZNT1ChunkHeaderSize {
		return false
	}
	header := buf.U16LE(b)
	if (header&LZNT1SignatureMask)>>LZNT1SignatureShift != LZNT1Signature {
		return false
	}
	if header&LZNT1CompressedFlag == 0 {
		return false
	}
	return int(header&LZNT1ChunkSizeMask)+1 >= 8
}

// DecompressLZNT1 decodes a sequence of LZNT1 chunks from src, stopping once
// limit bytes have been produced (limit <= 0 means unbounded; the last chunk
// may overshoot by its own size). It returns the decoded bytes and the number
// of source bytes consumed.
//
// The decoder is deliberately tolerant of damaged tails: once the first chunk
// has produced output, any later malformation (bad chunk signature, clipped
// payload, impossible back-reference) ends the decode and returns everything
// recovered so far. Only a stream whose first chunk yields nothing is
// rejected, with ErrNotCompressed.
//
// Chunk format, per header uint16 (little-endian):
//
//	bits  0..11  payload length - 1
//	bits 12..14  signature, always 3
//	bit     15   payload is token-encoded (clear = stored literally)
//
// A zero header terminates the stream. Inside a token-encoded payload, tag
// bytes interleave with tokens, one tag bit per token: 0 = literal byte,
// 1 = 16-bit copy token. The copy token's displacement/length split widens
// toward displacement as the chunk's uncompressed position grows, and a
// back-reference never reaches before the current chunk's start.
func DecompressLZNT1(src []byte, limit int) ([]byte, int, error) {
	var out []byte
	pos := 0

	for pos+LZNT1ChunkHeaderSize <= len(src) {
		if limit > 0 && len(out) >= limit {
			break
		}
		header := buf.U16LE(src[pos:])
		if header == 0 {
			pos += LZNT1ChunkHeaderSize
			break
		}
		if (header&LZNT1SignatureMask)>>LZNT1SignatureShift != LZNT1Signature {
			break
		}
		payloadLen := int(header&LZNT1ChunkSizeMask) + 1
		chunkEnd := pos + LZNT1ChunkHeaderSize + payloadLen
		clipped := false
		if chunkEnd > len(src) {
			chunkEnd = len(src)
			clipped = true
		}
		chunkStart := len(out)

		if header&LZNT1CompressedFlag == 0 {
			out = append(out, src[pos+LZNT1ChunkHeaderSize:chunkEnd]...)
			pos = chunkEnd
			if clipped {
				break
			}
			continue
		}

		p := pos + LZNT1ChunkHeaderSize
		corrupt := false
	tokens:
		for p < chunkEnd {
			tags := src[p]
			p++
			for bit := 0; bit < 8 && p < chunkEnd; bit++ {
				if tags&(1<<uint(bit)) == 0 {
					out = append(out, src[p])
					p++
					continue
				}
				if p+2 > chunkEnd {
					corrupt = true
					break tokens
				}
				token := buf.U16LE(src[p:])
				p += 2

				produced := len(out) - chunkStart
				if produced == 0 {
					corrupt = true
					break tokens
				}
				lenMask := 0x0FFF
				shift := uint(12)
				for i := produced - 1; i >= 0x10; i >>= 1 {
					lenMask >>= 1
					shift--
				}
				disp := int(token>>shift) + 1
				length := (int(token) & lenMask) + LZNT1MinCopyLength
				start := len(out) - disp
				if start < chunkStart || produced+length > LZNT1MaxChunkData {
					corrupt = true
					break tokens
				}
				// Overlapping copies replicate, so this must stay byte-wise.
				for i := 0; i < length; i++ {
					out = append(out, out[start+i])
				}
			}
		}
		pos = chunkEnd
		if corrupt || clipped || len(out)-chunkStart > LZNT1MaxChunkData {
			break
		}
	}

	if len(out) == 0 {
		return nil, 0, ErrNotCompressed
	}
	return out, pos, nil
}
