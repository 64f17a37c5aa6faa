package format

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/joshuapare/hivecarve/internal/buf"
)

// DecodeFileName converts the NUL-padded UTF-16LE file name field of a REGF
// header into a Go string. The field records the tail of the hive's original
// path ("\??\C:\Windows\...\SOFTWARE" or similar). Carved headers frequently
// hold partly overwritten names, so decoding is lenient: the field is cut at
// the first NUL code unit and undecodable units come back as replacement
// characters rather than an error.
func DecodeFileName(b []byte) string {
	end := len(b) - len(b)%2
	for i := 0; i+1 < len(b); i += 2 {
		if buf.U16LE(b[i:]) == 0 {
			end = i
			break
		}
	}
	return DecodeUTF16(b[:end])
}

// DecodeUTF16 converts a UTF-16LE byte sequence of known length into a Go
// string. Undecodable units come back as replacement characters; a trailing
// odd byte is dropped. Used for REGF file names and NTFS attribute names,
// both of which carry explicit lengths rather than terminators.
func DecodeUTF16(b []byte) string {
	b = b[:len(b)-len(b)%2]
	if len(b) == 0 {
		return ""
	}
	decoded, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b)
	if err != nil {
		return ""
	}
	return string(decoded)
}
