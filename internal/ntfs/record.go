package ntfs

import (
	"bytes"
	"math"

	"github.com/joshuapare/hivecarve/internal/buf"
	"github.com/joshuapare/hivecarve/internal/format"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// Record carries the decoded pieces of one file record that matter for
// reassembly. Records describing directories, attribute extensions, or files
// without a non-resident data attribute decode successfully but end up with
// no DataRuns.
type Record struct {
	InUse       bool
	IsDirectory bool
	Extension   bool // continuation of another record's attribute list
	Name        string
	DataSize    int64           // real byte size of the unnamed data attribute
	DataRuns    []types.FileRun // nil when the data attribute is resident or absent
}

// ParseRecord decodes b as one file record with the given sector size,
// verifying and undoing its update sequence fixups. b itself is not
// modified. Torn multi-sector writes surface as ErrTornRecord so callers can
// skip the record rather than trust half-updated contents.
func ParseRecord(b []byte, bytesPerSector int64) (Record, error) {
	if int64(len(b)) < recordHeaderLen || bytesPerSector <= 0 ||
		int64(len(b))%bytesPerSector != 0 {
		return Record{}, ErrBadRecord
	}
	if !bytes.Equal(b[:4], recordSignature) {
		return Record{}, ErrBadRecord
	}

	rec := make([]byte, len(b))
	copy(rec, b)
	if err := applyFixups(rec, bytesPerSector); err != nil {
		return Record{}, err
	}

	flags := buf.U16LE(rec[recordFlagsOffset:])
	r := Record{
		InUse:       flags&recordFlagInUse != 0,
		IsDirectory: flags&recordFlagDirectory != 0,
		Extension:   buf.U64LE(rec[recordBaseRefOffset:]) != 0,
	}

	used := int(buf.U32LE(rec[recordUsedSizeOffset:]))
	if used <= 0 || used > len(rec) {
		used = len(rec)
	}

	// Walk the attribute chain. A DOS short name only sticks until a better
	// namespace shows up.
	nameNS := byte(0xFF)
	off := int(buf.U16LE(rec[recordFirstAttrOffset:]))
	for {
		if !buf.Has(rec[:used], off, 8) {
			return Record{}, ErrBadRecord
		}
		typ := buf.U32LE(rec[off:])
		if typ == attrTypeEnd {
			break
		}
		length := int(buf.U32LE(rec[off+attrLengthOffset:]))
		if length < 0x18 || length%8 != 0 || !buf.Has(rec[:used], off, length) {
			return Record{}, ErrBadRecord
		}
		attr := rec[off : off+length]
		off += length

		switch typ {
		case attrTypeFileName:
			name, ns, ok := parseFileNameAttr(attr)
			if ok && (nameNS == 0xFF || (nameNS == fnNamespaceDOS && ns != fnNamespaceDOS)) {
				r.Name = name
				nameNS = ns
			}
		case attrTypeData:
			if attr[attrNameLenOffset] != 0 {
				continue // alternate stream, not the file body
			}
			if attr[attrNonResidentOffset] == 0 {
				r.DataSize = int64(buf.U32LE(attr[attrValueLenOffset:]))
				continue
			}
			size, runs, err := parseDataAttr(attr)
			if err != nil {
				return Record{}, err
			}
			r.DataSize = size
			r.DataRuns = runs
		}
	}
	return r, nil
}

// applyFixups verifies the update sequence number at the tail of every
// sector and restores the bytes it displaced, in place.
func applyFixups(rec []byte, bytesPerSector int64) error {
	fixupOff := int(buf.U16LE(rec[recordFixupOffsetOffset:]))
	fixupCount := int(buf.U16LE(rec[recordFixupCountOffset:]))
	if fixupCount < 2 || int64(fixupCount-1)*bytesPerSector != int64(len(rec)) {
		return ErrBadRecord
	}
	if !buf.Has(rec, fixupOff, fixupCount*2) {
		return ErrBadRecord
	}
	usn := buf.U16LE(rec[fixupOff:])
	for i := 1; i < fixupCount; i++ {
		end := int64(i) * bytesPerSector
		if buf.U16LE(rec[end-2:]) != usn {
			return ErrTornRecord
		}
		copy(rec[end-2:end], rec[fixupOff+2*i:fixupOff+2*i+2])
	}
	return nil
}

// parseFileNameAttr extracts the name and namespace from a resident
// $FILE_NAME attribute. Malformed attributes report ok=false rather than
// failing the whole record, since a damaged name does not invalidate the
// run list.
func parseFileNameAttr(attr []byte) (name string, ns byte, ok bool) {
	if attr[attrNonResidentOffset] != 0 {
		return "", 0, false
	}
	valueLen := int(buf.U32LE(attr[attrValueLenOffset:]))
	valueOff := int(buf.U16LE(attr[attrValueOffsetOffset:]))
	if !buf.Has(attr, valueOff, valueLen) || valueLen < fnNameOffset {
		return "", 0, false
	}
	value := attr[valueOff : valueOff+valueLen]
	nameLen := int(value[fnNameLenOffset])
	if !buf.Has(value, fnNameOffset, nameLen*2) {
		return "", 0, false
	}
	name = format.DecodeUTF16(value[fnNameOffset : fnNameOffset+nameLen*2])
	return name, value[fnNamespaceOffset], name != ""
}

// parseDataAttr decodes the non-resident form of the unnamed data attribute:
// its real size and its run list.
func parseDataAttr(attr []byte) (int64, []types.FileRun, error) {
	if len(attr) < attrNonResidentLen {
		return 0, nil, ErrBadRecord
	}
	size := buf.U64LE(attr[attrRealSizeOffset:])
	if size > math.MaxInt64 {
		return 0, nil, ErrBadRecord
	}
	runOff := int(buf.U16LE(attr[attrRunListOffsetOffset:]))
	if !buf.Has(attr, runOff, 1) {
		return 0, nil, ErrBadRecord
	}
	runs, err := DecodeRunList(attr[runOff:])
	if err != nil {
		return 0, nil, err
	}
	return int64(size), runs, nil
}
