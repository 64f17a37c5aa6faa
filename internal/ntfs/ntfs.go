// Package ntfs decodes the slice of NTFS needed for metadata-assisted hive
// recovery: the boot sector, master file table records with their update
// sequence fixups, and the run lists of non-resident data attributes.
// Everything else about the filesystem is deliberately out of reach.
package ntfs

import "errors"

var (
	// ErrBadBootSector indicates the buffer is not an NTFS boot sector or
	// declares impossible geometry.
	ErrBadBootSector = errors.New("ntfs: not an NTFS boot sector")
	// ErrBadRecord indicates a file record whose header or attribute chain
	// is structurally broken.
	ErrBadRecord = errors.New("ntfs: malformed file record")
	// ErrTornRecord indicates a file record whose update sequence check
	// failed, meaning a multi-sector write was interrupted.
	ErrTornRecord = errors.New("ntfs: file record failed update sequence check")
	// ErrBadRunList indicates a run list that ends without a terminator or
	// encodes an impossible cluster position.
	ErrBadRunList = errors.New("ntfs: malformed run list")
	// ErrNoMFT indicates the master file table's own record could not be
	// read or carries no usable data attribute.
	ErrNoMFT = errors.New("ntfs: cannot locate the master file table")
)

// Boot sector layout.
const (
	BootSectorLen = 512

	bootOEMOffset               = 0x03
	bootBytesPerSectorOffset    = 0x0B
	bootSectorsPerClusterOffset = 0x0D
	bootMediaOffset             = 0x15
	bootTotalSectorsOffset      = 0x28
	bootMFTClusterOffset        = 0x30
	bootMFTMirrorClusterOffset  = 0x38
	bootClustersPerRecordOffset = 0x40
	bootSignatureOffset         = 0x1FE

	bootSignature = 0xAA55
)

var bootOEM = []byte("NTFS    ")

// File record layout.
const (
	recordFixupOffsetOffset = 0x04
	recordFixupCountOffset  = 0x06
	recordFirstAttrOffset   = 0x14
	recordFlagsOffset       = 0x16
	recordUsedSizeOffset    = 0x18
	recordBaseRefOffset     = 0x20

	recordFlagInUse     = 0x0001
	recordFlagDirectory = 0x0002

	recordHeaderLen = 0x2A
)

var recordSignature = []byte("FILE")

// Attribute layout. Only $FILE_NAME and $DATA are interpreted.
const (
	attrTypeFileName = 0x30
	attrTypeData     = 0x80
	attrTypeEnd      = 0xFFFFFFFF

	attrLengthOffset      = 0x04
	attrNonResidentOffset = 0x08
	attrNameLenOffset     = 0x09

	attrValueLenOffset    = 0x10 // resident form
	attrValueOffsetOffset = 0x14

	attrRunListOffsetOffset = 0x20 // non-resident form
	attrRealSizeOffset      = 0x30
	attrNonResidentLen      = 0x40

	fnNameLenOffset   = 0x40
	fnNamespaceOffset = 0x41
	fnNameOffset      = 0x42

	fnNamespaceDOS = 2
)
