package ntfs

import (
	"bytes"
	"math"

	"github.com/joshuapare/hivecarve/internal/buf"
)

// maxClusterSize caps the decoded cluster size. NTFS allows up to 2 MiB;
// anything larger marks a corrupt or fabricated boot sector.
const maxClusterSize = 2 << 20

// BootSector is the decoded geometry of one NTFS volume.
type BootSector struct {
	BytesPerSector    int64
	SectorsPerCluster int64
	TotalSectors      int64
	MFTCluster        int64
	MFTMirrorCluster  int64
	RecordSize        int64 // bytes per file record
}

// ClusterSize returns the volume's allocation unit in bytes.
func (bs BootSector) ClusterSize() int64 {
	return bs.BytesPerSector * bs.SectorsPerCluster
}

// ParseBootSector decodes and validates an NTFS boot sector. Both the
// sectors-per-cluster byte and the clusters-per-record byte use an exponent
// form for values past their direct range: a byte above 0x7F is a negative
// two's-complement exponent n meaning 2^-n units.
func ParseBootSector(b []byte) (BootSector, error) {
	if len(b) < BootSectorLen {
		return BootSector{}, ErrBadBootSector
	}
	if !bytes.Equal(b[bootOEMOffset:bootOEMOffset+8], bootOEM) {
		return BootSector{}, ErrBadBootSector
	}
	if buf.U16LE(b[bootSignatureOffset:]) != bootSignature {
		return BootSector{}, ErrBadBootSector
	}

	bps := int64(buf.U16LE(b[bootBytesPerSectorOffset:]))
	if bps < 256 || bps > 4096 || bps&(bps-1) != 0 {
		return BootSector{}, ErrBadBootSector
	}

	spc, ok := exponentByte(b[bootSectorsPerClusterOffset], 1)
	if !ok {
		return BootSector{}, ErrBadBootSector
	}
	clusterSize := bps * spc
	if clusterSize > maxClusterSize {
		return BootSector{}, ErrBadBootSector
	}

	totalSectors := buf.U64LE(b[bootTotalSectorsOffset:])
	mftCluster := buf.U64LE(b[bootMFTClusterOffset:])
	mirrorCluster := buf.U64LE(b[bootMFTMirrorClusterOffset:])
	if totalSectors == 0 || totalSectors > math.MaxInt64 ||
		mftCluster > math.MaxInt64 || mirrorCluster > math.MaxInt64 {
		return BootSector{}, ErrBadBootSector
	}

	recordSize, ok := exponentByte(b[bootClustersPerRecordOffset], clusterSize)
	if !ok || recordSize < 256 || recordSize > 64<<10 || recordSize%bps != 0 {
		return BootSector{}, ErrBadBootSector
	}

	return BootSector{
		BytesPerSector:    bps,
		SectorsPerCluster: spc,
		TotalSectors:      int64(totalSectors),
		MFTCluster:        int64(mftCluster),
		MFTMirrorCluster:  int64(mirrorCluster),
		RecordSize:        recordSize,
	}, nil
}

// exponentByte decodes a geometry byte: values through 0x7F are direct
// counts scaled by unit, values above are a two's-complement negative
// exponent -n selecting 2^n in the field's final unit.
func exponentByte(raw byte, unit int64) (int64, bool) {
	if raw == 0 {
		return 0, false
	}
	if raw <= 0x7F {
		return int64(raw) * unit, true
	}
	shift := 256 - int(raw)
	if shift > 30 {
		return 0, false
	}
	return 1 << shift, true
}
