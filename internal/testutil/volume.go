package testutil

import (
	"github.com/joshuapare/hivecarve/internal/format"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// BootSpec describes a synthetic NTFS boot sector. Zero fields take the
// common defaults: 512-byte sectors, 8-sector clusters, 1024-byte records.
type BootSpec struct {
	BytesPerSector    int
	SectorsPerCluster int
	MFTCluster        int64
	TotalSectors      int64
	RecordSize        int
}

func (s BootSpec) withDefaults() BootSpec {
	if s.BytesPerSector == 0 {
		s.BytesPerSector = 512
	}
	if s.SectorsPerCluster == 0 {
		s.SectorsPerCluster = 8
	}
	if s.TotalSectors == 0 {
		s.TotalSectors = 1 << 20
	}
	if s.RecordSize == 0 {
		s.RecordSize = 1024
	}
	return s
}

// BuildBootSector assembles a boot sector from spec.
func BuildBootSector(spec BootSpec) []byte {
	spec = spec.withDefaults()
	b := make([]byte, 512)
	copy(b[0x03:], "NTFS    ")
	format.PutU16(b, 0x0B, uint16(spec.BytesPerSector))
	b[0x0D] = byte(spec.SectorsPerCluster)
	b[0x15] = 0xF8
	format.PutU64(b, 0x28, uint64(spec.TotalSectors))
	format.PutU64(b, 0x30, uint64(spec.MFTCluster))
	format.PutU64(b, 0x38, uint64(spec.MFTCluster+1))
	b[0x40] = exponentForm(spec.RecordSize, spec.BytesPerSector*spec.SectorsPerCluster)
	b[0x44] = exponentForm(4096, spec.BytesPerSector*spec.SectorsPerCluster)
	b[0x1FE] = 0x55
	b[0x1FF] = 0xAA
	return b
}

// exponentForm encodes a byte count as either a direct cluster multiple or
// the negative power-of-two form.
func exponentForm(size, clusterSize int) byte {
	if size >= clusterSize && size%clusterSize == 0 && size/clusterSize < 0x80 {
		return byte(size / clusterSize)
	}
	exp := 0
	for v := size; v > 1; v >>= 1 {
		exp++
	}
	return byte(256 - exp)
}

// RecordSpec describes one synthetic file record.
type RecordSpec struct {
	Name         string
	Namespace    byte   // 0 means Win32
	DOSName      string // extra 8.3 name attribute, emitted before Name
	InUse        bool
	Directory    bool
	BaseRef      uint64
	DataSize     int64
	Runs         []types.FileRun // non-resident data attribute when set
	ResidentData []byte          // resident data attribute when set
	OmitData     bool
	Torn         bool // corrupt one sector tail so the fixup check fails
}

// BuildRecord assembles a file record with its update sequence fixups
// installed.
func BuildRecord(spec RecordSpec, recordSize, bytesPerSector int) []byte {
	b := make([]byte, recordSize)
	copy(b, "FILE")

	fixupCount := recordSize/bytesPerSector + 1
	fixupOff := 0x30
	format.PutU16(b, 0x04, uint16(fixupOff))
	format.PutU16(b, 0x06, uint16(fixupCount))
	format.PutU16(b, 0x10, 1) // sequence value
	format.PutU16(b, 0x12, 1) // hard links
	var flags uint16
	if spec.InUse {
		flags |= 0x0001
	}
	if spec.Directory {
		flags |= 0x0002
	}
	format.PutU16(b, 0x16, flags)
	format.PutU32(b, 0x1C, uint32(recordSize))
	format.PutU64(b, 0x20, spec.BaseRef)

	attrOff := fixupOff + 2*fixupCount
	attrOff = (attrOff + 7) &^ 7
	format.PutU16(b, 0x14, uint16(attrOff))

	if spec.DOSName != "" {
		attrOff += putFileNameAttr(b[attrOff:], spec.DOSName, 2)
	}
	if spec.Name != "" {
		ns := spec.Namespace
		if ns == 0 {
			ns = 1
		}
		attrOff += putFileNameAttr(b[attrOff:], spec.Name, ns)
	}
	if !spec.OmitData {
		if spec.Runs != nil {
			attrOff += putDataAttr(b[attrOff:], spec.DataSize, spec.Runs)
		} else {
			attrOff += putResidentDataAttr(b[attrOff:], spec.ResidentData)
		}
	}
	format.PutU32(b, attrOff, 0xFFFFFFFF)
	format.PutU32(b, 0x18, uint32(attrOff+8)) // bytes in use

	// Install fixups: stash each sector tail, then stamp the sequence number.
	usn := uint16(0x0001)
	format.PutU16(b, fixupOff, usn)
	for i := 1; i < fixupCount; i++ {
		end := i * bytesPerSector
		copy(b[fixupOff+2*i:], b[end-2:end])
		format.PutU16(b, end-2, usn)
	}
	if spec.Torn {
		format.PutU16(b, bytesPerSector-2, usn^0xFFFF)
	}
	return b
}

func putFileNameAttr(dst []byte, name string, ns byte) int {
	value := make([]byte, 0x42+2*len([]rune(name)))
	value[0x40] = byte(len([]rune(name)))
	value[0x41] = ns
	for i, r := range []rune(name) {
		format.PutU16(value, 0x42+2*i, uint16(r))
	}

	length := align8(0x18 + len(value))
	format.PutU32(dst, 0, 0x30)
	format.PutU32(dst, 0x04, uint32(length))
	dst[0x08] = 0 // resident
	format.PutU16(dst, 0x0E, 2)
	format.PutU32(dst, 0x10, uint32(len(value)))
	format.PutU16(dst, 0x14, 0x18)
	copy(dst[0x18:], value)
	return length
}

func putDataAttr(dst []byte, realSize int64, runs []types.FileRun) int {
	encoded := EncodeRuns(runs)
	length := align8(0x40 + len(encoded))

	var clusters int64
	for _, r := range runs {
		clusters += r.Count
	}

	format.PutU32(dst, 0, 0x80)
	format.PutU32(dst, 0x04, uint32(length))
	dst[0x08] = 1 // non-resident
	format.PutU16(dst, 0x0E, 3)
	format.PutU64(dst, 0x18, uint64(clusters-1)) // last VCN
	format.PutU16(dst, 0x20, 0x40)               // run list offset
	format.PutU64(dst, 0x28, uint64(realSize))   // allocated, close enough for tests
	format.PutU64(dst, 0x30, uint64(realSize))
	format.PutU64(dst, 0x38, uint64(realSize))
	copy(dst[0x40:], encoded)
	return length
}

func putResidentDataAttr(dst []byte, value []byte) int {
	length := align8(0x18 + len(value))
	format.PutU32(dst, 0, 0x80)
	format.PutU32(dst, 0x04, uint32(length))
	dst[0x08] = 0
	format.PutU16(dst, 0x0E, 3)
	format.PutU32(dst, 0x10, uint32(len(value)))
	format.PutU16(dst, 0x14, 0x18)
	copy(dst[0x18:], value)
	return length
}

func align8(n int) int { return (n + 7) &^ 7 }

// EncodeRuns produces the run-list encoding read back by the volume decoder:
// per run, a header byte sizing the count and offset fields, the cluster
// count, and a signed delta from the previous run's cluster. Sparse runs
// (Cluster -1) carry no offset field. A zero byte terminates.
func EncodeRuns(runs []types.FileRun) []byte {
	var out []byte
	prev := int64(0)
	for _, r := range runs {
		countSize := unsignedWidth(uint64(r.Count))
		if r.Cluster < 0 {
			out = append(out, byte(countSize))
			out = appendLE(out, uint64(r.Count), countSize)
			continue
		}
		delta := r.Cluster - prev
		offSize := signedWidth(delta)
		out = append(out, byte(offSize<<4|countSize))
		out = appendLE(out, uint64(r.Count), countSize)
		out = appendLE(out, uint64(delta), offSize)
		prev = r.Cluster
	}
	return append(out, 0)
}

func unsignedWidth(v uint64) int {
	n := 1
	for v > 0xFF {
		v >>= 8
		n++
	}
	return n
}

func signedWidth(v int64) int {
	for n := 1; n < 8; n++ {
		lo := -(int64(1) << (8*n - 1))
		hi := int64(1)<<(8*n-1) - 1
		if v >= lo && v <= hi {
			return n
		}
	}
	return 8
}

func appendLE(out []byte, v uint64, n int) []byte {
	for i := 0; i < n; i++ {
		out = append(out, byte(v>>(8*i)))
	}
	return out
}

// VolumeSpec describes a synthetic NTFS volume: geometry plus the file
// records to place after the table's own record zero.
type VolumeSpec struct {
	Boot  BootSpec
	Files []RecordSpec
	// MFTRuns overrides the table's physical layout, enabling fragmented
	// and sparse tables. Defaults to one contiguous run at Boot.MFTCluster.
	MFTRuns []types.FileRun
}

// BuiltVolume is the assembled volume plus the geometry tests need to place
// file content at run-addressed offsets.
type BuiltVolume struct {
	Bytes       []byte
	ClusterSize int64
	RecordSize  int64
}

// BuildVolume assembles a boot sector and a file table. Record zero always
// describes the table itself; spec.Files fill the following slots. The
// returned buffer extends to the end of the table's last run; file content
// addressed beyond it is the caller's business.
func BuildVolume(spec VolumeSpec) BuiltVolume {
	boot := spec.Boot.withDefaults()
	if boot.MFTCluster == 0 {
		boot.MFTCluster = 4
	}
	clusterSize := int64(boot.BytesPerSector * boot.SectorsPerCluster)
	recordSize := int64(boot.RecordSize)

	recordCount := int64(1 + len(spec.Files))
	tableBytes := recordCount * recordSize

	runs := spec.MFTRuns
	if runs == nil {
		clusters := (tableBytes + clusterSize - 1) / clusterSize
		runs = []types.FileRun{{Cluster: boot.MFTCluster, Count: clusters}}
	} else {
		boot.MFTCluster = runs[0].Cluster
	}

	end := int64(512)
	for _, r := range runs {
		if r.Cluster < 0 {
			continue
		}
		if e := (r.Cluster + r.Count) * clusterSize; e > end {
			end = e
		}
	}
	vol := make([]byte, end)
	copy(vol, BuildBootSector(boot))

	mft := RecordSpec{Name: "$MFT", InUse: true, DataSize: tableBytes, Runs: runs}
	records := append([]RecordSpec{mft}, spec.Files...)
	for i, rs := range records {
		rec := BuildRecord(rs, int(recordSize), boot.BytesPerSector)
		off, ok := tableOffset(runs, clusterSize, int64(i)*recordSize)
		if ok {
			copy(vol[off:], rec)
		}
	}
	return BuiltVolume{Bytes: vol, ClusterSize: clusterSize, RecordSize: recordSize}
}

// tableOffset maps a logical table offset to its physical position in the
// volume. Sparse stretches report ok = false.
func tableOffset(runs []types.FileRun, clusterSize, logical int64) (int64, bool) {
	for _, r := range runs {
		n := r.Count * clusterSize
		if logical < n {
			if r.Cluster < 0 {
				return 0, false
			}
			return r.Cluster*clusterSize + logical, true
		}
		logical -= n
	}
	return 0, false
}
