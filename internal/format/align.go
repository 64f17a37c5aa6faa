package format

// Alignment utilities for Windows Registry hive format.
// Hive bins and scan candidates sit on 4 KiB boundaries.

// AlignHBIN returns n aligned up to the next 4KB (4096-byte) boundary.
//
// Example:
//
//	AlignHBIN(1)    = 4096
//	AlignHBIN(4096) = 4096
//	AlignHBIN(4097) = 8192
func AlignHBIN(n int64) int64 {
	return (n + HBINAlignmentMask) & ^int64(HBINAlignmentMask)
}

// AlignHBINDown returns n aligned down to the previous 4KB boundary.
//
// Example:
//
//	AlignHBINDown(4097) = 4096
//	AlignHBINDown(4096) = 4096
//	AlignHBINDown(4095) = 0
func AlignHBINDown(n int64) int64 {
	return n & ^int64(HBINAlignmentMask)
}
