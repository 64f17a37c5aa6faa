//go:build windows

package mmfile

import (
	"fmt"
	"os"
)

// maxReadAll bounds the whole-file fallback. Disk images larger than this
// must go through positioned reads instead.
const maxReadAll = 1 << 30

// Map loads the file at path into memory and returns its contents. Windows
// has no syscall.Mmap equivalent in this codebase, so small files are read
// whole and anything larger is refused, pushing the caller to its pread path.
func Map(path string) ([]byte, func() error, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	if info.Size() > maxReadAll {
		return nil, func() error { return nil }, fmt.Errorf("mmfile: %d bytes exceeds read-all limit", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}
