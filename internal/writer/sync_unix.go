//go:build linux || freebsd

package writer

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncDir flushes the directory entry for a freshly renamed file.
// fdatasync suffices: only the entry matters, not directory timestamps.
func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return unix.Fdatasync(int(d.Fd()))
}
