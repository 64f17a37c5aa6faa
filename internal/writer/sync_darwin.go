//go:build darwin

package writer

import (
	"os"

	"golang.org/x/sys/unix"
)

// syncDir flushes the directory entry for a freshly renamed file.
//
// On macOS, F_FULLFSYNC pushes the change through the drive cache to the
// physical disk. Fall back to fsync when the filesystem rejects it.
func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	if _, err := unix.FcntlInt(d.Fd(), unix.F_FULLFSYNC, 0); err == nil {
		return nil
	}
	return unix.Fsync(int(d.Fd()))
}
