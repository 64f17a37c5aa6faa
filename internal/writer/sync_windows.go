//go:build windows

package writer

import (
	"os"

	"golang.org/x/sys/windows"
)

// syncDir flushes directory metadata after a rename.
//
// Directory handles need FILE_FLAG_BACKUP_SEMANTICS, which os.Open does not
// request, so the handle is opened directly. NTFS journals metadata anyway;
// failures to open the directory are not fatal to the write.
func syncDir(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	h, err := windows.CreateFile(p, windows.GENERIC_READ, windows.FILE_SHARE_READ|windows.FILE_SHARE_WRITE,
		nil, windows.OPEN_EXISTING, windows.FILE_FLAG_BACKUP_SEMANTICS, 0)
	if err != nil {
		if os.IsPermission(err) {
			return nil
		}
		return err
	}
	defer windows.CloseHandle(h)
	return windows.FlushFileBuffers(h)
}
