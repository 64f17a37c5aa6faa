//go:build !linux && !freebsd && !darwin && !windows

package writer

// syncDir is a no-op where no durable directory sync is available.
func syncDir(string) error {
	return nil
}
