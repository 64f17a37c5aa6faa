// Package source provides the byte-stream access layer underneath the carving
// engine: random-access reads over in-memory or file-backed images, a short
// read classification distinct from I/O failure, and the cumulative progress
// counter the scan reports from.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrShortRead marks a read that ended at the stream's edge before the
// requested length was available. It bounds truncated results and fragment
// lengths; it is never a failure.
var ErrShortRead = errors.New("source: short read")

// Reader is the minimal surface a scan needs from an image.
type Reader interface {
	io.ReaderAt
	Size() int64
}

// Bytes serves an in-memory image. The zero value is an empty stream.
type Bytes struct {
	data []byte
}

// NewBytes wraps b without copying.
func NewBytes(b []byte) *Bytes {
	return &Bytes{data: b}
}

// ReadAt implements io.ReaderAt over the wrapped slice.
func (s *Bytes) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("source: negative offset %d", off)
	}
	if off >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the stream length.
func (s *Bytes) Size() int64 {
	return int64(len(s.data))
}

// File serves a file-backed image through positioned reads, leaving the whole
// image on disk. Suitable for sources far larger than memory.
type File struct {
	f    *os.File
	size int64
}

// OpenFile opens path read-only and records its size. Errors here are the
// caller's one fatal condition.
func OpenFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	return &File{f: f, size: info.Size()}, nil
}

// ReadAt implements io.ReaderAt via pread.
func (s *File) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

// Size returns the stream length captured at open time.
func (s *File) Size() int64 {
	return s.size
}

// Close releases the underlying file.
func (s *File) Close() error {
	return s.f.Close()
}

// Window is the scan cursor: it reads fixed regions from a Reader, classifies
// reads that run off the stream's end as ErrShortRead, and advances the
// progress counter as a side effect. Exactly one component owns a Window at a
// time; passes never interleave.
type Window struct {
	src  Reader
	read int64
}

// NewWindow builds a cursor over src.
func NewWindow(src Reader) *Window {
	return &Window{src: src}
}

// Size returns the underlying stream length.
func (w *Window) Size() int64 {
	return w.src.Size()
}

// BytesRead returns the cumulative number of bytes delivered so far. The
// counter only grows.
func (w *Window) BytesRead() int64 {
	return w.read
}

// ReadAt returns n bytes starting at off. When the stream ends first, the
// available prefix comes back along with ErrShortRead; the prefix may be
// empty. Any other error is a genuine I/O failure, returned with whatever
// bytes arrived before it.
func (w *Window) ReadAt(off, n int64) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if off < 0 {
		return nil, fmt.Errorf("source: negative offset %d", off)
	}
	size := w.src.Size()
	short := false
	if off >= size {
		return nil, ErrShortRead
	}
	if off+n > size {
		n = size - off
		short = true
	}
	p := make([]byte, n)
	got, err := w.src.ReadAt(p, off)
	w.read += int64(got)
	if err != nil && err != io.EOF && !errors.Is(err, io.ErrUnexpectedEOF) {
		return p[:got], fmt.Errorf("source: read at %d: %w", off, err)
	}
	if int64(got) < n || short {
		return p[:got], ErrShortRead
	}
	return p, nil
}
