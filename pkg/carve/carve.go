package carve

import (
	"errors"

	"github.com/joshuapare/hivecarve/internal/mmfile"
	"github.com/joshuapare/hivecarve/internal/source"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// Image is an open source stream. All passes (scan, stitch, volume-assisted
// rebuild) read through the same Image; it is safe to run them sequentially on
// one handle.
type Image struct {
	src     source.Reader
	cleanup func() error
}

// Open opens the image at path. The file is memory-mapped when the platform
// allows, which lets the kernel page data in as the scan touches it; on
// mapping failure it degrades to positioned reads so that images larger than
// the address space still work. Failure to open is the engine's only fatal
// condition.
func Open(path string) (*Image, error) {
	data, unmap, err := mmfile.Map(path)
	if err == nil {
		return &Image{src: source.NewBytes(data), cleanup: unmap}, nil
	}
	f, ferr := source.OpenFile(path)
	if ferr != nil {
		return nil, &types.Error{Kind: types.ErrKindSource, Msg: "open image " + path, Err: ferr}
	}
	return &Image{src: f, cleanup: f.Close}, nil
}

// OpenBytes wraps an in-memory buffer as an image without copying.
func OpenBytes(b []byte) *Image {
	return &Image{src: source.NewBytes(b)}
}

// OpenSource wraps a caller-supplied stream as an image. The caller retains
// ownership; Close becomes a no-op.
func OpenSource(src types.Source) *Image {
	return &Image{src: src}
}

// Size returns the stream length in bytes.
func (im *Image) Size() int64 {
	return im.src.Size()
}

// Extract re-reads a carved extent from the source. Extents that run past the
// stream edge return the available prefix, mirroring how the scan clips them.
func (im *Image) Extract(off, n int64) ([]byte, error) {
	b, err := source.NewWindow(im.src).ReadAt(off, n)
	if err != nil && !errors.Is(err, source.ErrShortRead) {
		return nil, ioFailed("extract", err)
	}
	return b, nil
}

// Close releases the mapping or file handle behind the image. Safe on images
// opened from memory.
func (im *Image) Close() error {
	if im.cleanup == nil {
		return nil
	}
	err := im.cleanup()
	im.cleanup = nil
	return err
}

// ioFailed wraps a mid-pass read failure. End-of-stream never lands here;
// source.ErrShortRead is a classification, not a failure.
func ioFailed(pass string, err error) error {
	return &types.Error{Kind: types.ErrKindIO, Msg: pass + ": read failed", Err: err}
}
