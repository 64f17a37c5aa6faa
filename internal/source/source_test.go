package source

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestBytesReadAt(t *testing.T) {
	s := NewBytes([]byte("0123456789"))
	p := make([]byte, 4)
	n, err := s.ReadAt(p, 3)
	if err != nil || n != 4 || string(p) != "3456" {
		t.Fatalf("ReadAt = %d,%v,%q", n, err, p)
	}
	if s.Size() != 10 {
		t.Fatalf("Size = %d", s.Size())
	}

	n, err = s.ReadAt(p, 8)
	if n != 2 || err == nil {
		t.Fatalf("tail read should be short: %d,%v", n, err)
	}
	if _, err := s.ReadAt(p, 100); err == nil {
		t.Fatalf("reading past the end should fail")
	}
}

func TestWindowShortRead(t *testing.T) {
	w := NewWindow(NewBytes([]byte("abcdef")))

	got, err := w.ReadAt(0, 6)
	if err != nil || string(got) != "abcdef" {
		t.Fatalf("full read = %q, %v", got, err)
	}

	got, err = w.ReadAt(4, 10)
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
	if string(got) != "ef" {
		t.Fatalf("short read prefix = %q", got)
	}

	if _, err = w.ReadAt(100, 1); !errors.Is(err, ErrShortRead) {
		t.Fatalf("read past end should be short, got %v", err)
	}

	if w.BytesRead() != 8 {
		t.Fatalf("BytesRead = %d, want 8", w.BytesRead())
	}
}

func TestWindowZeroAndNegative(t *testing.T) {
	w := NewWindow(NewBytes([]byte("abc")))
	if got, err := w.ReadAt(0, 0); got != nil || err != nil {
		t.Fatalf("zero-length read = %v, %v", got, err)
	}
	if _, err := w.ReadAt(-1, 4); err == nil || errors.Is(err, ErrShortRead) {
		t.Fatalf("negative offset should be a real error, got %v", err)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.raw")
	content := bytes.Repeat([]byte{0xAB}, 8192)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if f.Size() != 8192 {
		t.Fatalf("Size = %d", f.Size())
	}

	w := NewWindow(f)
	got, err := w.ReadAt(4096, 4096)
	if err != nil || len(got) != 4096 || got[0] != 0xAB {
		t.Fatalf("window read = %d bytes, %v", len(got), err)
	}

	if _, err := OpenFile(filepath.Join(dir, "missing.raw")); err == nil {
		t.Fatalf("missing file should fail to open")
	}
	if _, err := OpenFile(dir); err == nil {
		t.Fatalf("directory should fail to open")
	}
}
