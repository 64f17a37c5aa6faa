package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileWriterAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recovered.hiv")
	want := bytes.Repeat([]byte{0x5A}, 4096)

	w := &FileWriter{Path: path}
	if err := w.WriteHive(want); err != nil {
		t.Fatalf("WriteHive: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch: %d bytes", len(got))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".hivecarve-tmp-") {
			t.Fatalf("stray temp file left behind: %s", e.Name())
		}
	}
}

func TestFileWriterOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.hiv")
	w := &FileWriter{Path: path}
	if err := w.WriteHive([]byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHive([]byte("two")); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Fatalf("content = %q, want two", got)
	}
}

func TestMemWriter(t *testing.T) {
	var w MemWriter
	if err := w.WriteHive([]byte("abc")); err != nil {
		t.Fatal(err)
	}
	if string(w.Buf) != "abc" {
		t.Fatalf("Buf = %q", w.Buf)
	}

	var _ Sink = &w
	var _ Sink = &FileWriter{}
}
