package ntfs

import (
	"errors"
	"testing"

	"github.com/joshuapare/hivecarve/pkg/types"
)

func TestDecodeRunList(t *testing.T) {
	// Four entries: 8 clusters at 100, 4 at 40 (negative delta), a 16-cluster
	// sparse run, then 2 at 200. The sparse run must not move the cluster
	// cursor, so the final delta is relative to 40.
	b := []byte{
		0x11, 0x08, 0x64,
		0x11, 0x04, 0xC4,
		0x01, 0x10,
		0x21, 0x02, 0xA0, 0x00,
		0x00,
	}
	runs, err := DecodeRunList(b)
	if err != nil {
		t.Fatalf("DecodeRunList: %v", err)
	}
	want := []types.FileRun{
		{Cluster: 100, Count: 8},
		{Cluster: 40, Count: 4},
		{Cluster: -1, Count: 16},
		{Cluster: 200, Count: 2},
	}
	if len(runs) != len(want) {
		t.Fatalf("got %d runs, want %d", len(runs), len(want))
	}
	for i := range want {
		if runs[i] != want[i] {
			t.Errorf("run %d = %+v, want %+v", i, runs[i], want[i])
		}
	}
}

func TestDecodeRunListEmpty(t *testing.T) {
	runs, err := DecodeRunList([]byte{0x00})
	if err != nil {
		t.Fatalf("DecodeRunList: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("got %d runs, want none", len(runs))
	}
}

func TestDecodeRunListErrors(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
	}{
		{"missing terminator", []byte{0x11, 0x08, 0x64}},
		{"zero count", []byte{0x11, 0x00, 0x64, 0x00}},
		{"cluster goes negative", []byte{0x11, 0x08, 0x80, 0x00}},
		{"zero count width", []byte{0x10, 0x64, 0x00}},
		{"field past end", []byte{0x12, 0x08}},
		{"count width too wide", []byte{0x19, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0x05, 0x00}},
	}
	for _, tc := range cases {
		if _, err := DecodeRunList(tc.b); !errors.Is(err, ErrBadRunList) {
			t.Errorf("%s: err = %v, want ErrBadRunList", tc.name, err)
		}
	}
}
