package carve_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hivecarve/internal/testutil"
	"github.com/joshuapare/hivecarve/pkg/carve"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// collect drains a scan and checks the structural invariants every result
// must satisfy: 4096-aligned source offsets, 4096-aligned logical offsets,
// positive sizes.
func collect(t *testing.T, im *carve.Image, opts types.ScanOptions) []types.Result {
	t.Helper()
	sc := im.Scan(opts)
	var out []types.Result
	for sc.Next() {
		r := sc.Result()
		switch v := r.(type) {
		case types.CarveResult:
			assert.Zero(t, v.Offset%4096, "carve offset alignment")
			assert.GreaterOrEqual(t, v.Size, int64(4096))
		case types.FragmentCandidate:
			assert.Zero(t, v.Offset%4096, "fragment offset alignment")
			assert.Zero(t, v.LogicalOffset%4096, "fragment logical alignment")
			assert.Positive(t, v.Size)
		case types.CompressedResult:
			assert.Zero(t, v.Offset%4096, "compressed offset alignment")
		case types.CompressedFragment:
			assert.Zero(t, v.Offset%4096, "compressed fragment offset alignment")
			assert.Zero(t, v.LogicalOffset%4096, "compressed fragment logical alignment")
		}
		out = append(out, r)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestScanFindsIntactHive(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{
		BinsSize: 258048,
		FileName: `\Windows\System32\Config\SYSTEM`,
	})
	require.Len(t, hive, 262144)

	img := testutil.NewImage(1 << 20).Place(524288, hive)
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{})
	require.Len(t, results, 1)
	r, ok := results[0].(types.CarveResult)
	require.True(t, ok, "want CarveResult, got %T", results[0])
	assert.Equal(t, int64(524288), r.Offset)
	assert.Equal(t, int64(262144), r.Size)
	assert.False(t, r.Truncated)
	assert.Equal(t, `\Windows\System32\Config\SYSTEM`, r.FileName)
}

func TestScanTruncatedHiveAtStreamEnd(t *testing.T) {
	// 256 KiB declared, but the stream ends after 100 KiB of the hive.
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 258048, BodyTruncate: 98304})
	require.Len(t, hive, 102400)

	img := testutil.NewImage(626688).Place(524288, hive)
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{})
	require.Len(t, results, 1)
	r, ok := results[0].(types.CarveResult)
	require.True(t, ok)
	assert.Equal(t, int64(524288), r.Offset)
	assert.Equal(t, int64(102400), r.Size)
	assert.True(t, r.Truncated)
}

func TestScanResumesAfterTruncationPoint(t *testing.T) {
	// A hive whose chain breaks mid-stream must not swallow the intact hive
	// that begins exactly at its truncation point.
	first := testutil.BuildHive(testutil.HiveSpec{BinsSize: 258048, BodyTruncate: 8192})
	second := testutil.BuildHive(testutil.HiveSpec{BinsSize: 4096})
	img := testutil.NewImage(65536).Place(0, first).Place(12288, second)
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{})
	require.Len(t, results, 2)

	r0, ok := results[0].(types.CarveResult)
	require.True(t, ok)
	assert.Equal(t, int64(0), r0.Offset)
	assert.Equal(t, int64(12288), r0.Size)
	assert.True(t, r0.Truncated)

	r1, ok := results[1].(types.CarveResult)
	require.True(t, ok)
	assert.Equal(t, int64(12288), r1.Offset)
	assert.Equal(t, int64(8192), r1.Size)
	assert.False(t, r1.Truncated)
}

func TestScanEmitsFragments(t *testing.T) {
	whole := testutil.BuildBin(81920, 8192, 0xAB)
	clipped := testutil.BuildBin(0, 16384, 0xCD)[:8192]
	img := testutil.NewImage(131072).
		Place(40960, whole).
		Place(122880, clipped)
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{})
	require.Len(t, results, 2)

	f0, ok := results[0].(types.FragmentCandidate)
	require.True(t, ok)
	assert.Equal(t, int64(40960), f0.Offset)
	assert.Equal(t, int64(8192), f0.Size)
	assert.Equal(t, int64(81920), f0.LogicalOffset)

	// The second bin declares 16 KiB but the stream ends first; its usable
	// length is clipped.
	f1, ok := results[1].(types.FragmentCandidate)
	require.True(t, ok)
	assert.Equal(t, int64(122880), f1.Offset)
	assert.Equal(t, int64(8192), f1.Size)
	assert.Equal(t, int64(0), f1.LogicalOffset)
}

func TestScanSkipsGarbage(t *testing.T) {
	raw := make([]byte, 61696)
	for i := range raw {
		raw[i] = byte(0x55 + i%3)
	}
	// A signature whose envelope is clipped below the minimum parseable
	// length anchors nothing.
	copy(raw[61440:], "regf")
	im := carve.OpenBytes(raw)

	results := collect(t, im, types.ScanOptions{})
	assert.Empty(t, results)
}

func TestScanMalformedSizeBoundsByChain(t *testing.T) {
	// The declared bins size is not bin-aligned, so the chain itself bounds
	// the result and it is always reported truncated.
	hive := testutil.BuildHive(testutil.HiveSpec{
		BinsSize: 6000,
		Bins: []testutil.BinSpec{
			{Offset: 0, Size: 4096, Fill: 0x41},
			{Offset: 4096, Size: 4096, Fill: 0x42},
		},
	})
	img := testutil.NewImage(65536).Place(8192, hive)
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{})
	require.Len(t, results, 1)
	r, ok := results[0].(types.CarveResult)
	require.True(t, ok)
	assert.Equal(t, int64(8192), r.Offset)
	assert.Equal(t, int64(12288), r.Size)
	assert.True(t, r.Truncated)
}

func TestScanDeepRevisitsEveryCandidate(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 8192})
	img := testutil.NewImage(32768).Place(0, hive)
	im := carve.OpenBytes(img.Bytes())

	shallow := collect(t, im, types.ScanOptions{})
	require.Len(t, shallow, 1)

	deep := collect(t, im, types.ScanOptions{Deep: true})
	require.Len(t, deep, 3)
	_, ok := deep[0].(types.CarveResult)
	require.True(t, ok)
	f1, ok := deep[1].(types.FragmentCandidate)
	require.True(t, ok)
	assert.Equal(t, int64(4096), f1.Offset)
	assert.Equal(t, int64(0), f1.LogicalOffset)
	f2, ok := deep[2].(types.FragmentCandidate)
	require.True(t, ok)
	assert.Equal(t, int64(8192), f2.Offset)
	assert.Equal(t, int64(4096), f2.LogicalOffset)
}

func TestScanProgress(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 65536})
	img := testutil.NewImage(1 << 20).Place(442368, hive)
	im := carve.OpenBytes(img.Bytes())

	var reads []int64
	totalOK := true
	opts := types.ScanOptions{
		ProgressEvery: 4096,
		Progress: func(bytesRead, bytesTotal int64) {
			reads = append(reads, bytesRead)
			totalOK = totalOK && bytesTotal == 1<<20
		},
	}
	collect(t, im, opts)

	require.NotEmpty(t, reads)
	assert.True(t, totalOK, "bytesTotal must always be the stream length")
	for i := 1; i < len(reads); i++ {
		assert.LessOrEqual(t, reads[i-1], reads[i], "progress counter must not regress")
	}
}

func TestScanDecompressedHive(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 8192, FileName: "SAM"})
	comp := testutil.CompressLZNT1(hive)
	img := testutil.NewImage(65536).Place(4096, comp)
	im := carve.OpenBytes(img.Bytes())

	// Without the flag the region is invisible.
	assert.Empty(t, collect(t, im, types.ScanOptions{}))

	results := collect(t, im, types.ScanOptions{Decompress: true})
	require.Len(t, results, 1)
	r, ok := results[0].(types.CompressedResult)
	require.True(t, ok, "want CompressedResult, got %T", results[0])
	assert.Equal(t, int64(4096), r.Offset)
	assert.False(t, r.Truncated)
	assert.Equal(t, "SAM", r.FileName)
	assert.Equal(t, hive, r.Data)
}

func TestScanDecompressedFragment(t *testing.T) {
	bin := testutil.BuildBin(12288, 8192, 0x5A)
	comp := testutil.CompressLZNT1(bin)
	img := testutil.NewImage(65536).Place(8192, comp)
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{Decompress: true})
	require.Len(t, results, 1)
	r, ok := results[0].(types.CompressedFragment)
	require.True(t, ok, "want CompressedFragment, got %T", results[0])
	assert.Equal(t, int64(8192), r.Offset)
	assert.Equal(t, int64(12288), r.LogicalOffset)
	assert.Equal(t, bin, r.Data)
}

func TestScanTruncatedCompressedHive(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 16384})
	comp := testutil.CompressLZNT1(hive)
	// Clip the compressed stream mid-body; the decode must re-validate and
	// report the decoded prefix as truncated.
	img := testutil.NewImage(16384).Place(4096, comp[:9000])
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{Decompress: true})
	require.Len(t, results, 1)
	r, ok := results[0].(types.CompressedResult)
	require.True(t, ok)
	assert.True(t, r.Truncated)
	assert.Less(t, int64(len(r.Data)), int64(len(hive)))
	assert.Equal(t, hive[:len(r.Data)], r.Data)
}

func TestScanIdempotent(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 12288, FileName: "SECURITY"})
	frag := testutil.BuildBin(40960, 4096, 0x77)
	img := testutil.NewImage(262144).
		Place(16384, hive).
		Place(131072, frag)
	im := carve.OpenBytes(img.Bytes())

	first := collect(t, im, types.ScanOptions{})
	second := collect(t, im, types.ScanOptions{})
	require.Equal(t, first, second)
	require.Len(t, first, 2)
}

func TestOpenFileAndClose(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 4096, FileName: "NTUSER.DAT"})
	img := testutil.NewImage(32768).Place(8192, hive)
	path := testutil.WriteTemp(t, "dump.img", img.Bytes())

	im, err := carve.Open(path)
	require.NoError(t, err)
	assert.Equal(t, int64(32768), im.Size())

	results := collect(t, im, types.ScanOptions{})
	require.Len(t, results, 1)
	r := results[0].(types.CarveResult)
	assert.Equal(t, "NTUSER.DAT", r.FileName)

	require.NoError(t, im.Close())
	require.NoError(t, im.Close(), "double close must be safe")
}

func TestOpenMissingFile(t *testing.T) {
	_, err := carve.Open(filepath.Join(t.TempDir(), "absent.img"))
	require.Error(t, err)
	var e *types.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, types.ErrKindSource, e.Kind)
}
