package carve_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/hivecarve/internal/format"
	"github.com/joshuapare/hivecarve/internal/testutil"
	"github.com/joshuapare/hivecarve/pkg/carve"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// scanAll is shorthand for the scan-then-rebuild tests: run a plain scan and
// hand back everything it found.
func scanAll(t *testing.T, im *carve.Image) []types.Result {
	t.Helper()
	return collect(t, im, types.ScanOptions{})
}

func rebuildAll(t *testing.T, im *carve.Image, results []types.Result, opts types.RebuildOptions) []types.Reconstructed {
	t.Helper()
	rb := im.NewRebuilder(opts)
	rb.SetFragments(results)
	it := rb.Fragmented()
	var out []types.Reconstructed
	for it.Next() {
		out = append(out, it.Reconstruction())
	}
	require.NoError(t, it.Err())
	return out
}

func TestStitchFillsFromPool(t *testing.T) {
	// A hive whose header survived but whose entire body scattered: two
	// orphaned bins elsewhere in the stream declare exactly the logical
	// offsets the anchor is missing.
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 131072, Bins: []testutil.BinSpec{}})
	fragA := testutil.BuildBin(0, 65536, 0x21)
	fragB := testutil.BuildBin(65536, 65536, 0x22)
	img := testutil.NewImage(262144).
		Place(0, anchor).
		Place(8192, fragA).
		Place(81920, fragB)
	im := carve.OpenBytes(img.Bytes())

	results := scanAll(t, im)
	require.Len(t, results, 3)

	a, ok := results[0].(types.CarveResult)
	require.True(t, ok)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Equal(t, a, rec.Source)
	require.Len(t, rec.Data, 135168)
	assert.Equal(t, anchor, rec.Data[:4096])
	assert.Equal(t, fragA, rec.Data[4096:69632])
	assert.Equal(t, fragB, rec.Data[69632:])
	assert.Empty(t, rec.Holes)
	assert.Equal(t, types.TierChecksummed, rec.Tier)
}

func TestStitchIgnoresPhysicalOrder(t *testing.T) {
	// Same hive as above, but the tail bin sits physically before the head
	// bin. Placement follows declared logical offsets, so the reconstruction
	// comes out identical.
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 131072, Bins: []testutil.BinSpec{}})
	fragA := testutil.BuildBin(0, 65536, 0x21)
	fragB := testutil.BuildBin(65536, 65536, 0x22)
	img := testutil.NewImage(262144).
		Place(0, anchor).
		Place(8192, fragB).
		Place(81920, fragA)
	im := carve.OpenBytes(img.Bytes())

	results := scanAll(t, im)
	require.Len(t, results, 3)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	require.Len(t, recs, 1)
	rec := recs[0]

	require.Len(t, rec.Data, 135168)
	assert.Equal(t, fragA, rec.Data[4096:69632])
	assert.Equal(t, fragB, rec.Data[69632:])
	assert.Empty(t, rec.Holes)
	assert.Equal(t, types.TierChecksummed, rec.Tier)
}

func TestStitchLeavesHoles(t *testing.T) {
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 131072, Bins: []testutil.BinSpec{}})
	fragB := testutil.BuildBin(65536, 65536, 0x22)
	img := testutil.NewImage(262144).
		Place(0, anchor).
		Place(32768, fragB)
	im := carve.OpenBytes(img.Bytes())

	recs := rebuildAll(t, im, scanAll(t, im), types.RebuildOptions{})
	require.Len(t, recs, 1)
	rec := recs[0]

	require.Len(t, rec.Data, 135168)
	require.Len(t, rec.Holes, 1)
	assert.Equal(t, types.ByteRange{Offset: 4096, Length: 65536}, rec.Holes[0])
	assert.Equal(t, types.TierBestEffort, rec.Tier)

	// The hole reads as zeros, the supplied half as the fragment's bytes.
	for _, b := range rec.Data[4096:69632] {
		if b != 0 {
			t.Fatalf("hole bytes must stay zero, found %#x", b)
		}
	}
	assert.Equal(t, fragB, rec.Data[69632:])
}

func TestStitchPrefixRetained(t *testing.T) {
	// The anchor's first two bins survived in place; only the tail needs the
	// pool. The validated prefix must be copied verbatim, not refilled.
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 16384, BodyTruncate: 8192})
	frag := testutil.BuildBin(8192, 8192, 0x33)
	img := testutil.NewImage(65536).
		Place(0, anchor).
		Place(16384, frag)
	im := carve.OpenBytes(img.Bytes())

	results := scanAll(t, im)
	require.Len(t, results, 2)
	a, ok := results[0].(types.CarveResult)
	require.True(t, ok)
	require.Equal(t, int64(12288), a.Size)
	require.True(t, a.Truncated)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	require.Len(t, recs, 1)
	rec := recs[0]

	require.Len(t, rec.Data, 20480)
	assert.Equal(t, anchor, rec.Data[:12288])
	assert.Equal(t, frag, rec.Data[12288:])
	assert.Empty(t, rec.Holes)
	assert.Equal(t, types.TierChecksummed, rec.Tier)
}

func TestStitchPlacesDecompressedFragments(t *testing.T) {
	// The anchor's body survives only inside an LZNT1 region. Those bins have
	// no plaintext home in the stream, so the fill must come from the bytes
	// the scan carried out of the decode.
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 8192, Bins: []testutil.BinSpec{}})
	body := append(testutil.BuildBin(0, 4096, 0x51), testutil.BuildBin(4096, 4096, 0x52)...)
	img := testutil.NewImage(65536).
		Place(0, anchor).
		Place(16384, testutil.CompressLZNT1(body))
	im := carve.OpenBytes(img.Bytes())

	results := collect(t, im, types.ScanOptions{Decompress: true})
	require.Len(t, results, 2)
	cf, ok := results[1].(types.CompressedFragment)
	require.True(t, ok, "want CompressedFragment, got %T", results[1])
	require.Equal(t, int64(0), cf.LogicalOffset)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	require.Len(t, recs, 1)
	rec := recs[0]

	require.Len(t, rec.Data, 12288)
	assert.Equal(t, anchor, rec.Data[:4096])
	assert.Equal(t, body, rec.Data[4096:])
	assert.Empty(t, rec.Holes)
	assert.Equal(t, types.TierChecksummed, rec.Tier)
}

func TestStitchPickPolicy(t *testing.T) {
	// Two pooled bins both claim logical offset 0. The default policy breaks
	// the distance tie toward the lower physical offset; a caller-supplied
	// policy overrides it.
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 4096, Bins: []testutil.BinSpec{}})
	fragA := testutil.BuildBin(0, 4096, 0xAA)
	fragB := testutil.BuildBin(0, 4096, 0xBB)
	img := testutil.NewImage(32768).
		Place(4096, fragA).
		Place(8192, anchor).
		Place(20480, fragB)
	im := carve.OpenBytes(img.Bytes())

	results := scanAll(t, im)
	require.Len(t, results, 3)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	require.Len(t, recs, 1)
	assert.Equal(t, fragA, recs[0].Data[4096:])

	var gotLast int64
	var gotCands []int64
	override := types.RebuildOptions{
		Pick: func(lastPhysical int64, candidates []int64) int {
			gotLast = lastPhysical
			gotCands = append([]int64(nil), candidates...)
			return len(candidates) - 1
		},
	}
	recs = rebuildAll(t, im, results, override)
	require.Len(t, recs, 1)
	assert.Equal(t, fragB, recs[0].Data[4096:])
	assert.Equal(t, int64(12288), gotLast, "policy sees the anchor's physical end")
	assert.Equal(t, []int64{4096, 20480}, gotCands)
}

func TestStitchClipsAtDeclaredEnd(t *testing.T) {
	// The pooled bin is larger than the space the anchor has left; only the
	// part inside the declared size is copied.
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 4096, Bins: []testutil.BinSpec{}})
	frag := testutil.BuildBin(0, 8192, 0xCC)
	img := testutil.NewImage(32768).
		Place(0, anchor).
		Place(8192, frag)
	im := carve.OpenBytes(img.Bytes())

	recs := rebuildAll(t, im, scanAll(t, im), types.RebuildOptions{})
	require.Len(t, recs, 1)
	rec := recs[0]
	require.Len(t, rec.Data, 8192)
	assert.Equal(t, frag[:4096], rec.Data[4096:])
	assert.Empty(t, rec.Holes)
}

func TestStitchSkipsCompleteAnchors(t *testing.T) {
	hive := testutil.BuildHive(testutil.HiveSpec{BinsSize: 4096})
	img := testutil.NewImage(16384).Place(0, hive)
	im := carve.OpenBytes(img.Bytes())

	results := scanAll(t, im)
	require.Len(t, results, 1)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	assert.Empty(t, recs, "an intact hive has nothing to rebuild")
}

func TestStitchRequiresFragmentPool(t *testing.T) {
	im := carve.OpenBytes(make([]byte, 8192))
	rb := im.NewRebuilder(types.RebuildOptions{})

	it := rb.Fragmented()
	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), types.ErrNoFragmentPool)
}

func TestStitchUnsizedAnchorSkipped(t *testing.T) {
	// A declared size that is not bin-aligned cannot seed a reconstruction;
	// there is no defensible total to rebuild toward.
	hive := testutil.BuildHive(testutil.HiveSpec{
		BinsSize: 6000,
		Bins: []testutil.BinSpec{
			{Offset: 0, Size: 4096, Fill: 0x41},
			{Offset: 4096, Size: 4096, Fill: 0x42},
		},
	})
	img := testutil.NewImage(32768).Place(0, hive)
	im := carve.OpenBytes(img.Bytes())

	results := scanAll(t, im)
	require.Len(t, results, 1)
	require.True(t, results[0].(types.CarveResult).Truncated)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	assert.Empty(t, recs)
}

func TestStitchFragmentConsumedOnce(t *testing.T) {
	// Two anchors compete for one pooled bin. The first in ingest order wins;
	// the second keeps a hole instead of sharing bytes.
	anchor1 := testutil.BuildHive(testutil.HiveSpec{BinsSize: 4096, Bins: []testutil.BinSpec{}})
	anchor2 := testutil.BuildHive(testutil.HiveSpec{BinsSize: 4096, Bins: []testutil.BinSpec{}})
	frag := testutil.BuildBin(0, 4096, 0xEE)
	img := testutil.NewImage(32768).
		Place(0, anchor1).
		Place(4096, anchor2).
		Place(12288, frag)
	im := carve.OpenBytes(img.Bytes())

	results := scanAll(t, im)
	require.Len(t, results, 3)

	recs := rebuildAll(t, im, results, types.RebuildOptions{})
	require.Len(t, recs, 2)

	assert.Empty(t, recs[0].Holes)
	assert.Equal(t, frag, recs[0].Data[4096:])
	assert.Equal(t, types.TierChecksummed, recs[0].Tier)

	require.Len(t, recs[1].Holes, 1)
	assert.Equal(t, types.ByteRange{Offset: 4096, Length: 4096}, recs[1].Holes[0])
	assert.Equal(t, types.TierBestEffort, recs[1].Tier)
}

func TestStitchNormalizesDirtyHeader(t *testing.T) {
	// A hive caught mid-write carries mismatched sequence counters. The
	// mismatch caps confidence, but the emitted buffer is made
	// self-consistent so downstream parsers accept it.
	anchor := testutil.BuildHive(testutil.HiveSpec{
		BinsSize:    4096,
		Bins:        []testutil.BinSpec{},
		SeqMismatch: true,
	})
	frag := testutil.BuildBin(0, 4096, 0x44)
	img := testutil.NewImage(16384).
		Place(0, anchor).
		Place(8192, frag)
	im := carve.OpenBytes(img.Bytes())

	recs := rebuildAll(t, im, scanAll(t, im), types.RebuildOptions{})
	require.Len(t, recs, 1)
	rec := recs[0]

	assert.Empty(t, rec.Holes)
	assert.Equal(t, types.TierBestEffort, rec.Tier)

	env, err := format.ParseEnvelope(rec.Data)
	require.NoError(t, err)
	assert.True(t, env.SequencesMatch)
	assert.True(t, env.ChecksumValid)
}

func TestStitchTicksPerPlacement(t *testing.T) {
	anchor := testutil.BuildHive(testutil.HiveSpec{BinsSize: 8192, Bins: []testutil.BinSpec{}})
	fragA := testutil.BuildBin(0, 4096, 0x61)
	fragB := testutil.BuildBin(4096, 4096, 0x62)
	img := testutil.NewImage(32768).
		Place(0, anchor).
		Place(8192, fragA).
		Place(12288, fragB)
	im := carve.OpenBytes(img.Bytes())

	var ticks int
	recs := rebuildAll(t, im, scanAll(t, im), types.RebuildOptions{Tick: func() { ticks++ }})
	require.Len(t, recs, 1)
	assert.Empty(t, recs[0].Holes)
	assert.Equal(t, 2, ticks)
}
