/*
Package carve recovers Windows registry hives from raw byte streams: disk
images, memory dumps, pagefiles, and unallocated space.

# Quick Start

Scan an image and collect what it holds:

	img, err := carve.Open("disk.img")
	if err != nil {
	    log.Fatal(err)
	}
	defer img.Close()

	sc := img.Scan(types.ScanOptions{})
	for sc.Next() {
	    switch r := sc.Result().(type) {
	    case types.CarveResult:
	        fmt.Printf("hive %q at %d (%d bytes)\n", r.FileName, r.Offset, r.Size)
	    case types.FragmentCandidate:
	        fmt.Printf("fragment at %d for logical %d\n", r.Offset, r.LogicalOffset)
	    }
	}
	if err := sc.Err(); err != nil {
	    log.Fatal(err)
	}

# Model

A scan walks 4096-aligned candidate offsets and classifies each one: a hive
envelope anchors a CarveResult whose body is validated block by block, an
orphaned bin becomes a FragmentCandidate carrying its self-declared logical
offset, and (optionally) LZNT1 regions are decompressed and re-validated into
Compressed variants. Nothing the scan finds is a failure; a source that cannot
be read at all is the only fatal condition.

Two reconstruction passes build on a finished scan. Rebuilder stitches
truncated hives back together from the fragment pool using each block's
logical offset, zero-filling what the pool cannot supply. VolumeRebuilder
decodes NTFS file records at caller-supplied volume offsets and reassembles
hives from their exact cluster run lists, trading heuristics for metadata.
*/
package carve
