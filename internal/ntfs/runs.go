package ntfs

import (
	"math"

	"github.com/joshuapare/hivecarve/internal/buf"
	"github.com/joshuapare/hivecarve/pkg/types"
)

// DecodeRunList expands a run list into absolute cluster runs. Each entry
// opens with a header byte whose low nibble sizes the cluster-count field
// and whose high nibble sizes the offset field; the offset is a signed delta
// from the previous run's cluster. A zero-width offset marks a sparse run,
// which reads as zeros and does not move the cluster cursor. A zero header
// byte terminates the list; running out of bytes first is malformed.
func DecodeRunList(b []byte) ([]types.FileRun, error) {
	var runs []types.FileRun
	cluster := int64(0)
	i := 0
	for i < len(b) {
		header := b[i]
		if header == 0 {
			return runs, nil
		}
		countSize := int(header & 0x0F)
		offSize := int(header >> 4)
		if countSize == 0 || countSize > 8 || offSize > 8 {
			return nil, ErrBadRunList
		}
		i++
		if !buf.Has(b, i, countSize+offSize) {
			return nil, ErrBadRunList
		}

		count, ok := buf.UVarLE(b[i:], countSize)
		if !ok || count == 0 || count > math.MaxInt64 {
			return nil, ErrBadRunList
		}
		i += countSize

		if offSize == 0 {
			runs = append(runs, types.FileRun{Cluster: -1, Count: int64(count)})
			continue
		}
		delta, ok := buf.IVarLE(b[i:], offSize)
		if !ok {
			return nil, ErrBadRunList
		}
		i += offSize
		cluster += delta
		if cluster < 0 {
			return nil, ErrBadRunList
		}
		runs = append(runs, types.FileRun{Cluster: cluster, Count: int64(count)})
	}
	return nil, ErrBadRunList
}
