package merge

import (
	"sort"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/volume"
)

// BlockPair is a pair of blocks whose declared geometries intersect, plus the
// intersection itself.  Pairs always have A.Index < B.Index.
type BlockPair struct {
	A, B    volume.BlockMeta
	Overlap kns.Box3d
}

// OverlapPairs returns all intersecting pairs among the given blocks.  A
// plane sweep over the z extent keeps this near-linear in block count for
// grid-like layouts instead of all-pairs quadratic.  Output order is
// deterministic: ascending (A.Index, B.Index).
func OverlapPairs(blocks []volume.BlockMeta) []BlockPair {
	sweep := make([]volume.BlockMeta, len(blocks))
	copy(sweep, blocks)
	sort.Slice(sweep, func(i, j int) bool {
		if sweep[i].Bounds.Min[2] != sweep[j].Bounds.Min[2] {
			return sweep[i].Bounds.Min[2] < sweep[j].Bounds.Min[2]
		}
		return sweep[i].Index < sweep[j].Index
	})

	var pairs []BlockPair
	for i := range sweep {
		for j := i + 1; j < len(sweep); j++ {
			if sweep[j].Bounds.Min[2] >= sweep[i].Bounds.Max[2] {
				break // no later block can reach back into block i's z extent
			}
			overlap, ok := sweep[i].Bounds.Intersect(sweep[j].Bounds)
			if !ok {
				continue
			}
			a, b := sweep[i], sweep[j]
			if b.Index < a.Index {
				a, b = b, a
			}
			pairs = append(pairs, BlockPair{A: a, B: b, Overlap: overlap})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A.Index != pairs[j].A.Index {
			return pairs[i].A.Index < pairs[j].A.Index
		}
		return pairs[i].B.Index < pairs[j].B.Index
	})
	return pairs
}

// labelPair is a co-occurring (offset label from A, offset label from B) pair.
type labelPair struct {
	A, B uint64
}

// CountPairs tallies voxel co-occurrence between nonzero labels of two
// overlapping label arrays spanning the same box, after applying each side's
// global offset.  Counts depend only on voxel contents, never on iteration
// order, so re-runs produce identical weights.
func CountPairs(a, b *volume.Labels, offsetA, offsetB uint64) map[labelPair]uint64 {
	counts := make(map[labelPair]uint64)
	for i, la := range a.Data {
		lb := b.Data[i]
		if la == 0 || lb == 0 {
			continue
		}
		counts[labelPair{A: la + offsetA, B: lb + offsetB}]++
	}
	return counts
}
