package merge

import (
	"sort"
)

// Thresholds controls which overlap edges qualify for merging.  The exact
// values are operator policy, not algorithm: they are always read from
// configuration.
type Thresholds struct {
	// MinOverlapVoxels is the minimum co-occurrence count for an edge.
	MinOverlapVoxels uint64

	// MinFracA is the minimum fraction of label A's total overlap mass that
	// this pairing must carry.  An edge qualifies if it clears MinFracA or
	// MinFracB (either side claiming the other is enough).
	MinFracA float64

	// MinFracB is the analogous fraction for label B.
	MinFracB float64

	// MinIoU is the minimum intersection-over-union an edge must reach,
	// where union counts both labels' total overlap mass.  Zero disables
	// the check.
	MinIoU float64

	// OneToOne, if true, restricts selection to at most one partner per
	// label, greedily by descending (count, IoU).  Otherwise all qualifying
	// edges union together, allowing merge ambiguity.
	OneToOne bool
}

// DefaultThresholds mirrors the defaults of the original merge stage.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinOverlapVoxels: 20,
		MinFracA:         0.7,
		MinFracB:         0.7,
	}
}

type candidate struct {
	pair  labelPair
	count uint64
	iou   float64
}

// SelectPairs filters co-occurrence counts down to the label pairs that
// should merge.  Output is sorted ascending by (A, B) so edge sets are
// reproducible regardless of map iteration order.
func SelectPairs(counts map[labelPair]uint64, t Thresholds) []labelPair {
	if len(counts) == 0 {
		return nil
	}

	// Total overlap mass per label on each side.
	totalA := make(map[uint64]uint64)
	totalB := make(map[uint64]uint64)
	for pair, c := range counts {
		totalA[pair.A] += c
		totalB[pair.B] += c
	}

	var candidates []candidate
	for pair, c := range counts {
		if c < t.MinOverlapVoxels {
			continue
		}
		fracA := float64(c) / float64(totalA[pair.A])
		fracB := float64(c) / float64(totalB[pair.B])
		if fracA < t.MinFracA && fracB < t.MinFracB {
			continue
		}
		denom := totalA[pair.A] + totalB[pair.B] - c
		var iou float64
		if denom > 0 {
			iou = float64(c) / float64(denom)
		}
		if iou < t.MinIoU {
			continue
		}
		candidates = append(candidates, candidate{pair: pair, count: c, iou: iou})
	}
	if len(candidates) == 0 {
		return nil
	}

	if t.OneToOne {
		// Strongest edges claim their labels first.  Ties break on ascending
		// (A, B) to keep selection deterministic.
		sort.Slice(candidates, func(i, j int) bool {
			if candidates[i].count != candidates[j].count {
				return candidates[i].count > candidates[j].count
			}
			if candidates[i].iou != candidates[j].iou {
				return candidates[i].iou > candidates[j].iou
			}
			if candidates[i].pair.A != candidates[j].pair.A {
				return candidates[i].pair.A < candidates[j].pair.A
			}
			return candidates[i].pair.B < candidates[j].pair.B
		})
		usedA := make(map[uint64]struct{})
		usedB := make(map[uint64]struct{})
		var kept []candidate
		for _, cand := range candidates {
			if _, taken := usedA[cand.pair.A]; taken {
				continue
			}
			if _, taken := usedB[cand.pair.B]; taken {
				continue
			}
			kept = append(kept, cand)
			usedA[cand.pair.A] = struct{}{}
			usedB[cand.pair.B] = struct{}{}
		}
		candidates = kept
	}

	selected := make([]labelPair, len(candidates))
	for i, cand := range candidates {
		selected[i] = cand.pair
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].A != selected[j].A {
			return selected[i].A < selected[j].A
		}
		return selected[i].B < selected[j].B
	})
	return selected
}
