package merge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/volume"
)

// PoolConfig parameterizes phase 1, pool construction.
type PoolConfig struct {
	Thresholds Thresholds

	// Workers bounds concurrent overlap-pair scans.
	Workers int

	// Restart discards any previously persisted pool and demotes pooled
	// blocks to pending before rebuilding.
	Restart bool
}

// BuildPools runs phase 1 over all completed blocks: compute global offsets,
// scan every intersecting block pair for label co-occurrence, select
// qualifying edges, resolve connected components, and persist the resulting
// ID pool.  It is cheap, idempotent, and safely re-runnable: the same block
// store yields a bit-identical pool.  Blocks missing from the store simply
// contribute no edges; a partial run produces a valid pool over what exists.
// Any scan error aborts the whole step since the pool must be globally
// consistent.
func BuildPools(ctx context.Context, store *volume.BlockStore, ledger *ProgressLedger, cfg PoolConfig) (*IDPool, error) {
	timedLog := kns.NewTimeLog()

	prev, err := LoadPool(store.DB())
	if err != nil {
		return nil, err
	}
	if cfg.Restart {
		if err := DeletePool(store.DB()); err != nil {
			return nil, err
		}
		pooled, err := ledger.BlocksInState(StatePooled)
		if err != nil {
			return nil, err
		}
		for _, index := range pooled {
			if err := ledger.Demote(index); err != nil {
				return nil, err
			}
		}
		// Restart renumbers pooled blocks but must not touch ranges already
		// written to the output volume: applied blocks keep their offsets.
		if prev != nil {
			applied, err := ledger.BlocksInState(StateApplied)
			if err != nil {
				return nil, err
			}
			appliedSet := make(map[int]struct{}, len(applied))
			for _, index := range applied {
				appliedSet[index] = struct{}{}
			}
			for index := range prev.Offsets {
				if _, isApplied := appliedSet[index]; !isApplied {
					delete(prev.Offsets, index)
					delete(prev.MaxLabels, index)
				}
			}
			if len(prev.Offsets) == 0 {
				prev = nil // nothing written yet, renumber from scratch
			}
		}
	}

	blocks, err := volume.DoneBlocks(store.DB())
	if err != nil {
		return nil, fmt.Errorf("can't load block index: %v", err)
	}
	kns.Infof("Pool construction over %d completed blocks\n", len(blocks))

	offsets, nextGID := ComputeOffsets(blocks, prev)
	pairs := OverlapPairs(blocks)
	kns.Infof("Found %d overlapping block pairs\n", len(pairs))

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var edges []labelPair

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, pair := range pairs {
		pair := pair
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a, err := store.ReadOverlap(pair.A.Index, pair.Overlap)
			if err != nil {
				if errors.Is(err, volume.ErrBlockNotFound) {
					return nil // boundary semantics: no edge for missing neighbor
				}
				return err
			}
			b, err := store.ReadOverlap(pair.B.Index, pair.Overlap)
			if err != nil {
				if errors.Is(err, volume.ErrBlockNotFound) {
					return nil
				}
				return err
			}
			counts := CountPairs(a, b, offsets[pair.A.Index], offsets[pair.B.Index])
			selected := SelectPairs(counts, cfg.Thresholds)
			if len(selected) > 0 {
				mu.Lock()
				edges = append(edges, selected...)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pool construction aborted: %w", err)
	}

	pool := &IDPool{
		Offsets:   offsets,
		MaxLabels: make(map[int]uint64, len(blocks)),
		NextGID:   nextGID,
		Rep:       BuildRepMap(edges),
	}
	for _, meta := range blocks {
		pool.MaxLabels[meta.Index] = meta.MaxLabel
	}

	if err := SavePool(store.DB(), pool); err != nil {
		return nil, err
	}
	for _, meta := range blocks {
		if err := ledger.Transition(meta.Index, StatePooled); err != nil {
			// Applied blocks stay applied; they keep their offset ranges, so
			// their written regions remain valid under the rebuilt pool.
			if errors.Is(err, ErrIllegalTransition) {
				continue
			}
			return nil, err
		}
	}

	timedLog.Infof("Built id pool: %d blocks, %d union edges, %d merged labels, next gid %d",
		len(blocks), len(edges), len(pool.Rep), pool.NextGID)
	return pool, nil
}
