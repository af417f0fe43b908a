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

// ApplyConfig parameterizes phase 2, the resumable relabel-and-write step.
type ApplyConfig struct {
	// Workers bounds concurrent block applies.  Blocks cover disjoint output
	// regions, so concurrent applies never write the same chunk.
	Workers int
}

// ApplyResult reports what an apply pass did.
type ApplyResult struct {
	// Applied counts blocks newly written this pass.
	Applied int

	// Skipped counts blocks already applied before this pass.
	Skipped int

	// Failed holds per-block failures.  One block's failure never aborts
	// processing of independent blocks.
	Failed []*BlockError
}

// ApplyPools runs phase 2: for every block marked pooled but not applied,
// relabel its voxels from local labels to global IDs through the persisted
// pool and write the region into the output volume, then atomically mark the
// block applied.  The pass is resumable: the ledger alone decides what is
// left to do, and a crash mid-write leaves the block unmarked with a
// partial-file-free output (chunk writes are atomic), so restart simply
// redoes it.  A block whose labels the pool does not cover fails with
// ErrStalePool; an ID is never fabricated.
func ApplyPools(ctx context.Context, store *volume.BlockStore, ledger *ProgressLedger, pool *IDPool, out *volume.OutputVolume, cfg ApplyConfig) (ApplyResult, error) {
	timedLog := kns.NewTimeLog()

	if pool == nil {
		return ApplyResult{}, fmt.Errorf("no id pool has been built; run pool construction first")
	}
	blocks, err := volume.DoneBlocks(store.DB())
	if err != nil {
		return ApplyResult{}, fmt.Errorf("can't load block index: %v", err)
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var result ApplyResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, meta := range blocks {
		meta := meta
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			state, err := ledger.GetState(meta.Index)
			if err != nil {
				return err
			}
			switch state {
			case StateApplied:
				mu.Lock()
				result.Skipped++
				mu.Unlock()
				return nil
			case StatePending:
				// Not pooled yet; a later pools run will pick it up.
				return nil
			}

			if blkErr := applyBlock(store, pool, out, meta); blkErr != nil {
				kns.Errorf("%v\n", blkErr)
				mu.Lock()
				result.Failed = append(result.Failed, blkErr)
				mu.Unlock()
				return nil // isolate per-block failures
			}
			if err := ledger.Transition(meta.Index, StateApplied); err != nil {
				return err
			}
			mu.Lock()
			result.Applied++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	timedLog.Infof("Apply pass: %d written, %d already applied, %d failed",
		result.Applied, result.Skipped, len(result.Failed))
	return result, nil
}

// applyBlock relabels one block and writes its output region.
func applyBlock(store *volume.BlockStore, pool *IDPool, out *volume.OutputVolume, meta volume.BlockMeta) *BlockError {
	if err := pool.Covers(meta); err != nil {
		return blockErr(meta.Index, meta.Bounds, "re-run pool construction", err)
	}
	labels, err := store.GetBlock(meta.Index)
	if err != nil {
		return blockErr(meta.Index, meta.Bounds, "re-run segmentation for this block", err)
	}

	// Stale-pool detection also guards voxel data newer than its metadata.
	if max := labels.MaxLabel(); max > pool.MaxLabels[meta.Index] {
		return blockErr(meta.Index, meta.Bounds, "re-run pool construction",
			fmt.Errorf("voxel label %d exceeds pooled max %d: %w", max, pool.MaxLabels[meta.Index], ErrStalePool))
	}

	labels.AddOffset(pool.Offsets[meta.Index])
	labels.Relabel(pool.Rep)

	if err := out.WriteRegion(labels); err != nil {
		return blockErr(meta.Index, meta.Bounds, "check output volume storage", err)
	}
	return nil
}

// VerifyApplied checks that every block the ledger claims applied has an
// intact output region, returning an ErrInconsistentLedger block error for
// each violation.  Such blocks require an explicit clean.
func VerifyApplied(store *volume.BlockStore, ledger *ProgressLedger, out *volume.OutputVolume) ([]*BlockError, error) {
	applied, err := ledger.BlocksInState(StateApplied)
	if err != nil {
		return nil, err
	}
	var inconsistent []*BlockError
	for _, index := range applied {
		meta, err := volume.GetBlockMeta(store.DB(), index)
		if err != nil {
			if errors.Is(err, volume.ErrBlockNotFound) {
				inconsistent = append(inconsistent, blockErr(index, kns.Box3d{}, "clean this block",
					fmt.Errorf("applied block has no metadata: %w", ErrInconsistentLedger)))
				continue
			}
			return nil, err
		}
		if !out.HasRegion(meta.Bounds) {
			inconsistent = append(inconsistent, blockErr(index, meta.Bounds, "clean this block",
				fmt.Errorf("output region missing: %w", ErrInconsistentLedger)))
		}
	}
	return inconsistent, nil
}
