package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/merge"
	"github.com/kuan-lab/kns/storage"
	"github.com/kuan-lab/kns/volume"
)

// Pipeline holds the opened stores for a configured run.  One Pipeline serves
// any number of operations; Close releases the underlying key-value store.
type Pipeline struct {
	cfg    *Config
	db     storage.KeyValueDB
	store  *volume.BlockStore
	ledger *merge.ProgressLedger
	out    *volume.OutputVolume
}

// Open opens the key-value store and output volume named by the config and
// returns a pipeline ready to run operations.
func Open(cfg *Config) (*Pipeline, error) {
	db, created, err := storage.NewStore(cfg.Store.Engine, storage.StoreConfig{Path: cfg.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("can't open %s store at %q: %v", cfg.Store.Engine, cfg.Store.Path, err)
	}
	if created {
		kns.Infof("Created new %s store at %s\n", cfg.Store.Engine, cfg.Store.Path)
	}
	out, err := volume.OpenOutputVolume(cfg.Pipeline.Output)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Pipeline{
		cfg:    cfg,
		db:     db,
		store:  volume.NewBlockStore(db, cfg.Pipeline.CacheSize),
		ledger: merge.NewProgressLedger(db),
		out:    out,
	}, nil
}

// Close releases the pipeline's store.
func (p *Pipeline) Close() {
	p.db.Close()
}

// Store returns the block store, for registering completed blocks.
func (p *Pipeline) Store() *volume.BlockStore {
	return p.store
}

// Pools runs pool construction over all completed blocks.  With restart set,
// any existing pool is discarded and pooled blocks are demoted first.
func (p *Pipeline) Pools(ctx context.Context, restart bool) (*merge.IDPool, error) {
	workers := p.cfg.Pools.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	return merge.BuildPools(ctx, p.store, p.ledger, merge.PoolConfig{
		Thresholds: p.cfg.Pools.Thresholds(),
		Workers:    workers,
		Restart:    restart,
	})
}

// Apply runs the resumable apply pass against the persisted pool.
func (p *Pipeline) Apply(ctx context.Context) (merge.ApplyResult, error) {
	pool, err := merge.LoadPool(p.db)
	if err != nil {
		return merge.ApplyResult{}, err
	}
	workers := p.cfg.Apply.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	return merge.ApplyPools(ctx, p.store, p.ledger, pool, p.out, merge.ApplyConfig{Workers: workers})
}

// Merge runs both phases back to back: pool construction followed by apply.
func (p *Pipeline) Merge(ctx context.Context, restart bool) (merge.ApplyResult, error) {
	pool, err := p.Pools(ctx, restart)
	if err != nil {
		return merge.ApplyResult{}, err
	}
	workers := p.cfg.Apply.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	return merge.ApplyPools(ctx, p.store, p.ledger, pool, p.out, merge.ApplyConfig{Workers: workers})
}

// Status summarizes pipeline progress and cross-checks the ledger against the
// output volume.
type Status struct {
	// TotalBlocks is the number of blocks in the metadata index.
	TotalBlocks int

	// DoneBlocks is how many of those have completed segmentation.
	DoneBlocks int

	// Pending, Pooled, and Applied count blocks by merge state.
	Pending, Pooled, Applied int

	// HasPool reports whether an ID pool is persisted.
	HasPool bool

	// NextGID is the pool's next unassigned global ID, zero without a pool.
	NextGID uint64

	// MergedLabels is the number of labels redirected to a class representative.
	MergedLabels int

	// OutputBytes is the on-disk size of the output volume.
	OutputBytes uint64

	// Inconsistent lists applied blocks whose output regions are missing.
	Inconsistent []*merge.BlockError
}

func (s *Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Blocks: %d indexed, %d segmented\n", s.TotalBlocks, s.DoneBlocks)
	fmt.Fprintf(&b, "States: %d pending, %d pooled, %d applied\n", s.Pending, s.Pooled, s.Applied)
	if s.HasPool {
		fmt.Fprintf(&b, "Pool: next gid %d, %d merged labels\n", s.NextGID, s.MergedLabels)
	} else {
		fmt.Fprintf(&b, "Pool: none\n")
	}
	fmt.Fprintf(&b, "Output: %s\n", humanize.Bytes(s.OutputBytes))
	for _, blkErr := range s.Inconsistent {
		fmt.Fprintf(&b, "INCONSISTENT: %v\n", blkErr)
	}
	return b.String()
}

// Status reports block counts, pool state, output size, and any
// ledger/output inconsistencies.
func (p *Pipeline) Status() (*Status, error) {
	all, err := volume.LoadIndex(p.db)
	if err != nil {
		return nil, err
	}
	s := &Status{TotalBlocks: len(all)}
	for _, meta := range all {
		if meta.Done {
			s.DoneBlocks++
		}
	}

	counts, err := p.ledger.Counts()
	if err != nil {
		return nil, err
	}
	s.Pooled = counts[merge.StatePooled]
	s.Applied = counts[merge.StateApplied]
	s.Pending = s.DoneBlocks - s.Pooled - s.Applied
	if s.Pending < 0 {
		s.Pending = 0
	}

	pool, err := merge.LoadPool(p.db)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		s.HasPool = true
		s.NextGID = pool.NextGID
		s.MergedLabels = len(pool.Rep)
	}

	if s.OutputBytes, err = p.out.Size(); err != nil {
		return nil, err
	}
	if s.Inconsistent, err = merge.VerifyApplied(p.store, p.ledger, p.out); err != nil {
		return nil, err
	}
	return s, nil
}

// Clean resets the given blocks to pending: their output regions are removed,
// their ledger entries dropped, and their labels withdrawn from the persisted
// pool.  Merges between other blocks are untouched.  After cleaning, a pools
// run re-admits the blocks once their segmentation is redone.
func (p *Pipeline) Clean(indices []int) error {
	pool, err := merge.LoadPool(p.db)
	if err != nil {
		return err
	}
	for _, index := range indices {
		meta, err := volume.GetBlockMeta(p.db, index)
		if err == nil {
			if err := p.out.RemoveRegion(meta.Bounds); err != nil {
				return fmt.Errorf("can't remove output region for block %d: %v", index, err)
			}
		}
		if err := p.ledger.Clean(index); err != nil {
			return err
		}
		if pool != nil {
			pool.RemoveBlock(index)
		}
		kns.Infof("Cleaned block %d\n", index)
	}
	if pool != nil {
		return merge.SavePool(p.db, pool)
	}
	return nil
}

// CleanAll resets every block with merge progress, pooled or applied, back to
// pending and discards the persisted pool.  The next pools run renumbers from
// scratch.
func (p *Pipeline) CleanAll() error {
	pooled, err := p.ledger.BlocksInState(merge.StatePooled)
	if err != nil {
		return err
	}
	applied, err := p.ledger.BlocksInState(merge.StateApplied)
	if err != nil {
		return err
	}
	if err := p.Clean(append(pooled, applied...)); err != nil {
		return err
	}
	return merge.DeletePool(p.db)
}
