package pipeline

import (
	"github.com/kuan-lab/kns/merge"
	"github.com/kuan-lab/kns/volume"
)

// Batch is one shard of block work for submission by an external scheduler.
type Batch struct {
	// Num is the batch's position in the plan, starting at 0.
	Num int

	// Indices are the block indices in this batch, ascending.
	Indices []int
}

// PlanBatches splits the given block indices into batches of at most size
// blocks, preserving order.  Size values below 1 use the default.
func PlanBatches(indices []int, size int) []Batch {
	if size < 1 {
		size = DefaultBatchSize
	}
	var batches []Batch
	for start := 0; start < len(indices); start += size {
		end := start + size
		if end > len(indices) {
			end = len(indices)
		}
		batches = append(batches, Batch{
			Num:     len(batches),
			Indices: indices[start:end],
		})
	}
	return batches
}

// PendingBlocks returns the indices of blocks that still need merge work:
// segmentation is done but the block has not been applied.  These are the
// candidates for the next pools/apply cycle.
func (p *Pipeline) PendingBlocks() ([]int, error) {
	done, err := volume.DoneBlocks(p.db)
	if err != nil {
		return nil, err
	}
	var indices []int
	for _, meta := range done {
		state, err := p.ledger.GetState(meta.Index)
		if err != nil {
			return nil, err
		}
		if state != merge.StateApplied {
			indices = append(indices, meta.Index)
		}
	}
	return indices, nil
}

// UnsegmentedBlocks returns the indices of blocks in the metadata index whose
// segmentation has not finished, for planning segmentation batches.
func (p *Pipeline) UnsegmentedBlocks() ([]int, error) {
	all, err := volume.LoadIndex(p.db)
	if err != nil {
		return nil, err
	}
	var indices []int
	for _, meta := range all {
		if !meta.Done {
			indices = append(indices, meta.Index)
		}
	}
	return indices, nil
}
