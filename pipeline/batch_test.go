package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/volume"
)

func TestPlanBatches(t *testing.T) {
	indices := []int{0, 1, 2, 3, 4, 5, 6}

	batches := PlanBatches(indices, 3)
	require.Len(t, batches, 3)
	require.Equal(t, Batch{Num: 0, Indices: []int{0, 1, 2}}, batches[0])
	require.Equal(t, Batch{Num: 1, Indices: []int{3, 4, 5}}, batches[1])
	require.Equal(t, Batch{Num: 2, Indices: []int{6}}, batches[2])

	require.Empty(t, PlanBatches(nil, 3))

	// A non-positive size falls back to the default.
	batches = PlanBatches(indices, 0)
	require.Len(t, batches, 1)
	require.Equal(t, indices, batches[0].Indices)
}

func TestPendingBlocks(t *testing.T) {
	p := openTestPipeline(t)
	seedTwoBlocks(t, p)

	// A declared-but-unsegmented block shows up for segmentation planning,
	// not merge planning.
	bounds := kns.Box3d{Min: kns.Point3d{14, 0, 0}, Max: kns.Point3d{24, 3, 3}}
	require.NoError(t, volume.PutBlockMeta(p.db, volume.BlockMeta{Index: 2, Bounds: bounds}))

	pending, err := p.PendingBlocks()
	require.NoError(t, err)
	require.Equal(t, []int{0, 1}, pending)

	unsegmented, err := p.UnsegmentedBlocks()
	require.NoError(t, err)
	require.Equal(t, []int{2}, unsegmented)

	// Applied blocks leave the merge work list.
	_, err = p.Merge(context.Background(), false)
	require.NoError(t, err)

	pending, err = p.PendingBlocks()
	require.NoError(t, err)
	require.Empty(t, pending)
}
