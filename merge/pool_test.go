package merge

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuan-lab/kns/volume"
)

func TestComputeOffsets(t *testing.T) {
	blocks := []volume.BlockMeta{
		{Index: 0, Done: true, MaxLabel: 10},
		{Index: 1, Done: false, MaxLabel: 99}, // not done, no offset
		{Index: 2, Done: true, MaxLabel: 5},
		{Index: 3, Done: true, MaxLabel: 0}, // empty block
		{Index: 4, Done: true, MaxLabel: 7},
	}
	offsets, nextGID := ComputeOffsets(blocks, nil)

	require.Equal(t, map[int]uint64{0: 0, 2: 10, 3: 15, 4: 15}, offsets)
	require.Equal(t, uint64(23), nextGID)
	_, found := offsets[1]
	require.False(t, found, "undone blocks get no offset")
}

func TestComputeOffsetsSticky(t *testing.T) {
	prev := &IDPool{
		Offsets:   map[int]uint64{1: 0, 2: 10},
		MaxLabels: map[int]uint64{1: 10, 2: 5},
		NextGID:   16,
	}

	// A lower-indexed block arriving after the pool was built must not shift
	// the ranges of blocks already pooled; it draws a fresh range at the end.
	blocks := []volume.BlockMeta{
		{Index: 0, Done: true, MaxLabel: 4},
		{Index: 1, Done: true, MaxLabel: 10},
		{Index: 2, Done: true, MaxLabel: 5},
	}
	offsets, nextGID := ComputeOffsets(blocks, prev)

	require.Equal(t, map[int]uint64{0: 15, 1: 0, 2: 10}, offsets)
	require.Equal(t, uint64(20), nextGID)

	// A re-segmented block whose labels outgrew their reserved range also
	// moves to a fresh range; its old range is abandoned, never reassigned.
	blocks[2].MaxLabel = 9
	offsets, nextGID = ComputeOffsets(blocks, prev)
	require.Equal(t, map[int]uint64{0: 15, 1: 0, 2: 19}, offsets)
	require.Equal(t, uint64(29), nextGID)
}

func TestPoolGlobalID(t *testing.T) {
	pool := &IDPool{
		Offsets:   map[int]uint64{0: 0, 1: 2},
		MaxLabels: map[int]uint64{0: 2, 1: 6},
		NextGID:   9,
		Rep:       map[uint64]uint64{7: 1},
	}

	// Background always maps to background.
	gid, err := pool.GlobalID(0, 0)
	require.NoError(t, err)
	require.Zero(t, gid)

	// Unmerged labels are their own global ID under the offset scheme.
	gid, err = pool.GlobalID(0, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), gid)

	// Merged labels redirect to their class representative.
	gid, err = pool.GlobalID(1, 5)
	require.NoError(t, err)
	require.Equal(t, uint64(1), gid)

	// Every local label present at pool time has exactly one global ID.
	seen := make(map[uint64]bool)
	for block, max := range pool.MaxLabels {
		for local := uint64(1); local <= max; local++ {
			gid, err := pool.GlobalID(block, local)
			require.NoError(t, err)
			require.NotZero(t, gid)
			seen[gid] = true
		}
	}
	require.NotEmpty(t, seen)

	// Labels beyond the pooled snapshot are stale, never fabricated.
	_, err = pool.GlobalID(0, 3)
	require.ErrorIs(t, err, ErrStalePool)
	_, err = pool.GlobalID(9, 1)
	require.ErrorIs(t, err, ErrStalePool)
}

func TestPoolCovers(t *testing.T) {
	pool := &IDPool{
		Offsets:   map[int]uint64{0: 0},
		MaxLabels: map[int]uint64{0: 4},
	}
	require.NoError(t, pool.Covers(volume.BlockMeta{Index: 0, MaxLabel: 4}))
	require.ErrorIs(t, pool.Covers(volume.BlockMeta{Index: 0, MaxLabel: 5}), ErrStalePool)
	require.ErrorIs(t, pool.Covers(volume.BlockMeta{Index: 7, MaxLabel: 1}), ErrStalePool)
}

func TestPoolRemoveBlock(t *testing.T) {
	// Block ranges: 0 -> [1,3), 1 -> [3,11), 2 -> [11,16).
	pool := &IDPool{
		Offsets:   map[int]uint64{0: 0, 1: 2, 2: 10},
		MaxLabels: map[int]uint64{0: 2, 1: 8, 2: 5},
		Rep: map[uint64]uint64{
			7:  1, // block 1 label merged into block 0
			12: 11, // merge entirely within block 2
			13: 4, // blocks 2 and 0 labels whose class rep lives in block 1
			14: 4,
			2:  4,
		},
	}
	pool.RemoveBlock(1)

	_, found := pool.Offsets[1]
	require.False(t, found)
	_, found = pool.Rep[7]
	require.False(t, found, "merges involving the cleaned block's labels must be dropped")
	require.Equal(t, uint64(11), pool.Rep[12], "merges between other blocks survive")

	// The class rooted at block 1's label 4 re-roots at its smallest
	// surviving member rather than falling apart.
	_, found = pool.Rep[2]
	require.False(t, found, "label 2 is the new representative and needs no entry")
	require.Equal(t, uint64(2), pool.Rep[13])
	require.Equal(t, uint64(2), pool.Rep[14])
}

func TestPoolPersistenceRoundtrip(t *testing.T) {
	env := newTestEnv(t)
	db := env.store.DB()

	// No pool yet.
	pool, err := LoadPool(db)
	require.NoError(t, err)
	require.Nil(t, pool)

	original := &IDPool{
		Offsets:   map[int]uint64{0: 0, 2: 10},
		MaxLabels: map[int]uint64{0: 10, 2: 5},
		NextGID:   16,
		Rep:       map[uint64]uint64{12: 3, 14: 1},
	}
	require.NoError(t, SavePool(db, original))

	loaded, err := LoadPool(db)
	require.NoError(t, err)
	require.Equal(t, original, loaded)

	// Deterministic serialization: identical pools give identical bytes.
	b1, err := original.MarshalBinary()
	require.NoError(t, err)
	b2, err := loaded.MarshalBinary()
	require.NoError(t, err)
	require.Equal(t, b1, b2)

	require.NoError(t, DeletePool(db))
	pool, err = LoadPool(db)
	require.NoError(t, err)
	require.Nil(t, pool)
}
