package merge

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuan-lab/kns/kns"
	"github.com/kuan-lab/kns/storage"
	"github.com/kuan-lab/kns/volume"
)

// testEnv bundles the stores a pipeline phase needs.
type testEnv struct {
	store  *volume.BlockStore
	ledger *ProgressLedger
	out    *volume.OutputVolume
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	db, _, err := storage.NewStore("badger", storage.StoreConfig{Path: filepath.Join(dir, "db")})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	out, err := volume.OpenOutputVolume(filepath.Join(dir, "out"))
	require.NoError(t, err)
	return &testEnv{
		store:  volume.NewBlockStore(db, 16*kns.Mega),
		ledger: NewProgressLedger(db),
		out:    out,
		dir:    dir,
	}
}

// writeBlock stores a block with the given bounds and voxel labels.
func (env *testEnv) writeBlock(t *testing.T, index int, bounds kns.Box3d, setup func(*volume.Labels)) {
	t.Helper()
	labels := volume.NewLabels(bounds)
	if setup != nil {
		setup(labels)
	}
	path := filepath.Join(env.dir, "blocks", blockFilename(index))
	require.NoError(t, env.store.WriteBlock(index, path, labels))
}

func blockFilename(index int) string {
	return fmt.Sprintf("block_%04d.seg", index)
}

// twoBlockOverlap writes the canonical two-block fixture: block A spans
// x 0..10 and block B spans x 7..17, sharing a 3x3x3 overlap.  In the overlap,
// A's label 1 co-occurs with B's label 5 in 20 voxels, and A's label 2
// co-occurs with B's label 6 in a single voxel.
func (env *testEnv) twoBlockOverlap(t *testing.T) {
	t.Helper()
	boundsA := kns.Box3d{Min: kns.Point3d{0, 0, 0}, Max: kns.Point3d{10, 3, 3}}
	boundsB := kns.Box3d{Min: kns.Point3d{7, 0, 0}, Max: kns.Point3d{17, 3, 3}}

	// The overlap spans x 7..10, y 0..3, z 0..3 = 27 voxels.  The first 20
	// voxels in scan order carry the 1<->5 pairing, the next one 2<->6.
	var count int
	fill := func(labels *volume.Labels, big, small uint64) {
		count = 0
		for z := int32(0); z < 3; z++ {
			for y := int32(0); y < 3; y++ {
				for x := int32(7); x < 10; x++ {
					p := kns.Point3d{x, y, z}
					switch {
					case count < 20:
						labels.SetValue(p, big)
					case count < 21:
						labels.SetValue(p, small)
					}
					count++
				}
			}
		}
	}
	env.writeBlock(t, 0, boundsA, func(labels *volume.Labels) {
		fill(labels, 1, 2)
		// Body mass outside the overlap.
		labels.SetValue(kns.Point3d{0, 0, 0}, 1)
		labels.SetValue(kns.Point3d{1, 0, 0}, 2)
	})
	env.writeBlock(t, 1, boundsB, func(labels *volume.Labels) {
		fill(labels, 5, 6)
		labels.SetValue(kns.Point3d{16, 0, 0}, 5)
		labels.SetValue(kns.Point3d{16, 1, 0}, 6)
	})
}
