package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuan-lab/kns/kns"
)

func TestLabelsAccessors(t *testing.T) {
	bounds := kns.Box3d{Min: kns.Point3d{10, 20, 30}, Max: kns.Point3d{14, 24, 34}}
	labels := NewLabels(bounds)
	require.Len(t, labels.Data, 64)

	p := kns.Point3d{12, 21, 33}
	labels.SetValue(p, 42)
	require.Equal(t, uint64(42), labels.Value(p))
	require.Equal(t, uint64(42), labels.MaxLabel())
}

func TestLabelsAddOffset(t *testing.T) {
	bounds := kns.Box3d{Min: kns.Point3d{0, 0, 0}, Max: kns.Point3d{2, 2, 1}}
	labels := NewLabels(bounds)
	labels.Data = []uint64{0, 1, 2, 0}

	labels.AddOffset(100)
	require.Equal(t, []uint64{0, 101, 102, 0}, labels.Data, "background must stay 0")

	labels.AddOffset(0)
	require.Equal(t, []uint64{0, 101, 102, 0}, labels.Data)
}

func TestLabelsRelabel(t *testing.T) {
	bounds := kns.Box3d{Min: kns.Point3d{0, 0, 0}, Max: kns.Point3d{4, 1, 1}}
	labels := NewLabels(bounds)
	labels.Data = []uint64{5, 6, 7, 0}

	labels.Relabel(map[uint64]uint64{6: 5, 7: 7})
	require.Equal(t, []uint64{5, 5, 7, 0}, labels.Data, "unmapped labels must be unchanged")
}

func TestLabelsExtract(t *testing.T) {
	bounds := kns.Box3d{Min: kns.Point3d{0, 0, 0}, Max: kns.Point3d{4, 4, 4}}
	labels := NewLabels(bounds)
	for z := int32(0); z < 4; z++ {
		for y := int32(0); y < 4; y++ {
			for x := int32(0); x < 4; x++ {
				labels.SetValue(kns.Point3d{x, y, z}, uint64(x+10*y+100*z))
			}
		}
	}

	box := kns.Box3d{Min: kns.Point3d{1, 1, 1}, Max: kns.Point3d{3, 3, 3}}
	sub, err := labels.Extract(box)
	require.NoError(t, err)
	require.Equal(t, box, sub.Bounds)
	for z := box.Min[2]; z < box.Max[2]; z++ {
		for y := box.Min[1]; y < box.Max[1]; y++ {
			for x := box.Min[0]; x < box.Max[0]; x++ {
				p := kns.Point3d{x, y, z}
				require.Equal(t, labels.Value(p), sub.Value(p), "voxel %s", p)
			}
		}
	}

	outside := kns.Box3d{Min: kns.Point3d{2, 2, 2}, Max: kns.Point3d{6, 6, 6}}
	_, err = labels.Extract(outside)
	require.Error(t, err)
}

func TestLabelsBinaryRoundtrip(t *testing.T) {
	bounds := kns.Box3d{Min: kns.Point3d{0, 0, 0}, Max: kns.Point3d{3, 2, 1}}
	labels := NewLabels(bounds)
	labels.Data = []uint64{1, 0, 3, 0, 5, 1 << 40}

	b, err := labels.MarshalBinary()
	require.NoError(t, err)

	restored := &Labels{Bounds: bounds}
	require.NoError(t, restored.UnmarshalBinary(b))
	require.Equal(t, labels.Data, restored.Data)

	bad := &Labels{Bounds: bounds}
	require.Error(t, bad.UnmarshalBinary(b[:8]), "short payloads must be rejected")
}
