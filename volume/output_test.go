package volume

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kuan-lab/kns/kns"
)

func TestOutputVolumeRoundtrip(t *testing.T) {
	out, err := OpenOutputVolume(t.TempDir())
	require.NoError(t, err)

	bounds := kns.Box3d{Min: kns.Point3d{0, 0, 0}, Max: kns.Point3d{3, 3, 3}}
	labels := NewLabels(bounds)
	labels.SetValue(kns.Point3d{1, 1, 1}, 77)

	require.False(t, out.HasRegion(bounds))
	require.NoError(t, out.WriteRegion(labels))
	require.True(t, out.HasRegion(bounds))

	got, err := out.ReadRegion(bounds)
	require.NoError(t, err)
	require.Equal(t, labels.Data, got.Data)

	size, err := out.Size()
	require.NoError(t, err)
	require.Greater(t, size, uint64(0))
}

func TestOutputVolumeRewriteIdempotent(t *testing.T) {
	out, err := OpenOutputVolume(t.TempDir())
	require.NoError(t, err)

	bounds := kns.Box3d{Min: kns.Point3d{8, 0, 0}, Max: kns.Point3d{16, 8, 8}}
	labels := NewLabels(bounds)
	for i := range labels.Data {
		labels.Data[i] = uint64(i % 5)
	}

	require.NoError(t, out.WriteRegion(labels))
	first, err := out.ReadRegion(bounds)
	require.NoError(t, err)

	require.NoError(t, out.WriteRegion(labels))
	second, err := out.ReadRegion(bounds)
	require.NoError(t, err)
	require.Equal(t, first.Data, second.Data)
}

func TestOutputVolumeRemoveRegion(t *testing.T) {
	out, err := OpenOutputVolume(t.TempDir())
	require.NoError(t, err)

	bounds := kns.Box3d{Min: kns.Point3d{0, 0, 0}, Max: kns.Point3d{2, 2, 2}}
	require.NoError(t, out.WriteRegion(NewLabels(bounds)))
	require.NoError(t, out.RemoveRegion(bounds))
	require.False(t, out.HasRegion(bounds))

	// Removing an absent region is not an error.
	require.NoError(t, out.RemoveRegion(bounds))
}
