/*
	Package volume provides the label-volume data model for the merge
	pipeline: per-block voxel label arrays with bounding geometry, a
	read-only BlockStore over externally segmented block outputs, and the
	progressively written chunked OutputVolume.
*/
package volume

import (
	"encoding/binary"
	"fmt"

	"github.com/kuan-lab/kns/kns"
)

// Labels holds a 3d array of uint64 voxel labels within the given bounds.
// Data is stored in zyx order with x varying fastest.  Label 0 is background.
type Labels struct {
	Bounds kns.Box3d
	Data   []uint64
}

// NewLabels returns a zeroed label array spanning the given bounds.
func NewLabels(bounds kns.Box3d) *Labels {
	return &Labels{
		Bounds: bounds,
		Data:   make([]uint64, bounds.NumVoxels()),
	}
}

// offset returns the linear index of the given global voxel coordinate.
func (l *Labels) offset(p kns.Point3d) int64 {
	size := l.Bounds.Size()
	local := p.Sub(l.Bounds.Min)
	return (int64(local[2])*int64(size[1])+int64(local[1]))*int64(size[0]) + int64(local[0])
}

// Value returns the label at the given global voxel coordinate.
func (l *Labels) Value(p kns.Point3d) uint64 {
	return l.Data[l.offset(p)]
}

// SetValue sets the label at the given global voxel coordinate.
func (l *Labels) SetValue(p kns.Point3d, label uint64) {
	l.Data[l.offset(p)] = label
}

// MaxLabel returns the largest label present in the array.
func (l *Labels) MaxLabel() uint64 {
	var max uint64
	for _, label := range l.Data {
		if label > max {
			max = label
		}
	}
	return max
}

// AddOffset adds the given offset to every nonzero label, mapping block-local
// labels into a globally unique range.  Background voxels stay 0.
func (l *Labels) AddOffset(offset uint64) {
	if offset == 0 {
		return
	}
	for i, label := range l.Data {
		if label != 0 {
			l.Data[i] = label + offset
		}
	}
}

// Relabel replaces every label that has an entry in the mapping with its
// mapped value.  Labels without an entry are left unchanged.
func (l *Labels) Relabel(mapping map[uint64]uint64) {
	if len(mapping) == 0 {
		return
	}
	for i, label := range l.Data {
		if mapped, found := mapping[label]; found {
			l.Data[i] = mapped
		}
	}
}

// Extract returns a copy of the labels within the given box, which must lie
// within the array bounds.
func (l *Labels) Extract(box kns.Box3d) (*Labels, error) {
	if !l.Bounds.ContainsBox(box) {
		return nil, fmt.Errorf("cannot extract %s from labels spanning %s", box, l.Bounds)
	}
	sub := NewLabels(box)
	size := box.Size()
	srcSize := l.Bounds.Size()
	var dst int64
	for z := box.Min[2]; z < box.Max[2]; z++ {
		for y := box.Min[1]; y < box.Max[1]; y++ {
			src := (int64(z-l.Bounds.Min[2])*int64(srcSize[1])+int64(y-l.Bounds.Min[1]))*int64(srcSize[0]) +
				int64(box.Min[0]-l.Bounds.Min[0])
			copy(sub.Data[dst:dst+int64(size[0])], l.Data[src:src+int64(size[0])])
			dst += int64(size[0])
		}
	}
	return sub, nil
}

// WriteInto copies this label array into the destination array wherever the
// two bounds intersect.
func (l *Labels) WriteInto(dst *Labels) {
	isect, ok := l.Bounds.Intersect(dst.Bounds)
	if !ok {
		return
	}
	for z := isect.Min[2]; z < isect.Max[2]; z++ {
		for y := isect.Min[1]; y < isect.Max[1]; y++ {
			for x := isect.Min[0]; x < isect.Max[0]; x++ {
				p := kns.Point3d{x, y, z}
				dst.SetValue(p, l.Value(p))
			}
		}
	}
}

// MarshalBinary returns the little-endian byte representation of the voxel data.
func (l *Labels) MarshalBinary() ([]byte, error) {
	b := make([]byte, len(l.Data)*8)
	for i, label := range l.Data {
		binary.LittleEndian.PutUint64(b[i*8:], label)
	}
	return b, nil
}

// UnmarshalBinary fills the voxel data from little-endian bytes.  The array
// bounds must already be set so the expected length is known.
func (l *Labels) UnmarshalBinary(b []byte) error {
	numVoxels := l.Bounds.NumVoxels()
	if int64(len(b)) != numVoxels*8 {
		return fmt.Errorf("expected %d bytes for labels spanning %s, got %d", numVoxels*8, l.Bounds, len(b))
	}
	l.Data = make([]uint64, numVoxels)
	for i := range l.Data {
		l.Data[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return nil
}
