package kns

import (
	"encoding/gob"
	"fmt"
)

func init() {
	gob.Register(Box3d{})
}

// Box3d is an axis-aligned box in voxel space, half-open on the maximum side:
// a voxel p is inside when Min[d] <= p[d] < Max[d] for all dimensions d.
// Blocks declare their bounding geometry, including any overlap margin with
// neighbors, using this type.
type Box3d struct {
	Min Point3d
	Max Point3d
}

// Size returns the extent of the box in each dimension.
func (b Box3d) Size() Point3d {
	return b.Max.Sub(b.Min)
}

// NumVoxels returns the number of voxels within the box.
func (b Box3d) NumVoxels() int64 {
	size := b.Size()
	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return 0
	}
	return size.Prod()
}

// Contains returns true if the given point falls within the box.
func (b Box3d) Contains(p Point3d) bool {
	for dim := 0; dim < 3; dim++ {
		if p[dim] < b.Min[dim] || p[dim] >= b.Max[dim] {
			return false
		}
	}
	return true
}

// ContainsBox returns true if the passed box lies entirely within the receiver.
func (b Box3d) ContainsBox(b2 Box3d) bool {
	for dim := 0; dim < 3; dim++ {
		if b2.Min[dim] < b.Min[dim] || b2.Max[dim] > b.Max[dim] {
			return false
		}
	}
	return true
}

// Intersect returns the intersection of two boxes.  The returned bool is
// false if the boxes do not overlap, in which case the returned box is
// meaningless.  Boxes that merely touch on a face do not intersect since
// bounds are half-open.
func (b Box3d) Intersect(b2 Box3d) (Box3d, bool) {
	var isect Box3d
	for dim := 0; dim < 3; dim++ {
		min := b.Min[dim]
		if b2.Min[dim] > min {
			min = b2.Min[dim]
		}
		max := b.Max[dim]
		if b2.Max[dim] < max {
			max = b2.Max[dim]
		}
		if max <= min {
			return Box3d{}, false
		}
		isect.Min[dim] = min
		isect.Max[dim] = max
	}
	return isect, true
}

func (b Box3d) String() string {
	return fmt.Sprintf("[%s -> %s)", b.Min, b.Max)
}

// BlockGrid partitions a volume of the given size into blocks of blockSize
// voxels where adjacent blocks share an overlap margin.  The volume origin is
// at (0,0,0).  Trailing blocks are clipped to the volume bounds.  Block order
// is x varying fastest, then y, then z, which fixes block indices for a given
// (volume, block, overlap) geometry.
func BlockGrid(volSize, blockSize, overlap Point3d) []Box3d {
	step := blockSize.Sub(overlap)
	for dim := 0; dim < 3; dim++ {
		if step[dim] < 1 {
			step[dim] = 1
		}
	}
	var grid []Box3d
	for z := int32(0); z < volSize[2]; z += step[2] {
		for y := int32(0); y < volSize[1]; y += step[1] {
			for x := int32(0); x < volSize[0]; x += step[0] {
				box := Box3d{
					Min: Point3d{x, y, z},
					Max: Point3d{x + blockSize[0], y + blockSize[1], z + blockSize[2]}.Min(volSize),
				}
				grid = append(grid, box)
			}
		}
	}
	return grid
}
