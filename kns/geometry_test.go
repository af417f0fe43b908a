package kns

import (
	"testing"
)

func TestBoxIntersect(t *testing.T) {
	a := Box3d{Min: Point3d{0, 0, 0}, Max: Point3d{10, 10, 10}}
	b := Box3d{Min: Point3d{7, 7, 7}, Max: Point3d{17, 17, 17}}

	isect, ok := a.Intersect(b)
	if !ok {
		t.Fatalf("expected boxes %s and %s to intersect", a, b)
	}
	expected := Box3d{Min: Point3d{7, 7, 7}, Max: Point3d{10, 10, 10}}
	if isect != expected {
		t.Errorf("expected intersection %s, got %s", expected, isect)
	}
	if isect.NumVoxels() != 27 {
		t.Errorf("expected 27 voxels in intersection, got %d", isect.NumVoxels())
	}

	// Boxes that only touch on a face should not intersect.
	c := Box3d{Min: Point3d{10, 0, 0}, Max: Point3d{20, 10, 10}}
	if _, ok := a.Intersect(c); ok {
		t.Errorf("face-adjacent boxes %s and %s should not intersect", a, c)
	}

	// Disjoint boxes.
	d := Box3d{Min: Point3d{100, 100, 100}, Max: Point3d{110, 110, 110}}
	if _, ok := a.Intersect(d); ok {
		t.Errorf("disjoint boxes %s and %s should not intersect", a, d)
	}
}

func TestBoxContains(t *testing.T) {
	box := Box3d{Min: Point3d{2, 2, 2}, Max: Point3d{5, 5, 5}}
	if !box.Contains(Point3d{2, 2, 2}) {
		t.Errorf("box should contain its minimum corner")
	}
	if box.Contains(Point3d{5, 5, 5}) {
		t.Errorf("box should not contain its maximum corner (half-open bounds)")
	}
	if !box.ContainsBox(Box3d{Min: Point3d{3, 3, 3}, Max: Point3d{5, 5, 5}}) {
		t.Errorf("box should contain sub-box sharing its maximum corner")
	}
}

func TestBlockGrid(t *testing.T) {
	grid := BlockGrid(Point3d{20, 20, 10}, Point3d{10, 10, 10}, Point3d{2, 2, 0})

	// Step is 8 in x and y, so 3 blocks per axis in x/y, 1 in z.
	if len(grid) != 9 {
		t.Fatalf("expected 9 blocks, got %d", len(grid))
	}
	for _, box := range grid {
		if box.NumVoxels() == 0 {
			t.Errorf("grid produced empty block %s", box)
		}
		if box.Max[0] > 20 || box.Max[1] > 20 || box.Max[2] > 10 {
			t.Errorf("block %s exceeds volume bounds", box)
		}
	}

	// First two blocks in x overlap by 2 voxels.
	isect, ok := grid[0].Intersect(grid[1])
	if !ok {
		t.Fatalf("adjacent blocks %s and %s should overlap", grid[0], grid[1])
	}
	if size := isect.Size(); size[0] != 2 {
		t.Errorf("expected overlap width of 2 in x, got %d", size[0])
	}

	// Determinism: a second generation must be identical.
	grid2 := BlockGrid(Point3d{20, 20, 10}, Point3d{10, 10, 10}, Point3d{2, 2, 0})
	for i := range grid {
		if grid[i] != grid2[i] {
			t.Fatalf("block grid generation is not deterministic at index %d", i)
		}
	}
}
