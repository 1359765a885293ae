package scene

import (
	"testing"

	"github.com/hartkaymann/viewsheds-sub000/types"
)

func TestSortWalksQuadrantsInCurveOrder(t *testing.T) {
	bounds := types.AABB{Pos: types.XYZ(0, 0, 0), Size: types.XYZ(4, 1, 4)}

	// One point per quadrant, deliberately shuffled.
	points := []types.Vec4{
		types.XYZW(3, 0, 3, 1), // high-Z/high-X
		types.XYZW(1, 0, 1, 1), // low-Z/low-X
		types.XYZW(1, 0, 3, 1), // high-Z/low-X
		types.XYZW(3, 0, 1, 1), // low-Z/high-X
	}

	sorted, _ := Sort(points, bounds)

	expected := []types.Vec4{
		types.XYZW(1, 0, 1, 1),
		types.XYZW(3, 0, 1, 1),
		types.XYZW(1, 0, 3, 1),
		types.XYZW(3, 0, 3, 1),
	}
	for i, want := range expected {
		if sorted[i] != want {
			t.Fatalf("expected point %v at slot %d; got %v", want, i, sorted[i])
		}
	}
}

func TestSortIsStable(t *testing.T) {
	bounds := types.AABB{Pos: types.XYZ(0, 0, 0), Size: types.XYZ(4, 1, 4)}

	// Three points in the same curve cell, distinguished only by w.
	points := []types.Vec4{
		types.XYZW(3, 0, 3, 1),
		types.XYZW(1, 0, 1, 10),
		types.XYZW(1, 0, 1, 11),
		types.XYZW(1, 0, 1, 12),
	}

	sorted, _ := Sort(points, bounds)

	for i, want := range []float32{10, 11, 12} {
		if sorted[i][3] != want {
			t.Fatalf("expected w=%v at slot %d; got %v", want, i, sorted[i][3])
		}
	}
}

func TestSortReturnsPermutation(t *testing.T) {
	bounds := types.AABB{Pos: types.XYZ(0, 0, 0), Size: types.XYZ(4, 1, 4)}
	points := []types.Vec4{
		types.XYZW(3.5, 0, 3.5, 1),
		types.XYZW(0.5, 0, 0.5, 1),
		types.XYZW(2.5, 0, 1.5, 1),
		types.XYZW(1.5, 0, 2.5, 1),
	}

	sorted, indices := Sort(points, bounds)

	if len(indices) != len(points) {
		t.Fatalf("expected %d indices; got %d", len(points), len(indices))
	}
	seen := make(map[uint32]bool)
	for slot, idx := range indices {
		if seen[idx] {
			t.Fatalf("index %d appears more than once in the permutation", idx)
		}
		seen[idx] = true
		if sorted[slot] != points[idx] {
			t.Fatalf("expected sorted slot %d to hold original point %d", slot, idx)
		}
	}
}

func TestSortClampsPointsOnMaxBound(t *testing.T) {
	bounds := types.AABB{Pos: types.XYZ(0, 0, 0), Size: types.XYZ(4, 1, 4)}
	points := []types.Vec4{
		types.XYZW(4, 0, 4, 1), // exactly on the max corner
		types.XYZW(0, 0, 0, 1),
	}

	sorted, _ := Sort(points, bounds)
	if sorted[0] != points[1] || sorted[1] != points[0] {
		t.Fatalf("expected the max-bound point to sort into the top cell; got %v", sorted)
	}
}

func TestRemapTrianglesFollowsPermutation(t *testing.T) {
	bounds := types.AABB{Pos: types.XYZ(0, 0, 0), Size: types.XYZ(4, 1, 4)}
	points := []types.Vec4{
		types.XYZW(3, 0, 3, 1),
		types.XYZW(1, 0, 1, 1),
		types.XYZW(3, 0, 1, 1),
	}
	triangles := []Triangle{{0, 1, 2}}

	sorted, indices := Sort(points, bounds)
	remapped := RemapTriangles(triangles, indices)

	for v := 0; v < 3; v++ {
		if sorted[remapped[0][v]] != points[triangles[0][v]] {
			t.Fatalf("expected remapped vertex %d to reference the same position", v)
		}
	}
}

func TestSortCloudReordersClassifications(t *testing.T) {
	bounds := types.AABB{Pos: types.XYZ(0, 0, 0), Size: types.XYZ(4, 1, 4)}
	cloud := &PointCloud{
		Points: []types.Vec4{
			types.XYZW(3, 0, 3, 1),
			types.XYZW(1, 0, 1, 1),
		},
		Classifications: []uint8{7, 2},
	}

	sorted, _ := SortCloud(cloud, bounds)

	if sorted.Classifications[0] != 2 || sorted.Classifications[1] != 7 {
		t.Fatalf("expected classifications [2 7]; got %v", sorted.Classifications)
	}
}
