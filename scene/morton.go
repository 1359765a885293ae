package scene

import (
	"sort"

	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Number of discrete cells per axis used when quantizing positions into
// Morton keys. 16 bits per axis interleave into a 32 bit key.
const mortonAxisCells = 1 << 16

// Sort orders points along a Morton (Z-order) curve over the X/Z plane so
// that points that are close in space end up close in the sorted list. The
// sort is stable: points that quantize to the same curve cell keep their
// original relative order, which keeps parallel per-point attribute arrays
// (color, classification) re-associable and makes test output deterministic.
//
// Returns the reordered point list and the permutation of [0,n) that maps
// sorted slots back to original point indices.
func Sort(points []types.Vec4, bounds types.AABB) ([]types.Vec4, []uint32) {
	keys := make([]uint32, len(points))
	for i, p := range points {
		keys[i] = mortonKey(p, bounds)
	}

	indices := make([]uint32, len(points))
	for i := range indices {
		indices[i] = uint32(i)
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return keys[indices[a]] < keys[indices[b]]
	})

	sorted := make([]types.Vec4, len(points))
	for slot, idx := range indices {
		sorted[slot] = points[idx]
	}

	return sorted, indices
}

// SortCloud applies Sort to a point cloud, reordering any parallel attribute
// arrays along with the positions. Returns the reordered cloud and the
// sorted-slot-to-original-index permutation.
func SortCloud(cloud *PointCloud, bounds types.AABB) (*PointCloud, []uint32) {
	sorted, indices := Sort(cloud.Points, bounds)

	out := &PointCloud{Points: sorted}
	if len(cloud.Classifications) == len(cloud.Points) {
		out.Classifications = make([]uint8, len(indices))
		for slot, idx := range indices {
			out.Classifications[slot] = cloud.Classifications[idx]
		}
	}
	return out, indices
}

// RemapTriangles rewrites triangle vertex references to follow the point
// permutation produced by Sort, where indices maps sorted slots back to
// original point indices.
func RemapTriangles(triangles []Triangle, indices []uint32) []Triangle {
	inverse := make([]uint32, len(indices))
	for slot, idx := range indices {
		inverse[idx] = uint32(slot)
	}

	out := make([]Triangle, len(triangles))
	for i, tri := range triangles {
		out[i] = Triangle{inverse[tri[0]], inverse[tri[1]], inverse[tri[2]]}
	}
	return out
}

// Quantize the X/Z position of p into 16 bits per axis and interleave the
// bits into a single 32 bit key. X occupies the even bits and Z the odd
// bits, so sorted keys walk the quadrants in (low-Z/low-X, low-Z/high-X,
// high-Z/low-X, high-Z/high-X) order, matching the quadtree child order.
func mortonKey(p types.Vec4, bounds types.AABB) uint32 {
	qx := quantizeAxis(p[0], bounds.Pos[0], bounds.Size[0])
	qz := quantizeAxis(p[2], bounds.Pos[2], bounds.Size[2])
	return interleave16(qx) | interleave16(qz)<<1
}

// Normalize v into [0, 1) over the given axis extent and scale it to the
// 16 bit cell range. The result is clamped below the top cell so that points
// sitting exactly on the max bound do not overflow the per-axis bit budget.
func quantizeAxis(v, origin, size float32) uint32 {
	if size <= 0 {
		return 0
	}

	norm := (v - origin) / size
	if norm < 0 {
		norm = 0
	}

	q := uint32(norm * mortonAxisCells)
	if q > mortonAxisCells-1 {
		q = mortonAxisCells - 1
	}
	return q
}

// Spread the low 16 bits of v so that bit i moves to bit 2i.
func interleave16(v uint32) uint32 {
	v &= 0x0000ffff
	v = (v | (v << 8)) & 0x00ff00ff
	v = (v | (v << 4)) & 0x0f0f0f0f
	v = (v | (v << 2)) & 0x33333333
	v = (v | (v << 1)) & 0x55555555
	return v
}
