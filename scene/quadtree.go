package scene

import (
	"math"

	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Number of children per internal quadtree node.
const NodeChildCount = 4

// A single quadtree node. Nodes live in a flat arena addressed by BFS index
// (root at 0, children of node i at 4i+1..4i+4), so the recursive build and
// the serialized layout share the same numbering and no parent/child
// pointers are needed.
type Node struct {
	Bounds types.AABB

	// Range into the Morton-sorted point list.
	StartPoint uint32
	PointCount uint32

	// Range into the tree's global triangle index buffer. Only meaningful
	// on leaves; internal nodes keep a zero range.
	StartTriangle uint32
	TriangleCount uint32
}

// A complete quadtree of fixed depth. Every node above the max depth has
// exactly four children regardless of the point distribution; the uniform
// shape trades memory for trivially computable child indices on the device.
//
// The node arena and the flat byte buffer are alternate representations of
// the same state. The flat buffer is the canonical form for transfer and is
// re-derived lazily whenever assignment dirties the arena.
type QuadTree struct {
	Depth int
	Nodes []Node

	// Global triangle index buffer. Leaves reference contiguous
	// sub-ranges of this list.
	TriangleIndex []uint32

	flat  []byte
	dirty bool
}

// Node count of a complete quadtree of the given depth: (4^(depth+1)-1)/3.
func TreeNodeCount(depth int) int {
	return (pow4(depth+1) - 1) / 3
}

// Leaf count of a complete quadtree of the given depth: 4^depth.
func TreeLeafCount(depth int) int {
	return pow4(depth)
}

func pow4(n int) int {
	return 1 << (2 * n)
}

// Build a complete quadtree of the given depth over bounds. The X/Z extent
// is halved per level; Y extents are carried down from the root and only
// become meaningful once AssignPoints derives them from the data.
func NewQuadTree(bounds types.AABB, depth int) *QuadTree {
	t := &QuadTree{
		Depth: depth,
		Nodes: make([]Node, TreeNodeCount(depth)),
		dirty: true,
	}

	t.Nodes[0].Bounds = bounds
	for i := range t.Nodes {
		if t.IsLeaf(i) {
			continue
		}
		b := t.Nodes[i].Bounds
		half := types.XYZ(b.Size[0]*0.5, b.Size[1], b.Size[2]*0.5)
		for c := 0; c < NodeChildCount; c++ {
			dx := float32(c & 1)
			dz := float32(c >> 1)
			t.Nodes[i*NodeChildCount+1+c].Bounds = types.AABB{
				Pos:  types.XYZ(b.Pos[0]+dx*half[0], b.Pos[1], b.Pos[2]+dz*half[2]),
				Size: half,
			}
		}
	}

	return t
}

// Check whether the node at the given BFS index is a leaf.
func (t *QuadTree) IsLeaf(index int) bool {
	return index*NodeChildCount+1 >= len(t.Nodes)
}

// Get the BFS index of the c-th child of the node at the given index.
func (t *QuadTree) ChildIndex(index, c int) int {
	return index*NodeChildCount + 1 + c
}

// Containment slack for partitioning against the given node. Scales with
// the node footprint so deep trees over large clouds stay numerically sane.
func nodeEpsilon(n *Node) float32 {
	min := n.Bounds.Size[0]
	if n.Bounds.Size[2] < min {
		min = n.Bounds.Size[2]
	}
	eps := min * 0.001
	if eps < 1e-6 {
		eps = 1e-6
	}
	return eps
}

// AssignPoints partitions the Morton-sorted point list across the tree.
// Each internal node hands a contiguous index range to its children by
// scanning forward while the child containment predicate holds; Morton
// contiguity is used as a proxy for per-quadrant spatial contiguity, which
// is an approximation: Z-order runs can interleave across quadrant
// boundaries, so boundary points may end up counted against the preceding
// sibling. Leaves derive their Y extent from the points they receive and
// internal nodes take the union of their children's Y extents.
//
// The input must already be in Morton order (see Sort).
func (t *QuadTree) AssignPoints(points []types.Vec4) {
	t.assignPointRange(0, 0, uint32(len(points)), points)
	t.dirty = true
}

func (t *QuadTree) assignPointRange(index int, lo, hi uint32, points []types.Vec4) {
	n := &t.Nodes[index]
	n.StartPoint = lo
	n.PointCount = hi - lo

	if t.IsLeaf(index) {
		if hi == lo {
			return
		}
		minY := float32(math.MaxFloat32)
		maxY := float32(-math.MaxFloat32)
		for _, p := range points[lo:hi] {
			if p[1] < minY {
				minY = p[1]
			}
			if p[1] > maxY {
				maxY = p[1]
			}
		}
		n.Bounds.Pos[1] = minY
		n.Bounds.Size[1] = maxY - minY
		return
	}

	cursor := lo
	for c := 0; c < NodeChildCount; c++ {
		child := t.ChildIndex(index, c)
		cb := &t.Nodes[child]
		eps := nodeEpsilon(cb)

		start := cursor
		for cursor < hi && cb.Bounds.ContainsXZ(points[cursor][0], points[cursor][2], eps) {
			cursor++
		}
		t.assignPointRange(child, start, cursor, points)
	}

	// Union the Y extents of the populated children.
	populated := false
	minY := float32(math.MaxFloat32)
	maxY := float32(-math.MaxFloat32)
	for c := 0; c < NodeChildCount; c++ {
		cb := &t.Nodes[t.ChildIndex(index, c)]
		if cb.PointCount == 0 {
			continue
		}
		populated = true
		if cb.Bounds.Pos[1] < minY {
			minY = cb.Bounds.Pos[1]
		}
		if top := cb.Bounds.Pos[1] + cb.Bounds.Size[1]; top > maxY {
			maxY = top
		}
	}
	if populated {
		n.Bounds.Pos[1] = minY
		n.Bounds.Size[1] = maxY - minY
	}
}

// AssignTriangles bins triangles into leaves. At each node the current
// candidate set is filtered down to triangles with at least one vertex
// inside the node's X/Z bounds; leaves append the surviving original
// triangle indices to the tree's global index buffer and record their
// contiguous sub-range. The filter is rerun per level, so the cost is
// O(triangles × depth) with no spatial acceleration of the filter itself.
func (t *QuadTree) AssignTriangles(triangles []Triangle, points []types.Vec4) {
	t.TriangleIndex = t.TriangleIndex[:0]

	candidates := make([]uint32, len(triangles))
	for i := range candidates {
		candidates[i] = uint32(i)
	}

	t.assignTriangleSet(0, candidates, triangles, points)
	t.dirty = true
}

func (t *QuadTree) assignTriangleSet(index int, candidates []uint32, triangles []Triangle, points []types.Vec4) {
	n := &t.Nodes[index]
	eps := nodeEpsilon(n)

	kept := make([]uint32, 0, len(candidates))
	for _, ti := range candidates {
		tri := triangles[ti]
		for _, v := range tri {
			p := points[v]
			if n.Bounds.ContainsXZ(p[0], p[2], eps) {
				kept = append(kept, ti)
				break
			}
		}
	}

	if t.IsLeaf(index) {
		n.StartTriangle = uint32(len(t.TriangleIndex))
		n.TriangleCount = uint32(len(kept))
		t.TriangleIndex = append(t.TriangleIndex, kept...)
		return
	}

	for c := 0; c < NodeChildCount; c++ {
		t.assignTriangleSet(t.ChildIndex(index, c), kept, triangles, points)
	}
}
