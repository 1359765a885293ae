package scene

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Serialized node record size. 12 four-byte words per node: pos (3×f32),
// childFlag (u32), size (3×f32), startPointIndex, pointCount,
// startTriangleIndex, triangleCount (u32 each) and one padding word keeping
// the record 16-byte aligned for the device.
const NodeByteSize = 48

// Child flag values stored in the flat node record.
const (
	flatNodeLeaf     = 0
	flatNodeInternal = NodeChildCount
)

// Flatten serializes the node arena into the device-consumable byte buffer,
// one fixed-width little-endian record per node in BFS order. The result is
// cached until the next assignment pass dirties the tree; callers must treat
// the returned slice as read-only.
func (t *QuadTree) Flatten() []byte {
	if !t.dirty && t.flat != nil {
		return t.flat
	}

	buf := make([]byte, len(t.Nodes)*NodeByteSize)
	for i := range t.Nodes {
		n := &t.Nodes[i]
		rec := buf[i*NodeByteSize:]

		childFlag := uint32(flatNodeInternal)
		if t.IsLeaf(i) {
			childFlag = flatNodeLeaf
		}

		putFloat32(rec[0:], n.Bounds.Pos[0])
		putFloat32(rec[4:], n.Bounds.Pos[1])
		putFloat32(rec[8:], n.Bounds.Pos[2])
		binary.LittleEndian.PutUint32(rec[12:], childFlag)
		putFloat32(rec[16:], n.Bounds.Size[0])
		putFloat32(rec[20:], n.Bounds.Size[1])
		putFloat32(rec[24:], n.Bounds.Size[2])
		binary.LittleEndian.PutUint32(rec[28:], n.StartPoint)
		binary.LittleEndian.PutUint32(rec[32:], n.PointCount)
		binary.LittleEndian.PutUint32(rec[36:], n.StartTriangle)
		binary.LittleEndian.PutUint32(rec[40:], n.TriangleCount)
		binary.LittleEndian.PutUint32(rec[44:], 0)
	}

	t.flat = buf
	t.dirty = false
	return t.flat
}

// Reconstruct rebuilds a quadtree from a flat buffer produced by Flatten.
// It allocates a structurally complete tree of the stated depth and then
// overwrites every node field from the record at that node's BFS offset, so
// re-flattening the result reproduces the input bytes exactly.
func Reconstruct(buf []byte, depth int) (*QuadTree, error) {
	if depth < 0 {
		return nil, fmt.Errorf("scene: tree depth must not be negative; got %d", depth)
	}

	want := TreeNodeCount(depth) * NodeByteSize
	if len(buf) != want {
		return nil, fmt.Errorf("scene: flat buffer holds %d bytes; depth %d tree needs %d", len(buf), depth, want)
	}

	t := NewQuadTree(types.AABB{}, depth)
	for i := range t.Nodes {
		n := &t.Nodes[i]
		rec := buf[i*NodeByteSize:]

		n.Bounds.Pos = types.XYZ(getFloat32(rec[0:]), getFloat32(rec[4:]), getFloat32(rec[8:]))
		n.Bounds.Size = types.XYZ(getFloat32(rec[16:]), getFloat32(rec[20:]), getFloat32(rec[24:]))
		n.StartPoint = binary.LittleEndian.Uint32(rec[28:])
		n.PointCount = binary.LittleEndian.Uint32(rec[32:])
		n.StartTriangle = binary.LittleEndian.Uint32(rec[36:])
		n.TriangleCount = binary.LittleEndian.Uint32(rec[40:])
	}

	return t, nil
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
