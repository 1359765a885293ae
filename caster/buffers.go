package caster

import (
	"reflect"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
	"github.com/hartkaymann/viewsheds-sub000/scene"
)

// Size of buffer elements in bytes.
const (
	sizeofRay       = 32 // origin vec4 + direction vec4
	sizeofCandidate = 8  // leaf index u32 + distance f32
	sizeofWord      = 4  // u32
	sizeofTriangle  = 12 // 3 vertex indices
)

type bufferSet struct {
	// Spatial index data.
	Nodes         device.Buffer
	Points        device.Buffer
	Triangles     device.Buffer
	TriangleIndex device.Buffer

	// Pipeline working set.
	Rays            device.Buffer
	Candidates      device.Buffer
	CandidateCounts device.Buffer

	// Bit-packed visibility flags, 32 per word.
	LeafVisibility  device.Buffer
	PointVisibility device.Buffer
}

// Allocate new buffer set.
func newBufferSet(dev device.Device) *bufferSet {
	return &bufferSet{
		Nodes:           dev.Buffer("nodes"),
		Points:          dev.Buffer("points"),
		Triangles:       dev.Buffer("triangles"),
		TriangleIndex:   dev.Buffer("triangleIndex"),
		Rays:            dev.Buffer("rays"),
		Candidates:      dev.Buffer("candidates"),
		CandidateCounts: dev.Buffer("candidateCounts"),
		LeafVisibility:  dev.Buffer("leafVisibility"),
		PointVisibility: dev.Buffer("pointVisibility"),
	}
}

// Release all buffers.
func (bs *bufferSet) Release() {
	reflVal := reflect.ValueOf(*bs)
	for fieldIndex := 0; fieldIndex < reflVal.NumField(); fieldIndex++ {
		if buf, isBuffer := reflVal.Field(fieldIndex).Interface().(device.Buffer); isBuffer {
			buf.Release()
		}
	}
}

// Upload the serialized index and its backing geometry.
func (bs *bufferSet) UploadIndex(tree *scene.QuadTree, cloud *scene.PointCloud, triangles []scene.Triangle) error {
	var err error

	err = bs.Nodes.AllocateAndWrite(tree.Flatten())
	if err != nil {
		return err
	}
	err = bs.Points.AllocateAndWrite(cloud.Points)
	if err != nil {
		return err
	}
	err = allocateAndWriteOrReserve(bs.Triangles, triangles, len(triangles)*sizeofTriangle)
	if err != nil {
		return err
	}
	return allocateAndWriteOrReserve(bs.TriangleIndex, tree.TriangleIndex, len(tree.TriangleIndex)*sizeofWord)
}

// Resize the pipeline working set for the given ray grid and index shape and
// clear the visibility masks.
func (bs *bufferSet) Resize(rayCount, candidateBlock uint32, leafCount, pointCount int) error {
	var err error

	err = bs.Rays.Allocate(int(rayCount) * sizeofRay)
	if err != nil {
		return err
	}
	err = bs.Candidates.Allocate(int(rayCount) * int(candidateBlock) * sizeofCandidate)
	if err != nil {
		return err
	}
	err = bs.CandidateCounts.Allocate(int(rayCount) * sizeofWord)
	if err != nil {
		return err
	}
	err = bs.LeafVisibility.Allocate(bitmaskBytes(leafCount))
	if err != nil {
		return err
	}
	err = bs.PointVisibility.Allocate(bitmaskBytes(pointCount))
	if err != nil {
		return err
	}
	return bs.ClearVisibility()
}

// Zero the visibility masks and candidate counts so a fresh run starts from
// a clean slate.
func (bs *bufferSet) ClearVisibility() error {
	for _, buf := range []device.Buffer{bs.LeafVisibility, bs.PointVisibility, bs.CandidateCounts} {
		if err := buf.Write(make([]byte, buf.Size()), 0); err != nil {
			return err
		}
	}
	return nil
}

// Device buffers cannot be zero-sized; when a dataset legitimately has no
// triangles the buffer is reserved at minimum width and never read, since
// every leaf then carries a zero triangle count.
func allocateAndWriteOrReserve(buf device.Buffer, data interface{}, size int) error {
	if size == 0 {
		return buf.Allocate(sizeofWord)
	}
	if err := buf.Allocate(size); err != nil {
		return err
	}
	return buf.Write(data, 0)
}

func bitmaskBytes(flagCount int) int {
	words := (flagCount + 31) / 32
	if words == 0 {
		words = 1
	}
	return words * sizeofWord
}
