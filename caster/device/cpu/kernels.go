package cpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Serialized layout constants shared with the device kernels.
const (
	nodeStride      = 48
	rayStride       = 32
	candidateStride = 8
	pointStride     = 16
	triangleStride  = 12

	// Distance written to unused candidate slots so they sort to the tail.
	sentinelDistance = math.MaxFloat32

	rayEpsilon = 1e-7
)

// Stage 1: one invocation per sweep grid cell; computes the ray origin and
// direction for its theta/phi sample and writes them to the flat ray buffer.
func buildGenerateRays(args []interface{}) (func(gid [3]uint32), error) {
	var (
		rays                       *Buffer
		origin                     types.Vec4
		thetaMin, thetaStep        float32
		phiMin, phiStep            float32
		raysTheta, raysPhi         uint32
	)
	err := bindArgs(args, &rays, &origin, &thetaMin, &thetaStep, &phiMin, &phiStep, &raysTheta, &raysPhi)
	if err != nil {
		return nil, fmt.Errorf("generateRays: %v", err)
	}

	return func(gid [3]uint32) {
		x, y := gid[0], gid[1]
		if x >= raysTheta || y >= raysPhi {
			return
		}

		theta := thetaMin + float32(x)*thetaStep
		phi := phiMin + float32(y)*phiStep
		sinPhi := float32(math.Sin(float64(phi)))
		dir := types.XYZ(
			sinPhi*float32(math.Cos(float64(theta))),
			float32(math.Cos(float64(phi))),
			sinPhi*float32(math.Sin(float64(theta))),
		).Normalize()

		base := int(y*raysTheta+x) * rayStride
		putF32(rays.data, base, origin[0])
		putF32(rays.data, base+4, origin[1])
		putF32(rays.data, base+8, origin[2])
		putF32(rays.data, base+12, 1)
		putF32(rays.data, base+16, dir[0])
		putF32(rays.data, base+20, dir[1])
		putF32(rays.data, base+24, dir[2])
		putF32(rays.data, base+28, 0)
	}, nil
}

// Stage 2: one invocation per ray; stack-based descent of the complete tree
// recording candidate leaves with their entry distance, padding the unused
// tail of the fixed-width block with sentinels, and merging touched leaves
// into the shared leaf visibility mask.
func buildFindLeaves(args []interface{}) (func(gid [3]uint32), error) {
	var (
		rays, nodes, candidates  *Buffer
		counts, leafVis          *Buffer
		raysTheta, raysPhi       uint32
		depth                    uint32
	)
	err := bindArgs(args, &rays, &nodes, &candidates, &counts, &leafVis, &raysTheta, &raysPhi, &depth)
	if err != nil {
		return nil, fmt.Errorf("findLeaves: %v", err)
	}

	capacity := uint32(1) << (depth + 1)
	stackSize := 2*depth + 1
	firstLeaf := uint32((1<<(2*depth) - 1) / 3)

	return func(gid [3]uint32) {
		x, y := gid[0], gid[1]
		if x >= raysTheta || y >= raysPhi {
			return
		}
		ray := y*raysTheta + x

		origin, dir := readRay(rays.data, ray)
		blockBase := int(ray*capacity) * candidateStride
		count := uint32(0)

		record := func(leaf uint32, dist float32) {
			if count >= capacity {
				return
			}
			slot := blockBase + int(count)*candidateStride
			putU32(candidates.data, slot, leaf)
			putF32(candidates.data, slot+4, dist)
			count++

			ordinal := leaf - firstLeaf
			atomicOr32(leafVis.data, int(ordinal/32)*4, 1<<(ordinal%32))
		}

		stack := make([]uint32, 0, stackSize)
		if dist, hit := nodeBounds(nodes.data, 0).IntersectRay(origin, dir); hit {
			if nodeChildFlag(nodes.data, 0) == 0 {
				record(0, dist)
			} else {
				stack = append(stack, 0)
			}
		}

		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for c := uint32(0); c < 4; c++ {
				child := 4*n + 1 + c
				dist, hit := nodeBounds(nodes.data, child).IntersectRay(origin, dir)
				if !hit {
					continue
				}
				if nodeChildFlag(nodes.data, child) == 0 {
					record(child, dist)
				} else if uint32(len(stack)) < stackSize {
					stack = append(stack, child)
				}
			}
		}

		for slot := count; slot < capacity; slot++ {
			off := blockBase + int(slot)*candidateStride
			putU32(candidates.data, off, 0xffffffff)
			putF32(candidates.data, off+4, sentinelDistance)
		}
		putU32(counts.data, int(ray)*4, count)
	}, nil
}

// Stage 3: bitonic ordering of each ray's candidate block by ascending
// distance. The dispatch runs one thread per block lane; on real hardware
// every lane participates in the compare-exchange stages, here lane 0
// executes the whole data-independent network for its block while the
// remaining lanes retire immediately.
func buildSortCandidates(args []interface{}) (func(gid [3]uint32), error) {
	var (
		candidates, counts   *Buffer
		rayCount, blockWidth uint32
	)
	err := bindArgs(args, &candidates, &counts, &rayCount, &blockWidth)
	if err != nil {
		return nil, fmt.Errorf("sortCandidates: %v", err)
	}

	return func(gid [3]uint32) {
		if gid[0]%blockWidth != 0 {
			return
		}
		ray := gid[0] / blockWidth
		if ray >= rayCount {
			return
		}

		base := int(ray*blockWidth) * candidateStride
		dist := make([]float32, blockWidth)
		leaf := make([]uint32, blockWidth)
		for i := range dist {
			leaf[i] = u32At(candidates.data, base+i*candidateStride)
			dist[i] = f32At(candidates.data, base+i*candidateStride+4)
		}

		bitonicSortBlock(dist, leaf)

		for i := range dist {
			putU32(candidates.data, base+i*candidateStride, leaf[i])
			putF32(candidates.data, base+i*candidateStride+4, dist[i])
		}
	}, nil
}

// Sort a power-of-two block by ascending distance with a bitonic
// compare-exchange network. The stage sequence depends only on the block
// size, never on the data, so every lane of a lock-step execution follows
// the same instruction stream.
func bitonicSortBlock(dist []float32, leaf []uint32) {
	n := len(dist)
	for k := 2; k <= n; k <<= 1 {
		for j := k >> 1; j > 0; j >>= 1 {
			for i := 0; i < n; i++ {
				l := i ^ j
				if l <= i {
					continue
				}
				ascending := i&k == 0
				if (ascending && dist[i] > dist[l]) || (!ascending && dist[i] < dist[l]) {
					dist[i], dist[l] = dist[l], dist[i]
					leaf[i], leaf[l] = leaf[l], leaf[i]
				}
			}
		}
	}
}

// Stage 4: one invocation per ray; walks the candidate list, tests only the
// triangles in each candidate leaf's range and merges the vertices of the
// nearest intersected triangle into the shared point visibility mask. With
// sorted candidates the walk terminates as soon as a confirmed hit precedes
// the next candidate's entry distance.
func buildResolveCollisions(args []interface{}) (func(gid [3]uint32), error) {
	var (
		rays, nodes, candidates, counts   *Buffer
		triangleIndex, triangles          *Buffer
		points, pointVis                  *Buffer
		raysTheta, raysPhi, depth, sorted uint32
	)
	err := bindArgs(args,
		&rays, &nodes, &candidates, &counts, &triangleIndex, &triangles,
		&points, &pointVis, &raysTheta, &raysPhi, &depth, &sorted,
	)
	if err != nil {
		return nil, fmt.Errorf("resolveCollisions: %v", err)
	}

	return func(gid [3]uint32) {
		x, y := gid[0], gid[1]
		if x >= raysTheta || y >= raysPhi {
			return
		}
		ray := y*raysTheta + x

		count := u32At(counts.data, int(ray)*4)
		if count == 0 {
			return
		}

		origin, dir := readRay(rays.data, ray)
		capacity := uint32(1) << (depth + 1)
		blockBase := int(ray*capacity) * candidateStride

		bestDist := float32(math.MaxFloat32)
		bestTri := int64(-1)
		for c := uint32(0); c < count; c++ {
			slot := blockBase + int(c)*candidateStride
			leaf := u32At(candidates.data, slot)
			entry := f32At(candidates.data, slot+4)
			if sorted != 0 && bestTri >= 0 && entry > bestDist {
				break
			}

			triStart := u32At(nodes.data, int(leaf)*nodeStride+36)
			triCount := u32At(nodes.data, int(leaf)*nodeStride+40)
			for t := uint32(0); t < triCount; t++ {
				ti := u32At(triangleIndex.data, int(triStart+t)*4)
				v0, v1, v2 := readTriangle(triangles.data, points.data, ti)
				if dist, hit := intersectTriangle(origin, dir, v0, v1, v2); hit && dist < bestDist {
					bestDist = dist
					bestTri = int64(ti)
				}
			}
		}

		if bestTri < 0 {
			return
		}
		for v := 0; v < 3; v++ {
			vertex := u32At(triangles.data, int(bestTri)*triangleStride+v*4)
			atomicOr32(pointVis.data, int(vertex/32)*4, 1<<(vertex%32))
		}
	}, nil
}

// Möller-Trumbore ray/triangle intersection.
func intersectTriangle(origin, dir, v0, v1, v2 types.Vec3) (float32, bool) {
	edge1 := v1.Sub(v0)
	edge2 := v2.Sub(v0)

	pvec := dir.Cross(edge2)
	det := edge1.Dot(pvec)
	if det > -rayEpsilon && det < rayEpsilon {
		return 0, false
	}
	invDet := 1.0 / det

	tvec := origin.Sub(v0)
	u := tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}

	qvec := tvec.Cross(edge1)
	v := dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := edge2.Dot(qvec) * invDet
	if t < rayEpsilon {
		return 0, false
	}
	return t, true
}

// Bind the raw argument list to typed destinations.
func bindArgs(args []interface{}, dests ...interface{}) error {
	if len(args) != len(dests) {
		return fmt.Errorf("expected %d args; got %d", len(dests), len(args))
	}
	for i, arg := range args {
		switch dst := dests[i].(type) {
		case **Buffer:
			buf, isBuffer := arg.(*Buffer)
			if !isBuffer {
				return fmt.Errorf("arg %d: expected a software device buffer; got %s", i, reflect.TypeOf(arg))
			}
			*dst = buf
		case *uint32:
			v, isU32 := arg.(uint32)
			if !isU32 {
				return fmt.Errorf("arg %d: expected uint32; got %s", i, reflect.TypeOf(arg))
			}
			*dst = v
		case *float32:
			v, isF32 := arg.(float32)
			if !isF32 {
				return fmt.Errorf("arg %d: expected float32; got %s", i, reflect.TypeOf(arg))
			}
			*dst = v
		case *types.Vec4:
			v, isVec := arg.(types.Vec4)
			if !isVec {
				return fmt.Errorf("arg %d: expected Vec4; got %s", i, reflect.TypeOf(arg))
			}
			*dst = v
		default:
			return fmt.Errorf("arg %d: unsupported destination type %s", i, reflect.TypeOf(dests[i]))
		}
	}
	return nil
}

func readRay(rays []byte, ray uint32) (origin, dir types.Vec3) {
	base := int(ray) * rayStride
	origin = types.XYZ(f32At(rays, base), f32At(rays, base+4), f32At(rays, base+8))
	dir = types.XYZ(f32At(rays, base+16), f32At(rays, base+20), f32At(rays, base+24))
	return origin, dir
}

func readTriangle(triangles, points []byte, ti uint32) (v0, v1, v2 types.Vec3) {
	base := int(ti) * triangleStride
	return readPoint(points, u32At(triangles, base)),
		readPoint(points, u32At(triangles, base+4)),
		readPoint(points, u32At(triangles, base+8))
}

func readPoint(points []byte, index uint32) types.Vec3 {
	base := int(index) * pointStride
	return types.XYZ(f32At(points, base), f32At(points, base+4), f32At(points, base+8))
}

func nodeBounds(nodes []byte, index uint32) types.AABB {
	base := int(index) * nodeStride
	return types.AABB{
		Pos:  types.XYZ(f32At(nodes, base), f32At(nodes, base+4), f32At(nodes, base+8)),
		Size: types.XYZ(f32At(nodes, base+16), f32At(nodes, base+20), f32At(nodes, base+24)),
	}
}

func nodeChildFlag(nodes []byte, index uint32) uint32 {
	return u32At(nodes, int(index)*nodeStride+12)
}

func u32At(b []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(b[off:])
}

func putU32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func putF32(b []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v))
}

// Merge bits into the 32 bit word at the given byte offset without losing
// concurrent updates from other invocations.
func atomicOr32(b []byte, off int, bits uint32) {
	addr := (*uint32)(unsafe.Pointer(&b[off]))
	for {
		old := atomic.LoadUint32(addr)
		if old&bits == bits {
			return
		}
		if atomic.CompareAndSwapUint32(addr, old, old|bits) {
			return
		}
	}
}
