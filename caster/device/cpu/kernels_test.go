package cpu

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/hartkaymann/viewsheds-sub000/types"
)

func TestBitonicSortBlock(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for _, width := range []int{2, 8, 64, 256} {
		dist := make([]float32, width)
		leaf := make([]uint32, width)
		for i := range dist {
			dist[i] = rng.Float32() * 100
			leaf[i] = uint32(i)
		}

		// Pair each distance with its leaf so we can verify the payload
		// moves with its key.
		byLeaf := make(map[uint32]float32, width)
		for i := range dist {
			byLeaf[leaf[i]] = dist[i]
		}

		bitonicSortBlock(dist, leaf)

		if !sort.SliceIsSorted(dist, func(a, b int) bool { return dist[a] < dist[b] }) {
			t.Fatalf("expected ascending distances for width %d; got %v", width, dist)
		}
		for i := range dist {
			if byLeaf[leaf[i]] != dist[i] {
				t.Fatalf("expected leaf %d to keep its distance; got %v, want %v", leaf[i], dist[i], byLeaf[leaf[i]])
			}
		}
	}
}

func TestBitonicSortBlockSentinelsSinkToTail(t *testing.T) {
	dist := []float32{math.MaxFloat32, 3, math.MaxFloat32, 1, 7, math.MaxFloat32, 5, math.MaxFloat32}
	leaf := []uint32{0xffffffff, 3, 0xffffffff, 1, 7, 0xffffffff, 5, 0xffffffff}

	bitonicSortBlock(dist, leaf)

	want := []float32{1, 3, 5, 7}
	for i, w := range want {
		if dist[i] != w {
			t.Fatalf("expected %v at slot %d; got %v", w, i, dist[i])
		}
		if leaf[i] == 0xffffffff {
			t.Fatalf("expected a real leaf at slot %d", i)
		}
	}
	for i := 4; i < 8; i++ {
		if leaf[i] != 0xffffffff {
			t.Fatalf("expected a sentinel at slot %d; got leaf %d", i, leaf[i])
		}
	}
}

func TestAtomicOr32Concurrent(t *testing.T) {
	buf := make([]byte, 8)

	var wg sync.WaitGroup
	for bit := 0; bit < 64; bit++ {
		wg.Add(1)
		go func(bit int) {
			defer wg.Done()
			atomicOr32(buf, (bit/32)*4, 1<<(bit%32))
		}(bit)
	}
	wg.Wait()

	if u32At(buf, 0) != 0xffffffff || u32At(buf, 4) != 0xffffffff {
		t.Fatalf("expected all 64 bits set; got %08x %08x", u32At(buf, 0), u32At(buf, 4))
	}
}

func TestIntersectTriangle(t *testing.T) {
	v0 := types.XYZ(0, 0, 0)
	v1 := types.XYZ(2, 0, 0)
	v2 := types.XYZ(1, 0, 2)

	origin := types.XYZ(1, 5, 0.5)
	down := types.XYZ(0, -1, 0)

	dist, hit := intersectTriangle(origin, down, v0, v1, v2)
	if !hit {
		t.Fatal("expected a hit straight down onto the triangle")
	}
	if dist < 4.999 || dist > 5.001 {
		t.Fatalf("expected hit distance 5; got %v", dist)
	}

	if _, hit = intersectTriangle(origin, types.XYZ(0, 1, 0), v0, v1, v2); hit {
		t.Fatal("expected a miss when pointing away from the triangle")
	}
	if _, hit = intersectTriangle(types.XYZ(5, 5, 5), down, v0, v1, v2); hit {
		t.Fatal("expected a miss outside the triangle footprint")
	}
	// Parallel to the triangle plane.
	if _, hit = intersectTriangle(origin, types.XYZ(1, 0, 0), v0, v1, v2); hit {
		t.Fatal("expected a miss for a ray parallel to the plane")
	}
}

func TestGenerateRaysKernel(t *testing.T) {
	dev := New()
	rays := dev.Buffer("rays")
	if err := rays.Allocate(2 * 32); err != nil {
		t.Fatalf("expected allocation to succeed; got %v", err)
	}

	kernel, err := dev.Kernel("generateRays")
	if err != nil {
		t.Fatalf("expected kernel lookup to succeed; got %v", err)
	}

	halfPi := float32(math.Pi / 2)
	err = kernel.SetArgs(
		rays,
		types.XYZW(1, 2, 3, 1),
		float32(0), halfPi, // theta sweep
		halfPi, float32(0), // phi fixed at the horizon
		uint32(2), uint32(1),
	)
	if err != nil {
		t.Fatalf("expected SetArgs to succeed; got %v", err)
	}

	// Oversized dispatch: the kernel bounds-checks its global id.
	if _, err = kernel.Exec([3]uint32{1, 1, 1}, [3]uint32{4, 4, 1}); err != nil {
		t.Fatalf("expected exec to succeed; got %v", err)
	}

	out := make([]float32, 16)
	if err = rays.Read(0, 0, 0, out); err != nil {
		t.Fatalf("expected readback to succeed; got %v", err)
	}

	// Ray 0: theta=0 at the horizon points along +X.
	checkDir(t, out[4:7], types.XYZ(1, 0, 0))
	// Ray 1: theta=pi/2 points along +Z.
	checkDir(t, out[12:15], types.XYZ(0, 0, 1))

	for _, origin := range [][]float32{out[0:3], out[8:11]} {
		if origin[0] != 1 || origin[1] != 2 || origin[2] != 3 {
			t.Fatalf("expected ray origin (1 2 3); got %v", origin)
		}
	}
}

func checkDir(t *testing.T, got []float32, want types.Vec3) {
	t.Helper()
	const eps = 1e-5
	for i := 0; i < 3; i++ {
		if diff := float64(got[i] - want[i]); diff > eps || diff < -eps {
			t.Fatalf("expected direction %v; got %v", want, got)
		}
	}
}
