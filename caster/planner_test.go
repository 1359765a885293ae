package caster

import (
	"errors"
	"testing"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
)

func testLimits() device.Limits {
	return device.Limits{
		MaxWorkItemSizes: [3]uint32{8, 8, 8},
		MaxWorkgroupSize: 64,
		MaxGroupsPerAxis: 100,
	}
}

func TestTile2DLayout(t *testing.T) {
	p := NewPlanner(testLimits())

	err := p.Register("grid", [3]uint32{100, 50, 1}, Tile2D())
	if err != nil {
		t.Fatalf("expected registration to succeed; got %v", err)
	}

	layout, err := p.Layout("grid")
	if err != nil {
		t.Fatalf("expected layout lookup to succeed; got %v", err)
	}

	if layout.WorkgroupSize != [3]uint32{8, 8, 1} {
		t.Fatalf("expected an 8x8x1 workgroup; got %v", layout.WorkgroupSize)
	}
	if layout.DispatchSize != [3]uint32{13, 7, 1} {
		t.Fatalf("expected a 13x7x1 grid; got %v", layout.DispatchSize)
	}
}

func TestTile2DCoversProblem(t *testing.T) {
	p := NewPlanner(testLimits())
	if err := p.Register("grid", [3]uint32{17, 3, 1}, Tile2D()); err != nil {
		t.Fatalf("expected registration to succeed; got %v", err)
	}

	layout, _ := p.Layout("grid")
	for axis, problem := range []uint32{17, 3, 1} {
		covered := layout.WorkgroupSize[axis] * layout.DispatchSize[axis]
		if covered < problem {
			t.Fatalf("axis %d covers %d threads for a problem of %d", axis, covered, problem)
		}
	}
}

func TestPackedBlocksLayout(t *testing.T) {
	p := NewPlanner(testLimits())

	// 8-wide blocks under a 64-thread ceiling with an 8-thread axis limit:
	// one block per group.
	err := p.Register("sort", [3]uint32{100, 1, 1}, PackedBlocks(8))
	if err != nil {
		t.Fatalf("expected registration to succeed; got %v", err)
	}

	layout, _ := p.Layout("sort")
	if layout.WorkgroupSize != [3]uint32{8, 1, 1} {
		t.Fatalf("expected an 8x1x1 workgroup; got %v", layout.WorkgroupSize)
	}
	if layout.DispatchSize != [3]uint32{100, 1, 1} {
		t.Fatalf("expected a 100x1x1 grid; got %v", layout.DispatchSize)
	}
}

func TestPackedBlocksPacksMultipleBlocks(t *testing.T) {
	limits := device.Limits{
		MaxWorkItemSizes: [3]uint32{1024, 1, 1},
		MaxWorkgroupSize: 64,
		MaxGroupsPerAxis: 65535,
	}
	p := NewPlanner(limits)

	if err := p.Register("sort", [3]uint32{100, 1, 1}, PackedBlocks(8)); err != nil {
		t.Fatalf("expected registration to succeed; got %v", err)
	}

	layout, _ := p.Layout("sort")
	if layout.WorkgroupSize != [3]uint32{64, 1, 1} {
		t.Fatalf("expected 8 packed blocks of 8 threads; got %v", layout.WorkgroupSize)
	}
	if layout.DispatchSize != [3]uint32{13, 1, 1} {
		t.Fatalf("expected ceil(100/8)=13 groups; got %v", layout.DispatchSize)
	}
}

func TestPackedBlocksRejectsOversizedBlock(t *testing.T) {
	p := NewPlanner(testLimits())
	if err := p.Register("sort", [3]uint32{100, 1, 1}, PackedBlocks(128)); err == nil {
		t.Fatal("expected an error for a block wider than the workgroup ceiling")
	}
	if err := p.Register("sort", [3]uint32{100, 1, 1}, PackedBlocks(0)); err == nil {
		t.Fatal("expected an error for a zero block width")
	}
}

func TestPlannerClampsGridAxes(t *testing.T) {
	limits := testLimits()
	limits.MaxGroupsPerAxis = 4
	p := NewPlanner(limits)

	if err := p.Register("grid", [3]uint32{1000, 1000, 1}, Tile2D()); err != nil {
		t.Fatalf("expected registration to succeed; got %v", err)
	}

	layout, _ := p.Layout("grid")
	if layout.DispatchSize[0] != 4 || layout.DispatchSize[1] != 4 {
		t.Fatalf("expected the grid to clamp to 4 groups per axis; got %v", layout.DispatchSize)
	}

	// Explicit grids clamp too.
	if err := p.Register("sort", [3]uint32{1000, 1, 1}, PackedBlocks(8)); err != nil {
		t.Fatalf("expected registration to succeed; got %v", err)
	}
	layout, _ = p.Layout("sort")
	if layout.DispatchSize[0] != 4 {
		t.Fatalf("expected the explicit grid to clamp to 4 groups; got %v", layout.DispatchSize)
	}
}

func TestPlannerUpdate(t *testing.T) {
	p := NewPlanner(testLimits())
	if err := p.Register("grid", [3]uint32{16, 16, 1}, Tile2D()); err != nil {
		t.Fatalf("expected registration to succeed; got %v", err)
	}

	if err := p.Update("grid", [3]uint32{32, 8, 1}); err != nil {
		t.Fatalf("expected update to succeed; got %v", err)
	}
	layout, _ := p.Layout("grid")
	if layout.DispatchSize != [3]uint32{4, 1, 1} {
		t.Fatalf("expected a re-derived 4x1x1 grid; got %v", layout.DispatchSize)
	}

	err := p.Update("unknown", [3]uint32{1, 1, 1})
	if !errors.Is(err, ErrUnknownLayout) {
		t.Fatalf("expected ErrUnknownLayout; got %v", err)
	}
}

func TestLayoutUnknownName(t *testing.T) {
	p := NewPlanner(testLimits())
	_, err := p.Layout("missing")
	if !errors.Is(err, ErrUnknownLayout) {
		t.Fatalf("expected ErrUnknownLayout; got %v", err)
	}
}
