package caster_test

import (
	"errors"
	"math"
	"testing"

	"github.com/hartkaymann/viewsheds-sub000/caster"
	"github.com/hartkaymann/viewsheds-sub000/caster/device"
	"github.com/hartkaymann/viewsheds-sub000/caster/device/cpu"
	"github.com/hartkaymann/viewsheds-sub000/scene"
	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Two single-triangle patches in opposite quadrants of a [0.5,3.5]^2 X/Z
// footprint.
func buildTestScene(t *testing.T, depth int) (*scene.QuadTree, *scene.PointCloud, []scene.Triangle) {
	t.Helper()

	cloud := &scene.PointCloud{
		Points: []types.Vec4{
			types.XYZW(0.5, 0, 0.5, 1),
			types.XYZW(1.5, 0, 0.5, 1),
			types.XYZW(1.0, 0, 1.5, 1),
			types.XYZW(3.5, 0, 3.5, 1),
			types.XYZW(2.5, 0, 3.5, 1),
			types.XYZW(3.0, 0, 2.5, 1),
		},
	}
	triangles := []scene.Triangle{{0, 1, 2}, {3, 4, 5}}

	bounds := cloud.Bounds()
	sorted, indices := scene.SortCloud(cloud, bounds)
	triangles = scene.RemapTriangles(triangles, indices)

	tree := scene.NewQuadTree(bounds, depth)
	tree.AssignPoints(sorted.Points)
	tree.AssignTriangles(triangles, sorted.Points)
	return tree, sorted, triangles
}

// A single ray pointing straight down from above the given X/Z position.
func downRayConfig(x, z float32, depth uint32) caster.Config {
	return caster.Config{
		Origin:         types.XYZ(x, 5, z),
		ThetaMin:       0,
		ThetaMax:       0,
		RaysTheta:      1,
		PhiMin:         math.Pi,
		PhiMax:         math.Pi,
		RaysPhi:        1,
		Depth:          depth,
		SortCandidates: true,
	}
}

func TestPipelineResolvesHit(t *testing.T) {
	tree, cloud, triangles := buildTestScene(t, 1)

	pipeline, err := caster.New(cpu.New(), downRayConfig(1.0, 0.8, 1))
	if err != nil {
		t.Fatalf("expected pipeline construction to succeed; got %v", err)
	}
	defer pipeline.Close()

	if err = pipeline.UploadIndex(tree, cloud, triangles); err != nil {
		t.Fatalf("expected index upload to succeed; got %v", err)
	}
	if err = pipeline.Run(); err != nil {
		t.Fatalf("expected the pipeline run to succeed; got %v", err)
	}
	if pipeline.State() != caster.StateResolved {
		t.Fatalf("expected state Resolved; got %s", pipeline.State())
	}

	counts, err := pipeline.CandidateCounts()
	if err != nil {
		t.Fatalf("expected candidate count readback to succeed; got %v", err)
	}
	if counts[0] != 1 {
		t.Fatalf("expected 1 candidate leaf for the down ray; got %d", counts[0])
	}

	leafVis, err := pipeline.LeafVisibility()
	if err != nil {
		t.Fatalf("expected leaf visibility readback to succeed; got %v", err)
	}
	if leafVis[0] != 1 {
		t.Fatalf("expected only the first leaf to be touched; got %032b", leafVis[0])
	}

	pointVis, err := pipeline.PointVisibility()
	if err != nil {
		t.Fatalf("expected point visibility readback to succeed; got %v", err)
	}

	// Exactly the three vertices of the low-quadrant triangle are visible:
	// those are the sorted points with X below the split line.
	for i, p := range cloud.Points {
		visible := pointVis[i/32]&(1<<(i%32)) != 0
		expectVisible := p[0] < 2
		if visible != expectVisible {
			t.Fatalf("expected visibility %t for point %d at %v", expectVisible, i, p)
		}
	}
}

func TestPipelineMissLeavesNoVisibility(t *testing.T) {
	tree, cloud, triangles := buildTestScene(t, 1)

	// Straight up from above the scene; nothing to hit.
	cfg := downRayConfig(1.0, 0.8, 1)
	cfg.PhiMin = 0
	cfg.PhiMax = 0

	pipeline, err := caster.New(cpu.New(), cfg)
	if err != nil {
		t.Fatalf("expected pipeline construction to succeed; got %v", err)
	}
	defer pipeline.Close()

	if err = pipeline.UploadIndex(tree, cloud, triangles); err != nil {
		t.Fatalf("expected index upload to succeed; got %v", err)
	}
	if err = pipeline.Run(); err != nil {
		t.Fatalf("expected the pipeline run to succeed; got %v", err)
	}

	counts, _ := pipeline.CandidateCounts()
	if counts[0] != 0 {
		t.Fatalf("expected no candidates for an upward ray; got %d", counts[0])
	}
	pointVis, _ := pipeline.PointVisibility()
	for w, word := range pointVis {
		if word != 0 {
			t.Fatalf("expected an empty visibility mask; word %d is %032b", w, word)
		}
	}
}

func TestPipelineNearestHitWins(t *testing.T) {
	// Two identical triangles stacked at y=1 and y=0 under the same ray;
	// only the upper one is visible from above.
	cloud := &scene.PointCloud{
		Points: []types.Vec4{
			types.XYZW(0.5, 1, 0.5, 1),
			types.XYZW(1.5, 1, 0.5, 1),
			types.XYZW(1.0, 1, 1.5, 1),
			types.XYZW(0.5, 0, 0.5, 1),
			types.XYZW(1.5, 0, 0.5, 1),
			types.XYZW(1.0, 0, 1.5, 1),
			types.XYZW(3.5, 0, 3.5, 1),
		},
	}
	triangles := []scene.Triangle{{0, 1, 2}, {3, 4, 5}}

	bounds := cloud.Bounds()
	sorted, indices := scene.SortCloud(cloud, bounds)
	triangles = scene.RemapTriangles(triangles, indices)

	tree := scene.NewQuadTree(bounds, 1)
	tree.AssignPoints(sorted.Points)
	tree.AssignTriangles(triangles, sorted.Points)

	pipeline, err := caster.New(cpu.New(), downRayConfig(1.0, 0.8, 1))
	if err != nil {
		t.Fatalf("expected pipeline construction to succeed; got %v", err)
	}
	defer pipeline.Close()

	if err = pipeline.UploadIndex(tree, sorted, triangles); err != nil {
		t.Fatalf("expected index upload to succeed; got %v", err)
	}
	if err = pipeline.Run(); err != nil {
		t.Fatalf("expected the pipeline run to succeed; got %v", err)
	}

	pointVis, err := pipeline.PointVisibility()
	if err != nil {
		t.Fatalf("expected point visibility readback to succeed; got %v", err)
	}
	for i, p := range sorted.Points {
		visible := pointVis[i/32]&(1<<(i%32)) != 0
		expectVisible := p[1] == 1
		if visible != expectVisible {
			t.Fatalf("expected visibility %t for point %d at %v", expectVisible, i, p)
		}
	}
}

func TestPipelineStateMachine(t *testing.T) {
	tree, cloud, triangles := buildTestScene(t, 1)

	pipeline, err := caster.New(cpu.New(), downRayConfig(1.0, 0.8, 1))
	if err != nil {
		t.Fatalf("expected pipeline construction to succeed; got %v", err)
	}
	defer pipeline.Close()

	// No stage may run before the index is uploaded.
	if err = pipeline.GenerateRays(); !errors.Is(err, caster.ErrNoIndexData) {
		t.Fatalf("expected ErrNoIndexData; got %v", err)
	}

	if err = pipeline.UploadIndex(tree, cloud, triangles); err != nil {
		t.Fatalf("expected index upload to succeed; got %v", err)
	}

	// Stages only advance in order.
	if err = pipeline.FindLeaves(); !errors.Is(err, caster.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage for FindLeaves while Idle; got %v", err)
	}
	if err = pipeline.SortCandidates(); !errors.Is(err, caster.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage for SortCandidates while Idle; got %v", err)
	}
	if err = pipeline.ResolveCollisions(); !errors.Is(err, caster.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage for ResolveCollisions while Idle; got %v", err)
	}
	if _, err = pipeline.PointVisibility(); !errors.Is(err, caster.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage reading visibility while Idle; got %v", err)
	}

	if err = pipeline.GenerateRays(); err != nil {
		t.Fatalf("expected GenerateRays to succeed; got %v", err)
	}
	if err = pipeline.GenerateRays(); !errors.Is(err, caster.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage repeating GenerateRays; got %v", err)
	}
	if err = pipeline.FindLeaves(); err != nil {
		t.Fatalf("expected FindLeaves to succeed; got %v", err)
	}

	// The sort stage is skippable: resolution accepts LeavesFound directly.
	if err = pipeline.ResolveCollisions(); err != nil {
		t.Fatalf("expected ResolveCollisions to succeed without sorting; got %v", err)
	}
	if pipeline.State() != caster.StateResolved {
		t.Fatalf("expected state Resolved; got %s", pipeline.State())
	}

	// Reset clears the masks and returns to Idle.
	if err = pipeline.Reset(); err != nil {
		t.Fatalf("expected reset to succeed; got %v", err)
	}
	if pipeline.State() != caster.StateIdle {
		t.Fatalf("expected state Idle after reset; got %s", pipeline.State())
	}
	if _, err = pipeline.PointVisibility(); !errors.Is(err, caster.ErrInvalidStage) {
		t.Fatalf("expected ErrInvalidStage after reset; got %v", err)
	}

	// A full run works again after reset.
	if err = pipeline.Run(); err != nil {
		t.Fatalf("expected a rerun after reset to succeed; got %v", err)
	}
}

func TestPipelineConfigValidation(t *testing.T) {
	cfg := downRayConfig(1.0, 0.8, 1)
	cfg.RaysTheta = 0
	if _, err := caster.New(cpu.New(), cfg); err == nil {
		t.Fatal("expected an error for an empty ray grid")
	}

	cfg = downRayConfig(1.0, 0.8, 13)
	if _, err := caster.New(cpu.New(), cfg); err == nil {
		t.Fatal("expected an error for a tree depth beyond the supported maximum")
	}

	// A device too small for the candidate sort blocks fails at construction,
	// before any buffer or submission exists.
	tiny := cpu.NewWithLimits(device.Limits{
		MaxWorkItemSizes: [3]uint32{8, 8, 8},
		MaxWorkgroupSize: 8,
		MaxGroupsPerAxis: 65535,
	})
	if _, err := caster.New(tiny, downRayConfig(1.0, 0.8, 5)); err == nil {
		t.Fatal("expected an error for candidate blocks wider than the device workgroup ceiling")
	}
}

func TestPipelineUploadDepthMismatch(t *testing.T) {
	tree, cloud, triangles := buildTestScene(t, 2)

	pipeline, err := caster.New(cpu.New(), downRayConfig(1.0, 0.8, 1))
	if err != nil {
		t.Fatalf("expected pipeline construction to succeed; got %v", err)
	}
	defer pipeline.Close()

	if err = pipeline.UploadIndex(tree, cloud, triangles); err == nil {
		t.Fatal("expected an error uploading a depth-2 index into a depth-1 pipeline")
	}
}
