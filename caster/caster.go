// Package caster plans and drives the multi-stage collision pipeline that
// casts a grid of rays against a serialized quadtree to resolve point
// visibility. Stage kernels execute on a device behind the narrow contracts
// in the device sub-package; this package owns dispatch planning, buffer
// management and stage ordering.
package caster

import (
	"fmt"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
	"github.com/hartkaymann/viewsheds-sub000/log"
	"github.com/hartkaymann/viewsheds-sub000/scene"
	"github.com/hartkaymann/viewsheds-sub000/types"
)

// Trees deeper than this produce candidate blocks no supported device can
// hold in a per-ray fixed-width block.
const maxTreeDepth = 12

// Names of the dispatch layouts registered with the planner.
const (
	layoutRayGrid       = "rayGrid"
	layoutCandidateSort = "candidateSort"
)

// Pipeline state. Stages advance the state strictly in order; readback is
// only valid once the pipeline reports StateResolved.
type State uint8

const (
	StateIdle State = iota
	StateRaysGenerated
	StateLeavesFound
	StateSorted
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRaysGenerated:
		return "RaysGenerated"
	case StateLeavesFound:
		return "LeavesFound"
	case StateSorted:
		return "Sorted"
	case StateResolved:
		return "Resolved"
	}
	panic(fmt.Sprintf("caster: unsupported state %d", s))
}

// Ray sweep and index configuration for a pipeline instance.
type Config struct {
	// Common origin of all rays.
	Origin types.Vec3

	// Azimuth sweep range in radians and the number of samples across it.
	ThetaMin, ThetaMax float32
	RaysTheta          uint32

	// Polar sweep range in radians and the number of samples across it.
	PhiMin, PhiMax float32
	RaysPhi        uint32

	// Depth of the quadtree the pipeline will consume.
	Depth uint32

	// Order each ray's candidate block by ascending distance before
	// resolution, allowing the resolver to terminate on the first hit.
	SortCandidates bool
}

// Total number of rays in the sweep grid.
func (c Config) RayCount() uint32 {
	return c.RaysTheta * c.RaysPhi
}

// Fixed per-ray candidate block width: 2^(depth+1) slots.
func (c Config) CandidateBlock() uint32 {
	return 1 << (c.Depth + 1)
}

// Traversal stack capacity: one active path plus pending siblings.
func (c Config) StackSize() uint32 {
	return 2*c.Depth + 1
}

// The pipeline orchestrator. All stage submissions go through one device
// queue in call order; cross-stage ordering is enforced purely by that
// submission sequencing plus the state machine on the host side.
type Caster struct {
	logger  log.Logger
	dev     device.Device
	planner *Planner
	buffers *bufferSet
	kernels []device.Kernel

	cfg   Config
	state State

	pointCount    int
	leafCount     int
	indexUploaded bool
}

// Create a pipeline on the given device. All dispatch layouts are planned
// and validated here; a configuration the device cannot execute fails fast
// before any buffer is allocated or any stage submitted.
func New(dev device.Device, cfg Config) (*Caster, error) {
	if cfg.RaysTheta == 0 || cfg.RaysPhi == 0 {
		return nil, fmt.Errorf("caster: ray grid must have at least one sample per axis")
	}
	if cfg.Depth > maxTreeDepth {
		return nil, fmt.Errorf("caster: tree depth %d exceeds the supported maximum of %d", cfg.Depth, maxTreeDepth)
	}

	c := &Caster{
		logger:  log.New(fmt.Sprintf("caster (%s)", dev.Name())),
		dev:     dev,
		planner: NewPlanner(dev.Limits()),
		cfg:     cfg,
		state:   StateIdle,
	}

	err := c.planner.Register(layoutRayGrid, [3]uint32{cfg.RaysTheta, cfg.RaysPhi, 1}, Tile2D())
	if err != nil {
		return nil, err
	}
	err = c.planner.Register(layoutCandidateSort, [3]uint32{cfg.RayCount(), 1, 1}, PackedBlocks(cfg.CandidateBlock()))
	if err != nil {
		return nil, err
	}

	c.kernels = make([]device.Kernel, numKernels)
	var kType kernelType
	for kType = 0; kType < numKernels; kType++ {
		c.kernels[kType], err = dev.Kernel(kType.String())
		if err != nil {
			c.Close()
			return nil, err
		}
	}

	c.buffers = newBufferSet(dev)
	return c, nil
}

// Release all device resources held by the pipeline.
func (c *Caster) Close() {
	if c.buffers != nil {
		c.buffers.Release()
		c.buffers = nil
	}
	for _, kernel := range c.kernels {
		if kernel != nil {
			kernel.Release()
		}
	}
	c.kernels = nil
	c.indexUploaded = false
}

// Get the current pipeline state.
func (c *Caster) State() State {
	return c.state
}

// Upload the serialized index and its backing geometry and size the working
// set for the configured ray grid. Resets the pipeline to Idle. The host
// tree must be fully built before upload; the flat buffer is the canonical
// representation from here on.
func (c *Caster) UploadIndex(tree *scene.QuadTree, cloud *scene.PointCloud, triangles []scene.Triangle) error {
	if uint32(tree.Depth) != c.cfg.Depth {
		return fmt.Errorf("caster: index depth %d does not match the configured depth %d", tree.Depth, c.cfg.Depth)
	}

	err := c.buffers.UploadIndex(tree, cloud, triangles)
	if err != nil {
		return err
	}

	c.pointCount = len(cloud.Points)
	c.leafCount = scene.TreeLeafCount(tree.Depth)
	err = c.buffers.Resize(c.cfg.RayCount(), c.cfg.CandidateBlock(), c.leafCount, c.pointCount)
	if err != nil {
		return err
	}

	c.logger.Debugf(
		"uploaded index: %d nodes, %d points, %d triangles, %d triangle refs",
		len(tree.Nodes), len(cloud.Points), len(triangles), len(tree.TriangleIndex),
	)

	c.indexUploaded = true
	c.state = StateIdle
	return nil
}

// Run executes the full stage sequence from Idle to Resolved, including the
// optional candidate sort.
func (c *Caster) Run() error {
	if err := c.GenerateRays(); err != nil {
		return err
	}
	if err := c.FindLeaves(); err != nil {
		return err
	}
	if c.cfg.SortCandidates {
		if err := c.SortCandidates(); err != nil {
			return err
		}
	}
	return c.ResolveCollisions()
}

// Return the pipeline to Idle and clear the visibility masks. An in-flight
// run has no graceful cancel; after a device loss the caller re-uploads the
// index and restarts from Idle.
func (c *Caster) Reset() error {
	if c.indexUploaded {
		if err := c.buffers.ClearVisibility(); err != nil {
			return err
		}
	}
	c.state = StateIdle
	return nil
}

// Stage 1: compute an origin/direction pair for every sample of the sweep
// grid. Pure per-ray computation, no cross-ray state.
func (c *Caster) GenerateRays() error {
	if err := c.requireState(StateIdle); err != nil {
		return err
	}

	kernel := c.kernels[generateRays]
	err := kernel.SetArgs(
		c.buffers.Rays,
		c.cfg.Origin.Vec4(1),
		c.cfg.ThetaMin,
		sweepStep(c.cfg.ThetaMin, c.cfg.ThetaMax, c.cfg.RaysTheta),
		c.cfg.PhiMin,
		sweepStep(c.cfg.PhiMin, c.cfg.PhiMax, c.cfg.RaysPhi),
		c.cfg.RaysTheta,
		c.cfg.RaysPhi,
	)
	if err != nil {
		return err
	}

	if err = c.submit(generateRays, kernel, layoutRayGrid); err != nil {
		return err
	}
	c.state = StateRaysGenerated
	return nil
}

// Stage 2: per ray, descend the complete tree with a bounded stack, record
// candidate leaves with distance estimates and mark every touched leaf in
// the shared leaf visibility mask.
func (c *Caster) FindLeaves() error {
	if err := c.requireState(StateRaysGenerated); err != nil {
		return err
	}

	kernel := c.kernels[findLeaves]
	err := kernel.SetArgs(
		c.buffers.Rays,
		c.buffers.Nodes,
		c.buffers.Candidates,
		c.buffers.CandidateCounts,
		c.buffers.LeafVisibility,
		c.cfg.RaysTheta,
		c.cfg.RaysPhi,
		c.cfg.Depth,
	)
	if err != nil {
		return err
	}

	if err = c.submit(findLeaves, kernel, layoutRayGrid); err != nil {
		return err
	}
	c.state = StateLeavesFound
	return nil
}

// Stage 3 (optional): reorder each ray's fixed-width candidate block by
// ascending distance with a bitonic compare-exchange network. Slots past
// the ray's real candidate count carry a sentinel maximal distance and sort
// to the tail.
func (c *Caster) SortCandidates() error {
	if err := c.requireState(StateLeavesFound); err != nil {
		return err
	}

	kernel := c.kernels[sortCandidates]
	err := kernel.SetArgs(
		c.buffers.Candidates,
		c.buffers.CandidateCounts,
		c.cfg.RayCount(),
		c.cfg.CandidateBlock(),
	)
	if err != nil {
		return err
	}

	if err = c.submit(sortCandidates, kernel, layoutCandidateSort); err != nil {
		return err
	}
	c.state = StateSorted
	return nil
}

// Stage 4: per ray, walk the (sorted or raw) candidate list, test only the
// triangles in each candidate leaf's range, and mark the vertices of the
// nearest intersected triangle in the shared point visibility mask.
func (c *Caster) ResolveCollisions() error {
	if c.state != StateLeavesFound && c.state != StateSorted {
		return fmt.Errorf("%w: ResolveCollisions while %s", ErrInvalidStage, c.state)
	}

	sorted := uint32(0)
	if c.state == StateSorted {
		sorted = 1
	}

	kernel := c.kernels[resolveCollisions]
	err := kernel.SetArgs(
		c.buffers.Rays,
		c.buffers.Nodes,
		c.buffers.Candidates,
		c.buffers.CandidateCounts,
		c.buffers.TriangleIndex,
		c.buffers.Triangles,
		c.buffers.Points,
		c.buffers.PointVisibility,
		c.cfg.RaysTheta,
		c.cfg.RaysPhi,
		c.cfg.Depth,
		sorted,
	)
	if err != nil {
		return err
	}

	if err = c.submit(resolveCollisions, kernel, layoutRayGrid); err != nil {
		return err
	}
	c.state = StateResolved
	return nil
}

// Read back the bit-packed per-point visibility mask. Bit i of word w
// denotes point w*32+i. Blocks until the device signals completion.
func (c *Caster) PointVisibility() ([]uint32, error) {
	if err := c.requireState(StateResolved); err != nil {
		return nil, err
	}
	return c.readMask(c.buffers.PointVisibility)
}

// Read back the bit-packed per-leaf visibility mask.
func (c *Caster) LeafVisibility() ([]uint32, error) {
	if c.state < StateLeavesFound {
		return nil, fmt.Errorf("%w: LeafVisibility while %s", ErrInvalidStage, c.state)
	}
	return c.readMask(c.buffers.LeafVisibility)
}

// Read back the per-ray candidate counts.
func (c *Caster) CandidateCounts() ([]uint32, error) {
	if c.state < StateLeavesFound {
		return nil, fmt.Errorf("%w: CandidateCounts while %s", ErrInvalidStage, c.state)
	}
	return c.readMask(c.buffers.CandidateCounts)
}

func (c *Caster) readMask(buf device.Buffer) ([]uint32, error) {
	if err := c.dev.Finish(); err != nil {
		return nil, err
	}
	out := make([]uint32, buf.Size()/sizeofWord)
	if err := buf.Read(0, 0, 0, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Caster) requireState(want State) error {
	if !c.indexUploaded {
		return ErrNoIndexData
	}
	if c.state != want {
		return fmt.Errorf("%w: expected %s, pipeline is %s", ErrInvalidStage, want, c.state)
	}
	return nil
}

func (c *Caster) submit(kType kernelType, kernel device.Kernel, layoutName string) error {
	layout, err := c.planner.Layout(layoutName)
	if err != nil {
		return err
	}

	elapsed, err := kernel.Exec(layout.DispatchSize, layout.WorkgroupSize)
	if err != nil {
		return err
	}

	c.logger.Debugf(
		"%s: %d x %d x %d groups of %d x %d x %d threads in %d ms",
		kType, layout.DispatchSize[0], layout.DispatchSize[1], layout.DispatchSize[2],
		layout.WorkgroupSize[0], layout.WorkgroupSize[1], layout.WorkgroupSize[2],
		elapsed.Nanoseconds()/1e6,
	)
	return nil
}

func sweepStep(min, max float32, samples uint32) float32 {
	if samples == 0 {
		return 0
	}
	return (max - min) / float32(samples)
}
