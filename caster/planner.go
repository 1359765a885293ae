package caster

import (
	"fmt"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
)

// A concrete parallel execution layout for one dispatch: the workgroup
// thread shape and the number of workgroups along each dispatch axis.
type Layout struct {
	WorkgroupSize [3]uint32
	DispatchSize  [3]uint32
}

type strategyKind uint8

const (
	// Near-square workgroup shape for a 2-D problem with one unit of work
	// per grid cell.
	strategyTile2D strategyKind = iota

	// Pack as many whole fixed-width blocks as fit under the thread
	// ceiling into one workgroup; used for 1-D item counts where each
	// item owns a small bounded-size block of work (candidate lists).
	strategyPackedBlocks
)

// A named sizing strategy. Strategies are pure: the same problem size and
// limits always produce the same candidate layout.
type Strategy struct {
	kind       strategyKind
	blockWidth uint32
}

// 2-D tiling strategy.
func Tile2D() Strategy {
	return Strategy{kind: strategyTile2D}
}

// Multi-item-per-group strategy with the given per-item block width.
func PackedBlocks(blockWidth uint32) Strategy {
	return Strategy{kind: strategyPackedBlocks, blockWidth: blockWidth}
}

// Propose a candidate layout for the given problem size. The second return
// value reports whether the strategy supplied an explicit grid; when false
// the planner derives the grid from the problem size.
func (s Strategy) propose(problem [3]uint32, limits device.Limits) (Layout, bool, error) {
	switch s.kind {
	case strategyTile2D:
		maxSide := limits.MaxWorkItemSizes[0]
		if limits.MaxWorkItemSizes[1] < maxSide {
			maxSide = limits.MaxWorkItemSizes[1]
		}

		side := uint32(1)
		for 2*side <= maxSide && 4*side*side <= limits.MaxWorkgroupSize {
			side *= 2
		}
		return Layout{WorkgroupSize: [3]uint32{side, side, 1}}, false, nil

	case strategyPackedBlocks:
		if s.blockWidth == 0 {
			return Layout{}, false, fmt.Errorf("planner: packed-blocks strategy requires a non-zero block width")
		}

		maxThreads := limits.MaxWorkgroupSize
		if limits.MaxWorkItemSizes[0] < maxThreads {
			maxThreads = limits.MaxWorkItemSizes[0]
		}
		blocks := maxThreads / s.blockWidth
		if blocks == 0 {
			return Layout{}, false, fmt.Errorf(
				"planner: block width %d exceeds the %d-thread workgroup ceiling",
				s.blockWidth, maxThreads,
			)
		}

		return Layout{
			WorkgroupSize: [3]uint32{s.blockWidth * blocks, 1, 1},
			DispatchSize:  [3]uint32{ceilDiv(problem[0], blocks), 1, 1},
		}, true, nil
	}
	panic(fmt.Sprintf("planner: unsupported strategy kind %d", s.kind))
}

type plan struct {
	problem  [3]uint32
	strategy Strategy
	layout   Layout
}

// The planner maps named logical problem sizes to concrete dispatch layouts
// honoring the device limits. Registration fails fast on any configuration
// that the device cannot execute; no dispatch is ever attempted with an
// unvalidated layout.
type Planner struct {
	limits device.Limits
	plans  map[string]*plan
}

// Create a planner for the given device limits.
func NewPlanner(limits device.Limits) *Planner {
	return &Planner{
		limits: limits,
		plans:  make(map[string]*plan),
	}
}

// Register a named problem with a sizing strategy and validate the resulting
// layout. Re-registering a name replaces the previous entry.
func (p *Planner) Register(name string, problem [3]uint32, strategy Strategy) error {
	layout, err := p.resolve(problem, strategy)
	if err != nil {
		return fmt.Errorf("planner: %s: %v", name, err)
	}

	p.plans[name] = &plan{problem: problem, strategy: strategy, layout: layout}
	return nil
}

// Update the problem size of a registered entry and re-derive its layout.
func (p *Planner) Update(name string, problem [3]uint32) error {
	entry, exists := p.plans[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownLayout, name)
	}

	layout, err := p.resolve(problem, entry.strategy)
	if err != nil {
		return fmt.Errorf("planner: %s: %v", name, err)
	}

	entry.problem = problem
	entry.layout = layout
	return nil
}

// Get the validated layout registered under name.
func (p *Planner) Layout(name string) (Layout, error) {
	entry, exists := p.plans[name]
	if !exists {
		return Layout{}, fmt.Errorf("%w: %s", ErrUnknownLayout, name)
	}
	return entry.layout, nil
}

// Validate the strategy's candidate against the device ceilings and fill in
// the dispatch grid. Grid axes are silently clamped to the device's
// max-groups-per-axis ceiling; a clamped grid under-covers the problem
// space, which callers requesting more coverage than one dispatch can
// express have to split themselves.
func (p *Planner) resolve(problem [3]uint32, strategy Strategy) (Layout, error) {
	layout, explicit, err := strategy.propose(problem, p.limits)
	if err != nil {
		return Layout{}, err
	}

	threads := uint32(1)
	for axis := 0; axis < 3; axis++ {
		if layout.WorkgroupSize[axis] == 0 {
			layout.WorkgroupSize[axis] = 1
		}
		if layout.WorkgroupSize[axis] > p.limits.MaxWorkItemSizes[axis] {
			return Layout{}, fmt.Errorf(
				"workgroup size %d on axis %d exceeds the device limit of %d",
				layout.WorkgroupSize[axis], axis, p.limits.MaxWorkItemSizes[axis],
			)
		}
		threads *= layout.WorkgroupSize[axis]
	}
	if threads > p.limits.MaxWorkgroupSize {
		return Layout{}, fmt.Errorf(
			"workgroup of %d threads exceeds the device limit of %d",
			threads, p.limits.MaxWorkgroupSize,
		)
	}

	if !explicit {
		for axis := 0; axis < 3; axis++ {
			layout.DispatchSize[axis] = ceilDiv(problem[axis], layout.WorkgroupSize[axis])
		}
	}
	for axis := 0; axis < 3; axis++ {
		if layout.DispatchSize[axis] > p.limits.MaxGroupsPerAxis {
			layout.DispatchSize[axis] = p.limits.MaxGroupsPerAxis
		}
	}

	return layout, nil
}

func ceilDiv(n, d uint32) uint32 {
	return (n + d - 1) / d
}
