// Package cpu provides an in-process implementation of the device contracts.
// Buffers are host byte slices and kernels are Go functions executed one
// goroutine per worker across the dispatched workgroups, with atomic merges
// for the shared visibility words. It backs the test suite and serves as a
// fallback when no OpenCL runtime is available.
package cpu

import (
	"fmt"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
)

// Default ceilings advertised by the software device. Deliberately modest so
// layouts planned against it also run on real hardware.
var softwareLimits = device.Limits{
	MaxWorkItemSizes: [3]uint32{1024, 1024, 64},
	MaxWorkgroupSize: 1024,
	MaxGroupsPerAxis: 65535,
}

type Device struct {
	name   string
	limits device.Limits
}

// Create a software device with the default limits.
func New() *Device {
	return &Device{name: "software", limits: softwareLimits}
}

// Create a software device with custom limits; used by tests to exercise
// planner clamping against small ceilings.
func NewWithLimits(limits device.Limits) *Device {
	return &Device{name: "software", limits: limits}
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Type() device.Type {
	return device.CpuDevice
}

func (d *Device) Limits() device.Limits {
	return d.limits
}

// Create an empty buffer.
func (d *Device) Buffer(name string) device.Buffer {
	return &Buffer{name: name}
}

// Look up a kernel by name.
func (d *Device) Kernel(name string) (device.Kernel, error) {
	builder, exists := kernelTable[name]
	if !exists {
		return nil, fmt.Errorf("software device: unknown kernel %s", name)
	}
	return &Kernel{name: name, build: builder}, nil
}

// Kernel execution is synchronous; there is never queued work to wait for.
func (d *Device) Finish() error {
	return nil
}

func (d *Device) Close() {}
