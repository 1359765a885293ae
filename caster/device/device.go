// Package device defines the two narrow contracts the collision pipeline
// consumes: a named-buffer resource surface and a kernel submission surface.
// Implementations live in the opencl and cpu sub-packages; the pipeline
// itself never touches a concrete device API.
package device

import "time"

type Type uint8

// Supported device types.
const (
	CpuDevice   Type = 1 << iota
	GpuDevice        = 1 << iota
	OtherDevice      = 1 << iota
	AllDevices       = 0xFF
)

func (dt Type) String() string {
	switch dt {
	case CpuDevice:
		return "CPU"
	case GpuDevice:
		return "GPU"
	case OtherDevice:
		return "Other"
	}
	panic("device: unsupported device type")
}

// Hard parallelism ceilings of a device. Read-only; queried once at device
// init and consumed by the dispatch planner.
type Limits struct {
	// Max threads along each workgroup axis.
	MaxWorkItemSizes [3]uint32

	// Max total threads per workgroup.
	MaxWorkgroupSize uint32

	// Max workgroups per dispatch axis.
	MaxGroupsPerAxis uint32
}

// A named device buffer.
type Buffer interface {
	// The name the buffer was created under.
	Name() string

	// Allocated size in bytes.
	Size() int

	// Allocate (or reallocate) the buffer to the given byte size.
	Allocate(size int) error

	// Allocate the buffer to fit data and copy data into it. The argument
	// must be a slice backed by contiguous memory.
	AllocateAndWrite(data interface{}) error

	// Copy host data into the buffer at the given byte offset. The
	// argument must be a slice backed by contiguous memory.
	Write(data interface{}, offset int) error

	// Read size bytes starting at srcOffset into the host slice at
	// dstOffset. A size <= 0 reads the entire buffer.
	Read(srcOffset, dstOffset, size int, host interface{}) error

	// Release the underlying storage.
	Release()
}

// A compiled device kernel.
type Kernel interface {
	Name() string

	// Bind the argument list. Supported argument types are Buffer
	// implementations of the same device, uint32, int32, float32 and
	// types.Vec3/Vec4.
	SetArgs(args ...interface{}) error

	// Submit the kernel over a grid of groups[0]×groups[1]×groups[2]
	// workgroups of local[0]×local[1]×local[2] threads each and wait for
	// it to be queued. Returns the observed execution time.
	Exec(groups, local [3]uint32) (time.Duration, error)

	Release()
}

// A compute device.
type Device interface {
	Name() string
	Type() Type

	// Create an empty named buffer.
	Buffer(name string) Buffer

	// Look up a kernel by name.
	Kernel(name string) (Kernel, error)

	// The device parallelism ceilings.
	Limits() Limits

	// Block until all queued work has completed. Host readback is only
	// valid after Finish returns.
	Finish() error

	Close()
}
