// Package opencl implements the device contracts on top of the opencl 1.2
// runtime. Kernels are compiled from the .cl program source at device init
// and dispatched as 3D NDRange submissions on a single in-order queue.
package opencl

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
)

// Opencl reports no per-axis workgroup count ceiling of its own; this is the
// smallest value guaranteed by the 1.x minimum device profile.
const maxGroupsPerAxis = 65535

// Wrapper around an opencl-supported device.
type Device struct {
	name    string
	id      cl.DeviceId
	devType device.Type

	compUnits  uint32
	clockSpeed uint32

	// Speed estimate in GFlops.
	Speed uint32

	limits device.Limits

	// Opencl handles; allocated when the device is initialized.
	ctx      *cl.Context
	cmdQueue cl.CommandQueue
	program  cl.Program
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Type() device.Type {
	return d.devType
}

func (d *Device) Limits() device.Limits {
	return d.limits
}

// Implements Stringer.
func (d *Device) String() string {
	return fmt.Sprintf(
		"Name: %s\nType: %s\nSpecs: %d computation units, %d Mhz clock, %d GFlops approximate speed",
		d.name,
		d.devType.String(),
		d.compUnits,
		d.clockSpeed,
		d.Speed,
	)
}

// Initialize the device: create its context and command queue, compile the
// kernel program and query the dispatch ceilings.
func (d *Device) Init(programFile string) error {
	var errCode cl.ErrorCode

	// Already initialized
	if d.ctx != nil {
		return nil
	}

	// Create context
	d.ctx = cl.CreateContext(nil, 1, &d.id, nil, nil, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not create opencl context (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}

	// Create command queue
	d.cmdQueue = cl.CreateCommandQueue(*d.ctx, d.id, 0, (*int32)(&errCode))
	if errCode != cl.SUCCESS {
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not create command queue (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}

	// Load program source
	absProgramPath, err := filepath.Abs(programFile)
	if err != nil {
		defer d.Close()
		return err
	}

	f, err := os.Open(absProgramPath)
	if err != nil {
		defer d.Close()
		return err
	}
	defer f.Close()

	data, err := ioutil.ReadAll(f)
	if err != nil {
		defer d.Close()
		return err
	}
	progSrc := cl.Str(string(data) + "\x00")

	// Create and build program
	d.program = cl.CreateProgramWithSource(
		*d.ctx,
		1,
		&progSrc,
		nil,
		(*int32)(&errCode),
	)
	if errCode != cl.SUCCESS {
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not create program (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}

	errCode = cl.BuildProgram(
		d.program,
		1,
		&d.id,
		cl.Str(fmt.Sprintf("-I %s\x00", filepath.Dir(absProgramPath))),
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		var dataLen uint64
		data := make([]byte, 120000)

		cl.GetProgramBuildInfo(d.program, d.id, cl.PROGRAM_BUILD_LOG, uint64(len(data)), unsafe.Pointer(&data[0]), &dataLen)
		defer d.Close()
		return fmt.Errorf("opencl device (%s): could not build kernel program (error: %s; code %d):\n%s", d.name, ErrorName(errCode), errCode, string(data[0:dataLen-1]))
	}

	return d.queryLimits()
}

// Shut down the device.
func (d *Device) Close() {
	if d.program != nil {
		cl.ReleaseProgram(d.program)
		d.program = nil
	}

	if d.cmdQueue != nil {
		cl.ReleaseCommandQueue(d.cmdQueue)
		d.cmdQueue = nil
	}

	if d.ctx != nil {
		cl.ReleaseContext(d.ctx)
		d.ctx = nil
	}
}

// Block until all queued commands have completed.
func (d *Device) Finish() error {
	errCode := cl.Finish(d.cmdQueue)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): error waiting for queued commands (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}
	return nil
}

// Load a kernel by name from the compiled program.
func (d *Device) Kernel(name string) (device.Kernel, error) {
	var errCode cl.ErrorCode
	kernelHandle := cl.CreateKernel(
		d.program,
		cl.Str(name+"\x00"),
		(*int32)(&errCode),
	)

	if errCode != cl.SUCCESS {
		return nil, fmt.Errorf("opencl device (%s): could not load kernel %s (error: %s; code %d)", d.name, name, ErrorName(errCode), errCode)
	}

	return &Kernel{
		device:       d,
		kernelHandle: kernelHandle,
		name:         name,
	}, nil
}

// Create an empty buffer.
func (d *Device) Buffer(name string) device.Buffer {
	return &Buffer{
		device: d,
		name:   name,
	}
}

// Query compute specs for display purposes.
func (d *Device) querySpecs() error {
	// Theoretical device speed as: compute units * 2ops/cycle * clock speed
	errCode := cl.GetDeviceInfo(d.id, cl.DEVICE_MAX_COMPUTE_UNITS, 4, unsafe.Pointer(&d.compUnits), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_COMPUTE_UNITS (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}
	errCode = cl.GetDeviceInfo(d.id, cl.DEVICE_MAX_CLOCK_FREQUENCY, 4, unsafe.Pointer(&d.clockSpeed), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_CLOCK_FREQUENCY (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}
	d.Speed = d.compUnits * d.clockSpeed / 1000

	return nil
}

// Query the parallelism ceilings consumed by the dispatch planner.
func (d *Device) queryLimits() error {
	var groupSize uint64
	errCode := cl.GetDeviceInfo(d.id, cl.DEVICE_MAX_WORK_GROUP_SIZE, 8, unsafe.Pointer(&groupSize), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_WORK_GROUP_SIZE (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}

	var itemSizes [3]uint64
	errCode = cl.GetDeviceInfo(d.id, cl.DEVICE_MAX_WORK_ITEM_SIZES, 24, unsafe.Pointer(&itemSizes[0]), nil)
	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not query MAX_WORK_ITEM_SIZES (error: %s; code %d)", d.name, ErrorName(errCode), errCode)
	}

	d.limits = device.Limits{
		MaxWorkItemSizes: [3]uint32{uint32(itemSizes[0]), uint32(itemSizes[1]), uint32(itemSizes[2])},
		MaxWorkgroupSize: uint32(groupSize),
		MaxGroupsPerAxis: maxGroupsPerAxis,
	}
	return nil
}
