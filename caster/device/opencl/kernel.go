package opencl

import (
	"fmt"
	"reflect"
	"time"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/hartkaymann/viewsheds-sub000/types"
)

// A wrapper around opencl kernel handles.
type Kernel struct {
	device       *Device
	kernelHandle cl.Kernel
	name         string

	globalWorkSizes [3]uint64
	localWorkSizes  [3]uint64
}

func (k *Kernel) Name() string {
	return k.name
}

// Free any allocated resources used by this kernel.
func (k *Kernel) Release() {
	if k.kernelHandle != nil {
		cl.ReleaseKernel(k.kernelHandle)
		k.kernelHandle = nil
	}
}

// Bind arguments to the kernel handle.
func (k *Kernel) SetArgs(args ...interface{}) error {
	var errCode cl.ErrorCode
	for argIndex, arg := range args {
		// We can't use the captured type from the switch like
		// switch t := arg.(type) as we get back an interface and we
		// need to obtain a pointer to the underlying data.
		switch arg.(type) {
		case *Buffer:
			bufHandle := arg.(*Buffer).Handle()
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 8, unsafe.Pointer(&bufHandle))
		case int32:
			v := arg.(int32)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case uint32:
			v := arg.(uint32)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case float32:
			v := arg.(float32)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 4, unsafe.Pointer(&v))
		case types.Vec3:
			v := arg.(types.Vec3)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 12, unsafe.Pointer(&v[0]))
		case types.Vec4:
			v := arg.(types.Vec4)
			errCode = cl.SetKernelArg(k.kernelHandle, uint32(argIndex), 16, unsafe.Pointer(&v[0]))
		default:
			return fmt.Errorf(
				"opencl device (%s): could not set arg %d for kernel %s; unsupported arg type: %s",
				k.device.name,
				argIndex,
				k.name,
				reflect.TypeOf(arg).Name(),
			)
		}

		if errCode != cl.SUCCESS {
			return fmt.Errorf(
				"opencl device (%s): could not set arg %d for kernel %s (error: %s; code %d)",
				k.device.name,
				argIndex,
				k.name,
				ErrorName(errCode),
				errCode,
			)
		}
	}

	return nil
}

// Submit the kernel over the given workgroup grid. The global work size along
// each axis is the workgroup count times the workgroup width; kernels bounds
// check their global id against the real problem size.
func (k *Kernel) Exec(groups, local [3]uint32) (time.Duration, error) {
	for axis := 0; axis < 3; axis++ {
		k.globalWorkSizes[axis] = uint64(groups[axis]) * uint64(local[axis])
		k.localWorkSizes[axis] = uint64(local[axis])
	}

	tick := time.Now()
	errCode := cl.EnqueueNDRangeKernel(
		k.device.cmdQueue,
		k.kernelHandle,
		3,
		nil,
		(*uint64)(unsafe.Pointer(&k.globalWorkSizes[0])),
		(*uint64)(unsafe.Pointer(&k.localWorkSizes[0])),
		0,
		nil,
		nil,
	)
	if errCode != cl.SUCCESS {
		return time.Duration(0), fmt.Errorf("opencl device (%s): unable to execute kernel %s (error: %s; code %d)", k.device.name, k.name, ErrorName(errCode), errCode)
	}

	// Wait for the kernel to complete
	errCode = cl.Finish(k.device.cmdQueue)
	if errCode != cl.SUCCESS {
		return time.Duration(0), fmt.Errorf("opencl device (%s): kernel %s did not complete successfully (error: %s; code %d)", k.device.name, k.name, ErrorName(errCode), errCode)
	}

	return time.Since(tick), nil
}
