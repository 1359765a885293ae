package opencl

import (
	"fmt"
	"unsafe"

	"github.com/achilleasa/gopencl/v1.2/cl"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
)

type Buffer struct {
	// Handle to opencl buffer.
	bufHandle cl.Mem

	// Associated device.
	device *Device

	// A name for identifying the buffer.
	name string

	// Allocated size.
	size int
}

// The name the buffer was created under.
func (b *Buffer) Name() string {
	return b.name
}

// Get buffer size.
func (b *Buffer) Size() int {
	return b.size
}

// Allocate buffer storage, releasing any previous allocation.
func (b *Buffer) Allocate(size int) error {
	var errCode int32

	b.Release()

	b.bufHandle = cl.CreateBuffer(
		*b.device.ctx,
		cl.MEM_READ_WRITE,
		cl.MemFlags(size),
		nil,
		&errCode,
	)

	if cl.ErrorCode(errCode) != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not allocate buffer %s of size %d (errCode %d)", b.device.name, b.name, size, cl.ErrorCode(errCode))
	}

	b.size = size

	return nil
}

// Allocate a buffer large enough to hold the given data and have opencl copy
// the data from the host pointer. The behavior of this method is undefined if
// a non-slice argument is passed or the argument does not use contiguous
// memory.
func (b *Buffer) AllocateAndWrite(data interface{}) error {
	var errCode int32

	b.Release()

	dataPtr, dataLen := device.SliceData(data)

	b.bufHandle = cl.CreateBuffer(
		*b.device.ctx,
		cl.MEM_READ_WRITE|cl.MEM_COPY_HOST_PTR,
		cl.MemFlags(dataLen),
		dataPtr,
		&errCode,
	)

	if cl.ErrorCode(errCode) != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): could not allocate buffer %s of size %d (errCode %d)", b.device.name, b.name, dataLen, cl.ErrorCode(errCode))
	}

	b.size = dataLen

	return nil
}

// Write data to the device buffer at the given byte offset. The behavior of
// this method is undefined if a non-slice argument is passed or the argument
// does not use contiguous memory.
func (b *Buffer) Write(data interface{}, offset int) error {
	dataPtr, dataLen := device.SliceData(data)

	if offset < 0 || offset+dataLen > b.size {
		return fmt.Errorf("opencl device (%s): write of %d bytes at offset %d overflows buffer %s (%d bytes)", b.device.name, dataLen, offset, b.name, b.size)
	}

	errCode := cl.EnqueueWriteBuffer(
		b.device.cmdQueue,
		b.bufHandle,
		cl.TRUE,
		uint64(offset),
		uint64(dataLen),
		dataPtr,
		0,
		nil,
		nil,
	)

	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): error copying host data to device buffer %s (errCode %d)", b.device.name, b.name, errCode)
	}

	return nil
}

// Read data from the device buffer into the supplied host slice. The behavior
// of this method is undefined if a non-slice argument is passed or if the
// argument does not use contiguous memory.
//
// If size is <= 0 then Read will read the entire buffer. Both src and dst
// offsets are specified in bytes.
func (b *Buffer) Read(srcOffset, dstOffset, size int, host interface{}) error {
	if size <= 0 {
		size = b.size
	}

	dataPtr, _ := device.SliceData(host)

	errCode := cl.EnqueueReadBuffer(
		b.device.cmdQueue,
		b.bufHandle,
		cl.TRUE,
		uint64(srcOffset),
		uint64(size),
		unsafe.Pointer(uintptr(dataPtr)+uintptr(dstOffset)),
		0,
		nil,
		nil,
	)

	if errCode != cl.SUCCESS {
		return fmt.Errorf("opencl device (%s): error copying device data from %s to host buffer (errCode %d)", b.device.name, b.name, errCode)
	}

	return nil
}

// Release buffer.
func (b *Buffer) Release() {
	if b.bufHandle != nil {
		cl.ReleaseMemObject(b.bufHandle)
		b.bufHandle = nil
	}
	b.size = 0
}

// Get opencl buffer handle.
func (b *Buffer) Handle() cl.Mem {
	return b.bufHandle
}
