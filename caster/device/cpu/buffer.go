package cpu

import (
	"fmt"

	"github.com/hartkaymann/viewsheds-sub000/caster/device"
)

type Buffer struct {
	name string
	data []byte
}

// The name the buffer was created under.
func (b *Buffer) Name() string {
	return b.name
}

// Get buffer size.
func (b *Buffer) Size() int {
	return len(b.data)
}

// Allocate buffer storage, discarding any previous contents.
func (b *Buffer) Allocate(size int) error {
	if size < 0 {
		return fmt.Errorf("software device: cannot allocate buffer %s with negative size %d", b.name, size)
	}
	b.data = make([]byte, size)
	return nil
}

// Allocate the buffer to fit data and copy data into it.
func (b *Buffer) AllocateAndWrite(data interface{}) error {
	src := device.SliceBytes(data)
	b.data = make([]byte, len(src))
	copy(b.data, src)
	return nil
}

// Copy host data into the buffer at the given byte offset.
func (b *Buffer) Write(data interface{}, offset int) error {
	src := device.SliceBytes(data)
	if offset < 0 || offset+len(src) > len(b.data) {
		return fmt.Errorf(
			"software device: write of %d bytes at offset %d overflows buffer %s (%d bytes)",
			len(src), offset, b.name, len(b.data),
		)
	}
	copy(b.data[offset:], src)
	return nil
}

// Read size bytes starting at srcOffset into the host slice at dstOffset.
// A size <= 0 reads the entire buffer.
func (b *Buffer) Read(srcOffset, dstOffset, size int, host interface{}) error {
	if size <= 0 {
		size = len(b.data)
	}

	dst := device.SliceBytes(host)
	if srcOffset < 0 || srcOffset+size > len(b.data) {
		return fmt.Errorf(
			"software device: read of %d bytes at offset %d overflows buffer %s (%d bytes)",
			size, srcOffset, b.name, len(b.data),
		)
	}
	if dstOffset < 0 || dstOffset+size > len(dst) {
		return fmt.Errorf(
			"software device: read of %d bytes overflows the host slice at offset %d",
			size, dstOffset,
		)
	}

	copy(dst[dstOffset:], b.data[srcOffset:srcOffset+size])
	return nil
}

// Release buffer storage.
func (b *Buffer) Release() {
	b.data = nil
}
