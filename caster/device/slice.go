package device

import (
	"reflect"
	"unsafe"
)

// Given an interface{} containing a slice, return a pointer to its data and
// its length in bytes. Panics when handed anything but a non-empty slice;
// buffer transfers of zero elements are programmer errors.
func SliceData(data interface{}) (unsafe.Pointer, int) {
	reflVal := reflect.ValueOf(data)

	if reflVal.Kind() != reflect.Slice {
		panic("device: SliceData only supports slices")
	}

	elemCount := reflVal.Len()
	if elemCount == 0 {
		panic("device: SliceData got an empty slice")
	}

	return unsafe.Pointer(reflVal.Index(0).Addr().Pointer()),
		elemCount * int(reflect.TypeOf(data).Elem().Size())
}

// View the memory of a slice as raw bytes without copying.
func SliceBytes(data interface{}) []byte {
	ptr, size := SliceData(data)
	return unsafe.Slice((*byte)(ptr), size)
}
