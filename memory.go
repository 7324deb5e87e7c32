package bincodec

import "unsafe"

// The helpers below are the only places that reinterpret typed memory as
// bytes. Callers check bounds and fixed layout before using them.

// valueBytes views the memory of *p as a byte slice.
func valueBytes[T any](p *T) []byte {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), size)
}

// sliceBytes views the backing run of s as a byte slice.
func sliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	size := int(unsafe.Sizeof(zero))
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*size)
}

// pointerBytes views size bytes at p.
func pointerBytes(p unsafe.Pointer, size int) []byte {
	if size == 0 || p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), size)
}

// sizeOf returns the in-memory size of T.
func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// anyBytes views size bytes of the value held by v. v must hold a
// non-pointer-shaped value, so that its data word points at the value.
func anyBytes(v any, size int) []byte {
	return pointerBytes((*eface)(unsafe.Pointer(&v)).data, size)
}
