package bincodec

import (
	"reflect"
	"unsafe"
)

// TypeHandle identifies a concrete type for the lifetime of the process.
// It is the address of the runtime type descriptor, so it orders numerically
// and is meaningless across restarts; the wire carries wire type ids instead.
type TypeHandle uintptr

// eface mirrors the two-word layout of an interface value.
type eface struct {
	typ, data unsafe.Pointer
}

// HandleOf returns the handle of the static type T.
func HandleOf[T any]() TypeHandle {
	return handleOfType(reflect.TypeFor[T]())
}

// handleOfType returns the handle of t. The data word of a reflect.Type is
// the same descriptor pointer found in the type word of an any holding a
// value of that type.
func handleOfType(t reflect.Type) TypeHandle {
	if t == nil {
		return 0
	}
	return TypeHandle((*eface)(unsafe.Pointer(&t)).data)
}

// handleOfValue returns the handle of the dynamic type of v, 0 for a nil interface.
func handleOfValue(v any) TypeHandle {
	return TypeHandle((*eface)(unsafe.Pointer(&v)).typ)
}

// isNilValue reports whether v is a nil interface or holds a nil pointer,
// map, chan or func. A struct or array whose only field is a pointer shares
// its data word with that field and is never nil.
func isNilValue(v any) bool {
	e := (*eface)(unsafe.Pointer(&v))
	if e.typ == nil {
		return true
	}
	if e.data != nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}
