package bincodec

import (
	"reflect"

	"github.com/puzpuzpuz/xsync/v4"
)

// layout is the static memory shape of a type, as far as the raw copy path cares.
type layout struct {
	size  int
	fixed bool // pointer-free, bool-free, fixed size
}

// layoutCache avoids walking struct fields with reflection on every lookup.
var layoutCache = xsync.NewMap[reflect.Type, layout]()

// layoutOf returns the cached layout of t.
func layoutOf(t reflect.Type) layout {
	if l, ok := layoutCache.Load(t); ok {
		return l
	}
	l := layout{size: int(t.Size()), fixed: isFixed(t)}
	layoutCache.Store(t, l)
	return l
}

// isFixed reports whether every byte of t is plain numeric data, so that a
// value can be copied to and from the wire without per-field marshaling.
// Booleans are excluded because a raw copy of a corrupted byte would produce
// a bool that is neither true nor false.
func isFixed(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return isFixed(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if !isFixed(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsFixed reports whether T is eligible for raw unaligned copies.
// It does not account for registrations; see IsSimple.
func IsFixed[T any]() bool {
	return layoutOf(reflect.TypeFor[T]()).fixed
}
