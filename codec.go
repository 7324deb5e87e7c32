package bincodec

import (
	"reflect"
)

// Sizer is implemented by types that can report their encoded size.
// Marshal uses it to size the output buffer before encoding.
type Sizer interface {
	// Size returns the size of the encoded value in bytes. It is a hint.
	Size() int
}

// WireEncoder is implemented by types that write their own encoding.
type WireEncoder interface {
	EncodeWire(w *Writer)
}

// WireDecoder is implemented by types that read their own encoding in place.
type WireDecoder interface {
	DecodeWire(r *Reader)
}

// WireCodec aggregates both directions. Generated code implements it on the
// pointer receiver; such types need no registration.
type WireCodec interface {
	WireEncoder
	WireDecoder
}

// RegisterCodec registers the methods of *T as the routines of T. Unlike the
// registration that happens on first use, it calls the methods directly rather
// than through an interface.
func RegisterCodec[T any, PT interface {
	*T
	WireCodec
}](r *Registry, opts ...RoutineOption) error {
	enc := func(w *Writer, v T) { PT(&v).EncodeWire(w) }
	into := func(r *Reader, dst *T) { PT(dst).DecodeWire(r) }
	dec := func(r *Reader) T {
		var v T
		PT(&v).DecodeWire(r)
		return v
	}
	opts = append([]RoutineOption{WithDecodeInto[T](into)}, opts...)
	return RegisterRoutine[T](r, enc, dec, opts...)
}

// selfCodec returns the routines of a T whose methods implement WireCodec:
// either *T, or T itself when T is a pointer. Pointer types are written with
// a presence byte so that nil survives the round trip.
func selfCodec[T any]() (EncodeFunc[T], DecodeFunc[T], DecodeIntoFunc[T], bool) {
	var zero T
	t := reflect.TypeFor[T]()

	if t.Kind() != reflect.Pointer {
		if _, ok := any(&zero).(WireCodec); !ok {
			return nil, nil, nil, false
		}
		into := func(r *Reader, dst *T) { any(dst).(WireCodec).DecodeWire(r) }
		enc := func(w *Writer, v T) { any(&v).(WireCodec).EncodeWire(w) }
		dec := func(r *Reader) T {
			var v T
			into(r, &v)
			return v
		}
		return enc, dec, into, true
	}

	if _, ok := any(zero).(WireCodec); !ok {
		return nil, nil, nil, false
	}
	elem := t.Elem()
	alloc := func() T { return reflect.New(elem).Interface().(T) }
	enc := func(w *Writer, v T) {
		if isNilValue(any(v)) {
			w.WriteUint8(absentByte)
			return
		}
		w.WriteUint8(presentByte)
		any(v).(WireCodec).EncodeWire(w)
	}
	into := func(r *Reader, dst *T) {
		present := r.readPresence()
		if r.err != nil {
			return
		}
		if !present {
			*dst = zero
			return
		}
		if isNilValue(any(*dst)) {
			*dst = alloc()
		}
		any(*dst).(WireCodec).DecodeWire(r)
	}
	dec := func(r *Reader) T {
		var v T
		into(r, &v)
		if r.err != nil {
			return zero
		}
		return v
	}
	return enc, dec, into, true
}

var wireCodecType = reflect.TypeFor[WireCodec]()

// boxedCodec builds the boxed routines of a self-describing type known only
// through reflection. The encoding matches that of selfCodec.
func boxedCodec(t reflect.Type) (boxedRoutines, bool) {
	switch {
	case t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface && reflect.PointerTo(t).Implements(wireCodecType):
		return boxedRoutines{
			encode: func(w *Writer, v any) {
				p := reflect.New(t)
				p.Elem().Set(reflect.ValueOf(v))
				p.Interface().(WireCodec).EncodeWire(w)
			},
			decode: func(r *Reader) any {
				p := reflect.New(t)
				p.Interface().(WireCodec).DecodeWire(r)
				return p.Elem().Interface()
			},
		}, true

	case t.Kind() == reflect.Pointer && t.Implements(wireCodecType):
		return boxedRoutines{
			encode: func(w *Writer, v any) {
				if isNilValue(v) {
					w.WriteUint8(absentByte)
					return
				}
				w.WriteUint8(presentByte)
				v.(WireCodec).EncodeWire(w)
			},
			decode: func(r *Reader) any {
				if !r.readPresence() {
					return reflect.Zero(t).Interface()
				}
				p := reflect.New(t.Elem()).Interface()
				p.(WireCodec).DecodeWire(r)
				return p
			},
		}, true
	}
	return boxedRoutines{}, false
}
