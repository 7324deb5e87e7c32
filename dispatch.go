package bincodec

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// Encode writes v through the routine its type resolves to in the writer's
// registry. Simple types are copied raw; polymorphic types are preceded by the
// wire type id of their concrete type.
func Encode[T any](w *Writer, v T) {
	if w.err != nil {
		return
	}
	e, err := lookup[T](w.reg)
	if err != nil {
		w.err = err
		return
	}
	encodeEntry(w, e, v)
}

// Decode reads a T through the routine its type resolves to in the reader's
// registry. On error it returns the zero value.
func Decode[T any](r *Reader) T {
	if r.err != nil {
		var zero T
		return zero
	}
	e, err := lookup[T](r.reg)
	if err != nil {
		r.err = err
		var zero T
		return zero
	}
	return decodeEntry[T](r, e)
}

// DecodeInto reads a T into dst, reusing the storage dst already owns when the
// type has an in-place routine. dst is left unchanged by simple types on error.
func DecodeInto[T any](r *Reader, dst *T) {
	if r.err != nil {
		return
	}
	e, err := lookup[T](r.reg)
	if err != nil {
		r.err = err
		return
	}
	decodeIntoEntry(r, e, dst)
}

func encodeEntry[T any](w *Writer, e *entry, v T) {
	switch {
	case e.simple:
		writeRaw(w, v)
	case e.polymorphic():
		encodePolymorphic(w, e, any(v))
	default:
		enc, ok := e.encode.(EncodeFunc[T])
		if !ok {
			w.err = errors.Wrapf(ErrUnregisteredType, "%s has no encode routine", e.typ)
			return
		}
		if !e.tolerant {
			enc(w, v)
			return
		}
		pos := w.Advance(HeaderSize)
		enc(w, v)
		w.PatchLength(pos)
	}
}

func decodeEntry[T any](r *Reader, e *entry) T {
	var zero T
	switch {
	case e.simple:
		return readRaw[T](r)
	case e.polymorphic():
		out := decodePolymorphic(r, e, nil)
		if out == nil {
			return zero
		}
		v, ok := out.(T)
		if !ok {
			r.err = errors.Wrapf(ErrTypeMismatch, "%T in slot of %s", out, e.typ)
		}
		return v
	default:
		dec, ok := e.decode.(DecodeFunc[T])
		if !ok {
			r.err = errors.Wrapf(ErrUnregisteredType, "%s has no decode routine", e.typ)
			return zero
		}
		if !e.tolerant {
			return dec(r)
		}
		sub := r.Slice()
		v := dec(sub)
		r.SetError(sub.err)
		if r.err != nil {
			return zero
		}
		return v
	}
}

func decodeIntoEntry[T any](r *Reader, e *entry, dst *T) {
	switch {
	case e.simple:
		if v := readRaw[T](r); r.err == nil {
			*dst = v
		}
	case e.polymorphic():
		out := decodePolymorphic(r, e, any(*dst))
		if r.err != nil {
			return
		}
		v, ok := out.(T)
		if !ok && out != nil {
			r.err = errors.Wrapf(ErrTypeMismatch, "%T in slot of %s", out, e.typ)
			return
		}
		*dst = v
	default:
		into, ok := e.decodeInto.(DecodeIntoFunc[T])
		if !ok {
			r.err = errors.Wrapf(ErrUnregisteredType, "%s has no decode routine", e.typ)
			return
		}
		if !e.tolerant {
			into(r, dst)
			return
		}
		sub := r.Slice()
		into(sub, dst)
		r.SetError(sub.err)
	}
}

// --- Polymorphic slots ---

// encodePolymorphic writes the wire type id of the concrete type of v followed
// by its body. A nil v is written as the null id.
func encodePolymorphic(w *Writer, slot *entry, v any) {
	if isNilValue(v) {
		w.WriteTypeID(NullTypeID)
		return
	}
	target := slot
	if h := handleOfValue(v); h != slot.handle {
		if target = w.reg.subtypeOf(slot, h); target == nil {
			w.err = errors.Wrapf(ErrTypeMismatch, "%s is not a registered subtype of %s", reflect.TypeOf(v), slot.typ)
			return
		}
	}
	if target.wireID == NullTypeID {
		w.err = errors.Wrapf(ErrUnregisteredType, "%s has no wire type id", target.typ)
		return
	}
	w.WriteTypeID(target.wireID)
	encodeBody(w, target, v)
}

// decodePolymorphic reads a wire type id and the body of the type it names,
// which must be the slot type or one of its subtypes. cur is reused in place
// when it already holds a value of that type.
func decodePolymorphic(r *Reader, slot *entry, cur any) any {
	id := r.ReadTypeID()
	if r.err != nil || id == NullTypeID {
		return nil
	}
	h, ok := r.reg.ids.Load().Get(id)
	if !ok {
		r.err = errors.Wrapf(ErrMalformedWireData, "unknown wire type id %d", id)
		return nil
	}
	target := slot
	if h != slot.handle {
		if target = r.reg.subtypeOf(slot, h); target == nil {
			found, _ := r.reg.entries.Load().Get(h)
			r.err = errors.Wrapf(ErrTypeMismatch, "wire type id %d names %s, not a subtype of %s", id, found.typ, slot.typ)
			return nil
		}
	}
	if cur != nil && !isNilValue(cur) && handleOfValue(cur) == h && target.boxed.decodeInto != nil {
		return decodeBody(r, target, func(sub *Reader) any { return target.boxed.decodeInto(sub, cur) })
	}
	if target.boxed.decode == nil {
		r.err = errors.Wrapf(ErrUnregisteredType, "%s has no decode routine", target.typ)
		return nil
	}
	return decodeBody(r, target, target.boxed.decode)
}

// encodeBody writes v with the boxed routine of e, wrapped in a length prefix
// when e is version tolerant.
func encodeBody(w *Writer, e *entry, v any) {
	if e.boxed.encode == nil {
		w.err = errors.Wrapf(ErrUnregisteredType, "%s has no encode routine", e.typ)
		return
	}
	if !e.tolerant {
		e.boxed.encode(w, v)
		return
	}
	pos := w.Advance(HeaderSize)
	e.boxed.encode(w, v)
	w.PatchLength(pos)
}

func decodeBody(r *Reader, e *entry, dec func(*Reader) any) any {
	if !e.tolerant {
		v := dec(r)
		if r.err != nil {
			return nil
		}
		return v
	}
	sub := r.Slice()
	v := dec(sub)
	r.SetError(sub.err)
	if r.err != nil {
		return nil
	}
	return v
}

// --- Boxed dispatch ---

// boxedEntry returns the entry of t, resolving self-describing and generic
// helper types on first use. It returns nil when t is only eligible for a raw copy.
func (r *Registry) boxedEntry(t reflect.Type) (*entry, error) {
	if t == nil {
		return nil, errors.Wrap(ErrUnregisteredType, "nil type")
	}
	if e, ok := r.entries.Load().Get(handleOfType(t)); ok {
		return e, nil
	}
	return r.resolveBoxed(t)
}

// EncodeAny writes v through the entry of its dynamic type, resolving
// self-describing types on first use. Other fixed-layout types nobody
// registered are copied raw. A nil v is written as the null id.
func EncodeAny(w *Writer, v any) {
	if w.err != nil {
		return
	}
	if v == nil {
		w.WriteTypeID(NullTypeID)
		return
	}
	t := reflect.TypeOf(v)
	e, err := w.reg.boxedEntry(t)
	if err != nil {
		w.err = err
		return
	}
	if e == nil {
		if l := layoutOf(t); l.fixed {
			w.WriteRaw(anyBytes(v, l.size))
			return
		}
		w.err = errors.Wrapf(ErrUnregisteredType, "%s", t)
		return
	}
	if e.polymorphic() {
		encodePolymorphic(w, e, v)
		return
	}
	encodeBody(w, e, v)
}

// DecodeAny reads a value of type t. The result holds a t, or a subtype of it
// when t is polymorphic.
func DecodeAny(r *Reader, t reflect.Type) any {
	if r.err != nil {
		return nil
	}
	e, err := r.reg.boxedEntry(t)
	if err != nil {
		r.err = err
		return nil
	}
	if e == nil {
		l := layoutOf(t)
		if !l.fixed {
			r.err = errors.Wrapf(ErrUnregisteredType, "%s", t)
			return nil
		}
		src := r.take("read", l.size)
		if r.err != nil {
			return nil
		}
		p := reflect.New(t)
		copy(pointerBytes(p.UnsafePointer(), l.size), src)
		return p.Elem().Interface()
	}
	if e.polymorphic() {
		return decodePolymorphic(r, e, nil)
	}
	if e.boxed.decode == nil {
		r.err = errors.Wrapf(ErrUnregisteredType, "%s has no decode routine", t)
		return nil
	}
	return decodeBody(r, e, e.boxed.decode)
}
