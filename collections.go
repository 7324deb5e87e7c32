package bincodec

import (
	"iter"

	"github.com/cockroachdb/errors"
)

// --- Slices ---

// EncodeSlice writes a collection header followed by the elements of s.
// A nil slice is written as the null collection. Simple elements are copied
// as one contiguous run.
func EncodeSlice[E any](w *Writer, s []E) {
	if w.err != nil {
		return
	}
	if s == nil {
		w.WriteNullCollection()
		return
	}
	e, err := lookup[E](w.reg)
	if err != nil {
		w.err = err
		return
	}
	w.WriteCollectionHeader(len(s))
	if e.simple {
		w.WriteRaw(sliceBytes(s))
		return
	}
	encodeEach(w, e, s)
}

// encodeEach writes the elements of s one by one.
func encodeEach[E any](w *Writer, e *entry, s []E) {
	for i := range s {
		encodeEntry(w, e, s[i])
		if w.err != nil {
			return
		}
	}
}

// EncodeSeq writes the values yielded by seq as a collection. The header is
// reserved up front and patched once the count is known, so the bytes equal
// those of EncodeSlice over the same values.
func EncodeSeq[E any](w *Writer, seq iter.Seq[E]) {
	if w.err != nil {
		return
	}
	if seq == nil {
		w.WriteNullCollection()
		return
	}
	e, err := lookup[E](w.reg)
	if err != nil {
		w.err = err
		return
	}
	pos := w.Advance(HeaderSize)
	n := 0
	for v := range seq {
		encodeEntry(w, e, v)
		if w.err != nil {
			return
		}
		n++
	}
	if n > MaxCollectionLen {
		w.err = errors.Wrapf(ErrMalformedWireData, "collection count %d out of range", n)
		return
	}
	w.PutUint32(pos, CollectionHeader(n))
}

// checkCount fails when n elements of at least minSize bytes each cannot fit
// in what is left of r. It runs before any allocation sized by n.
func (r *Reader) checkCount(n, minSize int) bool {
	if minSize <= 0 {
		return true
	}
	if n > r.Remaining()/minSize {
		r.err = outOfBounds("collection", n*minSize, r.pos, len(r.buf))
		return false
	}
	return true
}

// elemSize is the smallest encoding of one element: its size for simple
// types, one byte otherwise.
func (e *entry) elemSize() int {
	if e.simple {
		return e.size
	}
	return 1
}

// DecodeSlice reads a collection into a new slice. The null collection
// decodes as nil, an empty one as a non-nil empty slice.
func DecodeSlice[E any](r *Reader) []E {
	n, present := r.ReadCollectionHeader()
	if !present {
		return nil
	}
	e, err := lookup[E](r.reg)
	if err != nil {
		r.err = err
		return nil
	}
	if !r.checkCount(n, e.elemSize()) {
		return nil
	}
	s := make([]E, n)
	if !decodeElems(r, e, s) {
		return nil
	}
	return s
}

// DecodeSliceInto reads a collection into *dst, reusing its backing array when
// it is large enough. Reused elements are decoded in place.
func DecodeSliceInto[E any](r *Reader, dst *[]E) {
	n, present := r.ReadCollectionHeader()
	if r.err != nil {
		return
	}
	if !present {
		*dst = nil
		return
	}
	e, err := lookup[E](r.reg)
	if err != nil {
		r.err = err
		return
	}
	if !r.checkCount(n, e.elemSize()) {
		return
	}
	s := *dst
	if cap(s) >= n && s != nil {
		s = s[:n]
	} else {
		s = make([]E, n)
	}
	if decodeElems(r, e, s) {
		*dst = s
	}
}

func decodeElems[E any](r *Reader, e *entry, s []E) bool {
	if e.simple {
		if dst := sliceBytes(s); dst != nil {
			src := r.take("collection", len(dst))
			if src == nil {
				return false
			}
			copy(dst, src)
		}
		return r.err == nil
	}
	for i := range s {
		decodeIntoEntry(r, e, &s[i])
		if r.err != nil {
			return false
		}
	}
	return true
}

// RegisterSlice registers []E as a collection of E.
func RegisterSlice[E any](r *Registry, opts ...RoutineOption) error {
	opts = append([]RoutineOption{WithDecodeInto[[]E](DecodeSliceInto[E])}, opts...)
	return RegisterRoutine[[]E](r, EncodeSlice[E], DecodeSlice[E], opts...)
}

// --- Maps ---

// EncodeMap writes a collection header followed by alternating keys and
// values. A nil map is written as the null collection. Pairs are written in
// map iteration order.
func EncodeMap[K comparable, V any](w *Writer, m map[K]V) {
	if w.err != nil {
		return
	}
	if m == nil {
		w.WriteNullCollection()
		return
	}
	ke, err := lookup[K](w.reg)
	if err != nil {
		w.err = err
		return
	}
	ve, err := lookup[V](w.reg)
	if err != nil {
		w.err = err
		return
	}
	w.WriteCollectionHeader(len(m))
	for k, v := range m {
		encodeEntry(w, ke, k)
		encodeEntry(w, ve, v)
		if w.err != nil {
			return
		}
	}
}

// DecodeMap reads a map written by EncodeMap.
func DecodeMap[K comparable, V any](r *Reader) map[K]V {
	n, present := r.ReadCollectionHeader()
	if !present {
		return nil
	}
	ke, ve, ok := mapEntries[K, V](r, n)
	if !ok {
		return nil
	}
	m := make(map[K]V, n)
	for range n {
		k := decodeEntry[K](r, ke)
		v := decodeEntry[V](r, ve)
		if r.err != nil {
			return nil
		}
		m[k] = v
	}
	return m
}

// DecodeMapInto reads a map into *dst. Values already stored under a decoded
// key are decoded in place; keys absent from the input are removed.
func DecodeMapInto[K comparable, V any](r *Reader, dst *map[K]V) {
	n, present := r.ReadCollectionHeader()
	if r.err != nil {
		return
	}
	if !present {
		*dst = nil
		return
	}
	ke, ve, ok := mapEntries[K, V](r, n)
	if !ok {
		return
	}
	m := *dst
	if m == nil {
		m = make(map[K]V, n)
	}
	var seen map[K]struct{}
	if len(m) > 0 {
		seen = make(map[K]struct{}, n)
	}
	for range n {
		k := decodeEntry[K](r, ke)
		if r.err != nil {
			return
		}
		v := m[k]
		decodeIntoEntry(r, ve, &v)
		if r.err != nil {
			return
		}
		m[k] = v
		if seen != nil {
			seen[k] = struct{}{}
		}
	}
	if seen != nil {
		for k := range m {
			if _, ok := seen[k]; !ok {
				delete(m, k)
			}
		}
	}
	*dst = m
}

func mapEntries[K comparable, V any](r *Reader, n int) (ke, ve *entry, ok bool) {
	var err error
	if ke, err = lookup[K](r.reg); err != nil {
		r.err = err
		return nil, nil, false
	}
	if ve, err = lookup[V](r.reg); err != nil {
		r.err = err
		return nil, nil, false
	}
	return ke, ve, r.checkCount(n, max(ke.elemSize()+ve.elemSize(), 1))
}

// RegisterMap registers map[K]V.
func RegisterMap[K comparable, V any](r *Registry, opts ...RoutineOption) error {
	opts = append([]RoutineOption{WithDecodeInto[map[K]V](DecodeMapInto[K, V])}, opts...)
	return RegisterRoutine[map[K]V](r, EncodeMap[K, V], DecodeMap[K, V], opts...)
}

// --- Sets ---

// EncodeSet writes the keys of a set as a collection.
func EncodeSet[K comparable](w *Writer, s map[K]struct{}) {
	if w.err != nil {
		return
	}
	if s == nil {
		w.WriteNullCollection()
		return
	}
	e, err := lookup[K](w.reg)
	if err != nil {
		w.err = err
		return
	}
	w.WriteCollectionHeader(len(s))
	for k := range s {
		encodeEntry(w, e, k)
		if w.err != nil {
			return
		}
	}
}

// DecodeSet reads a set written by EncodeSet. Duplicate keys collapse.
func DecodeSet[K comparable](r *Reader) map[K]struct{} {
	n, present := r.ReadCollectionHeader()
	if !present {
		return nil
	}
	e, err := lookup[K](r.reg)
	if err != nil {
		r.err = err
		return nil
	}
	if !r.checkCount(n, max(e.elemSize(), 1)) {
		return nil
	}
	s := make(map[K]struct{}, n)
	for range n {
		k := decodeEntry[K](r, e)
		if r.err != nil {
			return nil
		}
		s[k] = struct{}{}
	}
	return s
}

// RegisterSet registers map[K]struct{} as a set of K.
func RegisterSet[K comparable](r *Registry, opts ...RoutineOption) error {
	return RegisterRoutine[map[K]struct{}](r, EncodeSet[K], DecodeSet[K], opts...)
}

// --- Optional values ---

// EncodeOptional writes a presence byte, then *p when p is not nil.
func EncodeOptional[T any](w *Writer, p *T) {
	if p == nil {
		w.WriteUint8(absentByte)
		return
	}
	w.WriteUint8(presentByte)
	Encode(w, *p)
}

// DecodeOptional reads a value written by EncodeOptional.
func DecodeOptional[T any](r *Reader) *T {
	if !r.readPresence() {
		return nil
	}
	v := Decode[T](r)
	if r.err != nil {
		return nil
	}
	return &v
}

// DecodeOptionalInto reads a value written by EncodeOptional into *dst,
// reusing the existing pointee.
func DecodeOptionalInto[T any](r *Reader, dst **T) {
	present := r.readPresence()
	if r.err != nil {
		return
	}
	if !present {
		*dst = nil
		return
	}
	p := *dst
	if p == nil {
		p = new(T)
	}
	DecodeInto(r, p)
	if r.err == nil {
		*dst = p
	}
}

func (r *Reader) readPresence() bool {
	b := r.take("presence", 1)
	if b == nil {
		return false
	}
	switch b[0] {
	case absentByte:
		return false
	case presentByte:
		return true
	}
	r.err = errors.Wrapf(ErrMalformedWireData, "presence byte 0x%02x at offset %d", b[0], r.pos-1)
	return false
}

// RegisterPointer registers *T as an optional T.
func RegisterPointer[T any](r *Registry, opts ...RoutineOption) error {
	opts = append([]RoutineOption{WithDecodeInto[*T](DecodeOptionalInto[T])}, opts...)
	return RegisterRoutine[*T](r, EncodeOptional[T], DecodeOptional[T], opts...)
}

// --- Pairs ---

// Pair holds two values encoded back to back. A Pair of two simple types is
// itself simple; any other Pair registers its routines on first use.
type Pair[A, B any] struct {
	First  A
	Second B
}

// MakePair returns a Pair of a and b.
func MakePair[A, B any](a A, b B) Pair[A, B] {
	return Pair[A, B]{First: a, Second: b}
}

// EncodePair writes p.First then p.Second.
func EncodePair[A, B any](w *Writer, p Pair[A, B]) {
	Encode(w, p.First)
	Encode(w, p.Second)
}

// DecodePair reads a Pair written by EncodePair.
func DecodePair[A, B any](r *Reader) Pair[A, B] {
	var p Pair[A, B]
	DecodePairInto(r, &p)
	if r.err != nil {
		return Pair[A, B]{}
	}
	return p
}

// DecodePairInto reads a Pair in place.
func DecodePairInto[A, B any](r *Reader, dst *Pair[A, B]) {
	DecodeInto(r, &dst.First)
	DecodeInto(r, &dst.Second)
}

// selfRegistrar is implemented by generic types that can register their own
// routines for any instantiation.
type selfRegistrar interface {
	registerWith(r *Registry) error
}

func (Pair[A, B]) registerWith(r *Registry) error {
	return RegisterRoutine[Pair[A, B]](r, EncodePair[A, B], DecodePair[A, B],
		WithDecodeInto[Pair[A, B]](DecodePairInto[A, B]))
}
