package bincodec

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// Reader is a cursor over a caller-owned byte region.
// It tracks the first error; after an error every read returns the zero value
// and the cursor stops moving.
type Reader struct {
	buf []byte
	pos int
	err error
	reg *Registry
}

// NewReader creates a Reader over data that dispatches through the Default registry.
func NewReader(data []byte) *Reader {
	return Default.NewReader(data)
}

// Registry returns the registry nested values are dispatched through.
func (r *Reader) Registry() *Registry { return r.reg }

func (r *Reader) Pos() int       { return r.pos }
func (r *Reader) Size() int      { return len(r.buf) }
func (r *Reader) Err() error     { return r.err }
func (r *Reader) EOF() bool      { return r.pos >= len(r.buf) }
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Result returns the number of bytes consumed and the final error state.
func (r *Reader) Result() (int, error) { return r.pos, r.err }

// SetError records err if no error has been recorded yet.
// Routines use it to report their own validation failures.
func (r *Reader) SetError(err error) {
	if r.err == nil && err != nil {
		r.err = err
	}
}

// take consumes n bytes, or latches ErrOutOfBounds and returns nil.
func (r *Reader) take(op string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.pos {
		r.err = outOfBounds(op, n, r.pos, len(r.buf))
		return nil
	}
	b := r.buf[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return b
}

// peek returns the next n bytes without consuming them.
func (r *Reader) peek(op string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.buf)-r.pos {
		r.err = outOfBounds(op, n, r.pos, len(r.buf))
		return nil
	}
	return r.buf[r.pos : r.pos+n]
}

// Advance consumes n bytes without decoding them.
func (r *Reader) Advance(n int) {
	r.take("advance", n)
}

// ReadRaw returns the next n bytes. The result aliases the reader's buffer.
func (r *Reader) ReadRaw(n int) []byte {
	return r.take("raw", n)
}

// readRaw copies sizeof(T) bytes into a new T. T must have a fixed layout.
func readRaw[T any](r *Reader) T {
	var v T
	if dst := valueBytes(&v); dst != nil {
		if src := r.take("read", len(dst)); src != nil {
			copy(dst, src)
		}
	}
	return v
}

// ReadUnaligned decodes a fixed-size value from the current position,
// independent of alignment.
func ReadUnaligned[T any](r *Reader) T {
	if !r.requireFixed(reflect.TypeFor[T]()) {
		var zero T
		return zero
	}
	return readRaw[T](r)
}

// Peek decodes a fixed-size value without consuming it.
func Peek[T any](r *Reader) T {
	var v T
	if !r.requireFixed(reflect.TypeFor[T]()) {
		return v
	}
	if dst := valueBytes(&v); dst != nil {
		if src := r.peek("peek", len(dst)); src != nil {
			copy(dst, src)
		}
	}
	return v
}

func (r *Reader) requireFixed(t reflect.Type) bool {
	if r.err != nil {
		return false
	}
	if !layoutOf(t).fixed {
		r.err = errors.Wrapf(ErrUnregisteredType, "%s has no fixed layout", t)
		return false
	}
	return true
}

// --- Structural markers ---

// ReadCollectionHeader returns (0, false) for a null collection, (0, true) for
// an empty one and (n, true) otherwise.
func (r *Reader) ReadCollectionHeader() (int, bool) {
	b := r.take("collection header", HeaderSize)
	if b == nil {
		return 0, false
	}
	h := Canonical.Uint32(b)
	n, present, ok := ParseCollectionHeader(h)
	if !ok {
		r.err = errors.Wrapf(ErrMalformedWireData, "collection header 0x%08x at offset %d", h, r.pos-HeaderSize)
		return 0, false
	}
	if n > MaxCollectionLen {
		r.err = errors.Wrapf(ErrMalformedWireData, "collection count %d exceeds %d", n, MaxCollectionLen)
		return 0, false
	}
	return n, present
}

// PeekNull reports whether the next marker is the null marker, without consuming it.
func (r *Reader) PeekNull() bool {
	b := r.peek("peek marker", HeaderSize)
	return b != nil && Canonical.Uint32(b) == NullMarker
}

// ReadTypeID reads a polymorphic wire type id.
func (r *Reader) ReadTypeID() uint32 {
	b := r.take("type id", HeaderSize)
	if b == nil {
		return NullTypeID
	}
	id := Canonical.Uint32(b)
	if id == ReferenceTypeID {
		r.err = errors.Wrapf(ErrMalformedWireData, "reserved type id 0x%08x at offset %d", id, r.pos-HeaderSize)
		return NullTypeID
	}
	return id
}

// Slice carves out the next length-prefixed region as an independent reader
// and moves past it. The prefix is big-endian and counts its own four bytes.
// Whatever the sub-reader leaves unread is skipped.
func (r *Reader) Slice() *Reader {
	sub := &Reader{reg: r.reg}
	b := r.peek("length prefix", HeaderSize)
	if b == nil {
		sub.err = r.err
		return sub
	}
	length := int(Canonical.Uint32(b))
	if length < HeaderSize {
		r.err = errors.Wrapf(ErrMalformedWireData, "length prefix %d at offset %d", length, r.pos)
		sub.err = r.err
		return sub
	}
	region := r.take("length-prefixed region", length)
	if region == nil {
		sub.err = r.err
		return sub
	}
	sub.buf = region[HeaderSize:]
	return sub
}

// --- Primitive Read Operations ---

// ReadBool reads one byte that must be 0 or 1.
func (r *Reader) ReadBool() bool {
	b := r.take("bool", 1)
	if b == nil {
		return false
	}
	switch b[0] {
	case absentByte:
		return false
	case presentByte:
		return true
	}
	r.err = errors.Wrapf(ErrMalformedWireData, "bool byte 0x%02x at offset %d", b[0], r.pos-1)
	return false
}

func (r *Reader) ReadUint8() uint8 {
	if b := r.take("uint8", 1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) ReadInt8() int8 { return int8(r.ReadUint8()) }

func (r *Reader) ReadUint16() uint16 {
	if b := r.take("uint16", 2); b != nil {
		return Native.Uint16(b)
	}
	return 0
}

func (r *Reader) ReadUint32() uint32 {
	if b := r.take("uint32", 4); b != nil {
		return Native.Uint32(b)
	}
	return 0
}

func (r *Reader) ReadUint64() uint64 {
	if b := r.take("uint64", 8); b != nil {
		return Native.Uint64(b)
	}
	return 0
}

func (r *Reader) ReadInt16() int16 { return int16(r.ReadUint16()) }
func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }
func (r *Reader) ReadInt64() int64 { return int64(r.ReadUint64()) }

func (r *Reader) ReadFloat32() float32 { return readRaw[float32](r) }
func (r *Reader) ReadFloat64() float64 { return readRaw[float64](r) }

// ReadInt reads a platform-sized int.
func (r *Reader) ReadInt() int { return readRaw[int](r) }

// ReadUint reads a platform-sized uint.
func (r *Reader) ReadUint() uint { return readRaw[uint](r) }

// --- Variable-length payloads ---

// ReadString reads a header-prefixed UTF-8 string. A null string decodes as "".
func (r *Reader) ReadString() string {
	n, present := r.ReadCollectionHeader()
	if !present || n == 0 {
		return ""
	}
	b := r.take("string", n)
	if b == nil {
		return ""
	}
	return string(b)
}

// ReadByteSlice reads a header-prefixed byte slice into a new slice.
// A null collection decodes as nil, an empty one as a non-nil empty slice.
func (r *Reader) ReadByteSlice() []byte {
	n, present := r.ReadCollectionHeader()
	if !present {
		return nil
	}
	b := r.take("bytes", n)
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, n), b...)
}

// ReadByteSliceInto reads a header-prefixed byte slice, reusing the capacity of *dst.
func (r *Reader) ReadByteSliceInto(dst *[]byte) {
	n, present := r.ReadCollectionHeader()
	if r.err != nil {
		return
	}
	if !present {
		*dst = nil
		return
	}
	b := r.take("bytes", n)
	if b == nil {
		return
	}
	if *dst == nil {
		*dst = make([]byte, 0, n)
	}
	*dst = append((*dst)[:0], b...)
}
