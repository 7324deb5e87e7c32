package bincodec

import (
	"reflect"

	"github.com/cockroachdb/errors"
)

// Writer appends encoded values to a Sink.
// It tracks the first error that occurs; after an error all subsequent
// write operations become no-ops.
type Writer struct {
	sink Sink
	err  error
	reg  *Registry
}

// NewWriter creates a Writer over sink that dispatches through the Default registry.
func NewWriter(sink Sink) *Writer {
	return Default.NewWriter(sink)
}

// Registry returns the registry nested values are dispatched through.
func (w *Writer) Registry() *Registry { return w.reg }

func (w *Writer) Err() error { return w.err }

// Len returns the number of bytes committed to the sink.
func (w *Writer) Len() int {
	if w.sink == nil {
		return 0
	}
	return w.sink.Len()
}

// Bytes returns the committed bytes. It aliases the sink's storage.
func (w *Writer) Bytes() []byte {
	if w.sink == nil {
		return nil
	}
	return w.sink.Bytes()
}

// Result returns the written bytes and the final error state.
// On error the bytes are nil, never a truncated encoding.
func (w *Writer) Result() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.Bytes(), nil
}

// SetError records err if no error has been recorded yet.
// This preserves the root cause of a failure chain instead of a later,
// less relevant error.
func (w *Writer) SetError(err error) {
	if w.err == nil && err != nil {
		w.err = err
	}
}

// reserve returns n writable bytes, to be committed with w.sink.Commit.
func (w *Writer) reserve(n int) []byte {
	if w.err != nil {
		return nil
	}
	b, err := w.sink.Reserve(n)
	if err != nil {
		w.err = err
		return nil
	}
	return b[:n]
}

// WriteRaw appends p without any framing.
func (w *Writer) WriteRaw(p []byte) {
	if len(p) == 0 {
		return
	}
	if b := w.reserve(len(p)); b != nil {
		copy(b, p)
		w.sink.Commit(len(p))
	}
}

// writeRaw copies the memory of v. T must have a fixed layout.
func writeRaw[T any](w *Writer, v T) {
	w.WriteRaw(valueBytes(&v))
}

// WriteUnaligned encodes a fixed-size value in host layout.
func WriteUnaligned[T any](w *Writer, v T) {
	if w.err != nil {
		return
	}
	if t := reflect.TypeFor[T](); !layoutOf(t).fixed {
		w.err = errors.Wrapf(ErrUnregisteredType, "%s has no fixed layout", t)
		return
	}
	writeRaw(w, v)
}

// Advance reserves n zeroed bytes to be patched later and returns their position.
func (w *Writer) Advance(n int) int {
	pos := w.Len()
	if b := w.reserve(n); b != nil {
		clear(b)
		w.sink.Commit(n)
	}
	return pos
}

// PatchLength overwrites the 4 bytes at pos with the distance from pos to the
// current position, big-endian. The distance includes the prefix itself.
func (w *Writer) PatchLength(pos int) {
	w.PutUint32(pos, uint32(w.Len()-pos))
}

// PutUint32 overwrites the 4 bytes at pos with v, big-endian.
func (w *Writer) PutUint32(pos int, v uint32) {
	if w.err != nil {
		return
	}
	written := w.sink.Bytes()
	if pos < 0 || pos+HeaderSize > len(written) {
		w.err = outOfBounds("patch", HeaderSize, pos, len(written))
		return
	}
	Canonical.PutUint32(written[pos:], v)
}

// --- Structural markers ---

func (w *Writer) writeMarker(v uint32) {
	if b := w.reserve(HeaderSize); b != nil {
		Canonical.PutUint32(b, v)
		w.sink.Commit(HeaderSize)
	}
}

// WriteCollectionHeader writes the header of a present collection of n elements.
func (w *Writer) WriteCollectionHeader(n int) {
	if n < 0 || n > MaxCollectionLen {
		w.SetError(errors.Wrapf(ErrMalformedWireData, "collection count %d out of range", n))
		return
	}
	w.writeMarker(CollectionHeader(n))
}

// WriteNullCollection writes the absent-collection marker.
func (w *Writer) WriteNullCollection() { w.writeMarker(NullCollection) }

// WriteTypeID writes a polymorphic wire type id.
func (w *Writer) WriteTypeID(id uint32) { w.writeMarker(id) }

// --- Primitive Write Operations ---

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(presentByte)
	} else {
		w.WriteUint8(absentByte)
	}
}

func (w *Writer) WriteUint8(v uint8) {
	if b := w.reserve(1); b != nil {
		b[0] = v
		w.sink.Commit(1)
	}
}

func (w *Writer) WriteInt8(v int8) { w.WriteUint8(uint8(v)) }

func (w *Writer) WriteUint16(v uint16) {
	if b := w.reserve(2); b != nil {
		Native.PutUint16(b, v)
		w.sink.Commit(2)
	}
}

func (w *Writer) WriteUint32(v uint32) {
	if b := w.reserve(4); b != nil {
		Native.PutUint32(b, v)
		w.sink.Commit(4)
	}
}

func (w *Writer) WriteUint64(v uint64) {
	if b := w.reserve(8); b != nil {
		Native.PutUint64(b, v)
		w.sink.Commit(8)
	}
}

func (w *Writer) WriteInt16(v int16) { w.WriteUint16(uint16(v)) }
func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteFloat32(v float32) { writeRaw(w, v) }
func (w *Writer) WriteFloat64(v float64) { writeRaw(w, v) }

// WriteInt writes a platform-sized int.
func (w *Writer) WriteInt(v int) { writeRaw(w, v) }

// WriteUint writes a platform-sized uint.
func (w *Writer) WriteUint(v uint) { writeRaw(w, v) }

// --- Variable-length payloads ---

// WriteString writes a header carrying the byte length, then the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	if len(s) == 0 {
		w.writeMarker(EmptyCollectionHeader)
		return
	}
	if len(s) > MaxCollectionLen {
		w.SetError(errors.Wrapf(ErrMalformedWireData, "string length %d out of range", len(s)))
		return
	}
	if b := w.reserve(HeaderSize + len(s)); b != nil {
		Canonical.PutUint32(b, CollectionHeader(len(s)))
		copy(b[HeaderSize:], s)
		w.sink.Commit(HeaderSize + len(s))
	}
}

// WriteByteSlice writes a header-prefixed byte slice. nil is written as the
// null collection.
func (w *Writer) WriteByteSlice(p []byte) {
	if p == nil {
		w.WriteNullCollection()
		return
	}
	w.WriteCollectionHeader(len(p))
	w.WriteRaw(p)
}
