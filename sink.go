package bincodec

import "github.com/cockroachdb/errors"

// Sink is the byte destination of a Writer. Callers Reserve at least n
// writable bytes, fill a prefix of them, then Commit the count actually used.
// Growth policy belongs to the sink.
type Sink interface {
	// Reserve returns a slice of at least n writable bytes following the
	// committed data. The slice is valid until the next Reserve.
	Reserve(n int) ([]byte, error)
	// Commit marks n bytes of the last reservation as written.
	Commit(n int)
	// Len returns the number of committed bytes.
	Len() int
	// Bytes returns the committed bytes. Writers patch length prefixes in place.
	Bytes() []byte
}

// truncater is implemented by sinks that can drop committed bytes.
type truncater interface {
	truncate(n int)
}

// Buffer is a growable Sink. The zero value is ready to use.
type Buffer struct {
	B []byte // committed data, len(B) is the write position
}

var _ Sink = (*Buffer)(nil)

// NewBuffer creates a Buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{B: make([]byte, 0, capacity)}
}

// Reserve implements Sink. The buffer at least doubles when it grows.
func (b *Buffer) Reserve(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.Wrapf(ErrOutOfBounds, "reserve: negative size %d", n)
	}
	if cap(b.B)-len(b.B) < n {
		grown := make([]byte, len(b.B), growCap(cap(b.B), len(b.B)+n))
		copy(grown, b.B)
		b.B = grown
	}
	return b.B[len(b.B) : len(b.B)+n], nil
}

// Commit implements Sink.
func (b *Buffer) Commit(n int) { b.B = b.B[:len(b.B)+n] }

// Len implements Sink.
func (b *Buffer) Len() int { return len(b.B) }

// Bytes implements Sink.
func (b *Buffer) Bytes() []byte { return b.B }

// truncate zeroes and drops everything after the first n bytes.
func (b *Buffer) truncate(n int) {
	clear(b.B[n:])
	b.B = b.B[:n]
}

// Cap returns the capacity of the underlying slice.
func (b *Buffer) Cap() int { return cap(b.B) }

// Reset zeroes the written region and rewinds the buffer, keeping its capacity.
func (b *Buffer) Reset() {
	clear(b.B)
	b.B = b.B[:0]
}

// BytesWriter is a Sink over a pre-allocated byte slice.
// It never grows; a reservation beyond the slice fails with ErrOutOfBounds.
type BytesWriter struct {
	B []byte // destination slice
	N int    // current write position
}

var _ Sink = (*BytesWriter)(nil)

// NewBytesWriter creates a new BytesWriter over the full capacity of p.
func NewBytesWriter(p []byte) *BytesWriter {
	return &BytesWriter{B: p[:cap(p)]}
}

// Reserve implements Sink.
func (w *BytesWriter) Reserve(n int) ([]byte, error) {
	if n < 0 || n > len(w.B)-w.N {
		return nil, outOfBounds("reserve", n, w.N, len(w.B))
	}
	return w.B[w.N : w.N+n], nil
}

// Commit implements Sink.
func (w *BytesWriter) Commit(n int) { w.N += n }

// Len returns the number of bytes written.
func (w *BytesWriter) Len() int { return w.N }

// Bytes returns a slice view of the written data.
func (w *BytesWriter) Bytes() []byte { return w.B[:w.N] }

func (w *BytesWriter) truncate(n int) {
	clear(w.B[n:w.N])
	w.N = n
}

// Reset allows the underlying byte slice to be reused.
func (w *BytesWriter) Reset() { w.N = 0 }

// Size returns the capacity of the underlying byte slice.
func (w *BytesWriter) Size() int { return len(w.B) }

// Available returns the number of bytes available for writing.
func (w *BytesWriter) Available() int { return len(w.B) - w.N }
