package bincodec

import (
	"encoding/binary"
	"testing"
)

type BenchmarkPayload struct {
	ID      uint32
	Flags   uint32
	Val1    uint64
	Val2    uint64
	Val3    uint64
	Padding [8]byte
}

func BenchmarkMarshalSimple(b *testing.B) {
	p := BenchmarkPayload{ID: 1, Val1: 100}
	for b.Loop() {
		_, _ = Marshal(p)
	}
}

func BenchmarkUnmarshalSimple(b *testing.B) {
	data, _ := Marshal(BenchmarkPayload{ID: 1, Val1: 100})
	for b.Loop() {
		_, _ = Unmarshal[BenchmarkPayload](data)
	}
}

func BenchmarkMarshalToFixedSink(b *testing.B) {
	p := BenchmarkPayload{ID: 1, Val1: 100}
	sink := NewBytesWriter(make([]byte, 64))
	for b.Loop() {
		sink.Reset()
		_, _ = MarshalTo(sink, p)
	}
}

func BenchmarkSliceBulk(b *testing.B) {
	s := make([]BenchmarkPayload, 1024)
	buf := NewBuffer(64 << 10)
	for b.Loop() {
		buf.Reset()
		EncodeSlice(NewWriter(buf), s)
	}
}

func BenchmarkSliceElementwise(b *testing.B) {
	s := make([]BenchmarkPayload, 1024)
	e, _ := lookup[BenchmarkPayload](Default)
	buf := NewBuffer(64 << 10)
	for b.Loop() {
		buf.Reset()
		w := NewWriter(buf)
		w.WriteCollectionHeader(len(s))
		encodeEach(w, e, s)
	}
}

func BenchmarkPolymorphic(b *testing.B) {
	r := NewRegistry(nil)
	_ = RegisterSubtype[Shape, Square](r, nil, nil, WithWireID(1))
	_ = RegisterSubtype[Shape, *Circle](r, encodeCircle, decodeCircle, WithWireID(2))
	var v Shape = &Circle{Name: "c", R: 1}
	buf := NewBuffer(256)
	for b.Loop() {
		buf.Reset()
		Encode(r.NewWriter(buf), v)
	}
}

// Baseline comparison using only binary.Append directly, to see overhead of the dispatch.
func BenchmarkStandardBinaryAppend(b *testing.B) {
	p := BenchmarkPayload{ID: 1, Val1: 100}
	buf := make([]byte, 0, 64)
	for b.Loop() {
		_, _ = binary.Append(buf[:0], Native, &p)
	}
}
