package bincodec

import (
	"bytes"
	"io"
	"reflect"

	"github.com/cockroachdb/errors"
)

// Marshal encodes v through the Default registry into a new byte slice.
func Marshal[T any](v T) ([]byte, error) {
	return MarshalWith(Default, v)
}

// MarshalWith encodes v through reg into a new byte slice.
// On error no bytes are returned.
func MarshalWith[T any](reg *Registry, v T) ([]byte, error) {
	buf := reg.AcquireBuffer()
	defer reg.ReleaseBuffer(buf)
	if s, ok := any(v).(Sizer); ok && s.Size() > 0 {
		if _, err := buf.Reserve(s.Size()); err != nil {
			return nil, err
		}
	}

	w := reg.NewWriter(buf)
	Encode(w, v)
	out, err := w.Result()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(out), nil
}

// MarshalTo encodes v through the Default registry into sink and returns the
// number of bytes written.
func MarshalTo[T any](sink Sink, v T) (int, error) {
	return MarshalToWith(Default, sink, v)
}

// MarshalToWith encodes v through reg into sink. On error a *Buffer or
// *BytesWriter sink is rolled back to its length before the call; other
// sinks keep whatever was committed.
func MarshalToWith[T any](reg *Registry, sink Sink, v T) (int, error) {
	w := reg.NewWriter(sink)
	start := w.Len()
	Encode(w, v)
	if err := w.Err(); err != nil {
		if t, ok := sink.(truncater); ok {
			t.truncate(start)
		}
		return 0, err
	}
	return w.Len() - start, nil
}

// Unmarshal decodes a T from data through the Default registry.
func Unmarshal[T any](data []byte) (T, error) {
	return UnmarshalWith[T](Default, data)
}

// UnmarshalWith decodes a T from data through reg. On error the zero value
// is returned.
func UnmarshalWith[T any](reg *Registry, data []byte) (T, error) {
	r := reg.NewReader(data)
	v := Decode[T](r)
	if err := reg.finish(r); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// UnmarshalInto decodes into *dst through the Default registry, reusing what
// dst already owns. On error *dst may be partially updated.
func UnmarshalInto[T any](data []byte, dst *T) error {
	return UnmarshalIntoWith(Default, data, dst)
}

// UnmarshalIntoWith decodes into *dst through reg.
func UnmarshalIntoWith[T any](reg *Registry, data []byte, dst *T) error {
	r := reg.NewReader(data)
	DecodeInto(r, dst)
	return reg.finish(r)
}

// MarshalAny encodes v by its dynamic type through the Default registry.
func MarshalAny(v any) ([]byte, error) {
	return MarshalAnyWith(Default, v)
}

// MarshalAnyWith encodes v by its dynamic type through reg.
func MarshalAnyWith(reg *Registry, v any) ([]byte, error) {
	buf := reg.AcquireBuffer()
	defer reg.ReleaseBuffer(buf)
	w := reg.NewWriter(buf)
	EncodeAny(w, v)
	out, err := w.Result()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(out), nil
}

// UnmarshalAny decodes a value of type t through the Default registry.
func UnmarshalAny(data []byte, t reflect.Type) (any, error) {
	return UnmarshalAnyWith(Default, data, t)
}

// UnmarshalAnyWith decodes a value of type t through reg.
func UnmarshalAnyWith(reg *Registry, data []byte, t reflect.Type) (any, error) {
	r := reg.NewReader(data)
	v := DecodeAny(r, t)
	if err := reg.finish(r); err != nil {
		return nil, err
	}
	return v, nil
}

func (reg *Registry) finish(r *Reader) error {
	if err := r.Err(); err != nil {
		return err
	}
	if reg.cfg.RejectTrailingData && r.Remaining() > 0 {
		return errors.Wrapf(ErrTrailingData, "%d bytes after offset %d", r.Remaining(), r.Pos())
	}
	return nil
}

// ReadFrom reads src to EOF and decodes a T from it through the Default registry.
// WARNING: This is NOT a streaming implementation. The whole input is buffered
// in memory before decoding.
func ReadFrom[T any](src io.Reader) (T, int64, error) {
	var zero T
	buf := bytesBufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bytesBufPool.Put(buf)

	n, err := buf.ReadFrom(src)
	if err != nil {
		return zero, n, errors.Wrap(err, "bincodec: read input")
	}
	v, err := Unmarshal[T](buf.Bytes())
	return v, n, err
}

// WriteTo encodes v through the Default registry and writes it to dst.
func WriteTo[T any](dst io.Writer, v T) (int64, error) {
	buf := Default.AcquireBuffer()
	defer Default.ReleaseBuffer(buf)
	w := Default.NewWriter(buf)
	Encode(w, v)
	out, err := w.Result()
	if err != nil {
		return 0, err
	}
	n, err := dst.Write(out)
	if err != nil {
		return int64(n), err
	}
	if n < len(out) {
		return int64(n), io.ErrShortWrite
	}
	return int64(n), nil
}
