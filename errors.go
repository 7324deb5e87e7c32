package bincodec

import "github.com/cockroachdb/errors"

var (
	// ErrOutOfBounds indicates a read or write would cross the extent of its buffer.
	ErrOutOfBounds = errors.New("bincodec: out of bounds")

	// ErrMalformedWireData indicates a header, marker, length prefix or wire type id
	// that does not match any recognized value.
	ErrMalformedWireData = errors.New("bincodec: malformed wire data")

	// ErrUnregisteredType indicates a type with no routine that is not eligible
	// for the raw copy path.
	ErrUnregisteredType = errors.New("bincodec: unregistered type")

	// ErrTypeMismatch indicates a concrete type that is not registered as a
	// subtype of the polymorphic slot it was found in.
	ErrTypeMismatch = errors.New("bincodec: type mismatch")

	// ErrDuplicateWireID indicates a wire type id already bound to another type.
	ErrDuplicateWireID = errors.New("bincodec: wire type id already registered")

	// ErrTrailingData is returned when RejectTrailingData is set and bytes
	// remain after the value was decoded.
	ErrTrailingData = errors.New("bincodec: trailing data after decoding")

	// ErrNilSink indicates NewWriter was called with a nil Sink.
	ErrNilSink = errors.New("bincodec: NewWriter called with a nil sink")
)

func outOfBounds(op string, need, pos, size int) error {
	return errors.Wrapf(ErrOutOfBounds, "%s: need %d bytes at offset %d, extent %d", op, need, pos, size)
}
