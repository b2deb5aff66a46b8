package amf3

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyKey is returned when an associative array or dynamic
	// object member has an empty key. The empty string terminates those
	// sections on the wire, so it cannot be used as a key.
	ErrEmptyKey = errors.New("amf3: empty key in associative section")

	// ErrSealedMismatch is returned when an object's sealed values do
	// not line up with its trait's member names.
	ErrSealedMismatch = errors.New("amf3: sealed value count does not match trait members")

	// ErrNilTrait is returned when an object has no trait.
	ErrNilTrait = errors.New("amf3: object has no trait")

	// ErrTooLarge is returned by ToNative when expanding shared values
	// would produce more than MaxNativeValues values.
	ErrTooLarge = errors.New("amf3: expanded value too large")
)

// UnsupportedTypeError is returned by the encoder for values it cannot
// represent: XML, XMLDocument, Dictionary and foreign Value
// implementations.
type UnsupportedTypeError struct {
	Value Value
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("amf3: unsupported type for encoding: %T", e.Value)
}

// LegacyTypeNotSupportedError is returned by the decoder for the XML and
// XMLDocument markers.
type LegacyTypeNotSupportedError struct {
	Marker byte
	Offset int
}

func (e *LegacyTypeNotSupportedError) Error() string {
	return fmt.Sprintf("amf3: legacy type %s (0x%02X) at offset %d is not supported",
		MarkerName(e.Marker), e.Marker, e.Offset)
}

// NotImplementedError is returned by the decoder for the Dictionary
// marker.
type NotImplementedError struct {
	Marker byte
	Offset int
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("amf3: %s (0x%02X) at offset %d is not implemented",
		MarkerName(e.Marker), e.Marker, e.Offset)
}

// UnknownMarkerError is returned by the decoder for a byte that is not an
// AMF3 marker.
type UnknownMarkerError struct {
	Marker byte
	Offset int
}

func (e *UnknownMarkerError) Error() string {
	return fmt.Sprintf("amf3: unknown marker 0x%02X at offset %d", e.Marker, e.Offset)
}

// IntegerOutOfRangeError is returned when a U29 target exceeds MaxU29.
// Integers outside the signed 29-bit range never produce this error;
// they are encoded as doubles.
type IntegerOutOfRangeError struct {
	Value int64
}

func (e *IntegerOutOfRangeError) Error() string {
	return fmt.Sprintf("amf3: value %d (0x%X) exceeds U29 maximum 0x%X", e.Value, e.Value, MaxU29)
}

// UnexpectedEndOfBufferError is returned when the input ends inside a
// value.
type UnexpectedEndOfBufferError struct {
	Offset int // where the short read started
	Need   int // bytes required from Offset
}

func (e *UnexpectedEndOfBufferError) Error() string {
	return fmt.Sprintf("amf3: unexpected end of buffer at offset %d (need %d bytes)", e.Offset, e.Need)
}

// InvalidReferenceError is returned when a reference index points past
// the end of its table.
type InvalidReferenceError struct {
	Table  string
	Index  int
	Offset int
}

func (e *InvalidReferenceError) Error() string {
	return fmt.Sprintf("amf3: invalid %s reference %d at offset %d", e.Table, e.Index, e.Offset)
}

// NestingTooDeepError is returned when containers nest deeper than the
// configured limit. Offset is the input offset of the container for the
// decoder and the output length for the encoder.
type NestingTooDeepError struct {
	Limit  int
	Offset int
}

func (e *NestingTooDeepError) Error() string {
	return fmt.Sprintf("amf3: nesting deeper than %d at offset %d", e.Limit, e.Offset)
}
