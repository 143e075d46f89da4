package geometry

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidHex is returned when an EWKB payload is not valid hexadecimal
	ErrInvalidHex = errors.New("invalid hex geometry")

	// ErrTrailingBytes is returned when bytes remain after a complete geometry
	ErrTrailingBytes = errors.New("trailing bytes after geometry")

	// ErrInvalidWKT is returned for well-known-text that is not a supported POINT
	ErrInvalidWKT = errors.New("invalid WKT point")

	// ErrInvalidGeoJSON is returned for GeoJSON that is not a two-dimensional Point
	ErrInvalidGeoJSON = errors.New("invalid GeoJSON point")
)

// BufferUnderrunError is returned when a read needs more bytes than remain in the buffer
type BufferUnderrunError struct {
	Offset int
	Want   int
	Have   int
}

func (e *BufferUnderrunError) Error() string {
	return fmt.Sprintf("buffer underrun at offset %d: need %d bytes, %d remaining", e.Offset, e.Want, e.Have)
}

// InvalidEndiannessError is returned when the byte-order marker is neither 0 nor 1
type InvalidEndiannessError struct {
	Value byte
}

func (e *InvalidEndiannessError) Error() string {
	return fmt.Sprintf("invalid endianness marker: %d", e.Value)
}

// UnsupportedGeometryTypeError is returned for geometry type codes other than Point
type UnsupportedGeometryTypeError struct {
	Type uint32
}

func (e *UnsupportedGeometryTypeError) Error() string {
	return fmt.Sprintf("unsupported geometry type: %d", e.Type)
}

// IsDecodeError reports whether err came from decoding a malformed geometry payload
func IsDecodeError(err error) bool {
	var underrun *BufferUnderrunError
	var endianness *InvalidEndiannessError
	var unsupported *UnsupportedGeometryTypeError
	return errors.As(err, &underrun) ||
		errors.As(err, &endianness) ||
		errors.As(err, &unsupported) ||
		errors.Is(err, ErrInvalidHex) ||
		errors.Is(err, ErrTrailingBytes) ||
		errors.Is(err, ErrInvalidWKT) ||
		errors.Is(err, ErrInvalidGeoJSON)
}
