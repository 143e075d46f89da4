package geometry

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SRIDFlag is the PostGIS EWKB bit marking an embedded SRID
	SRIDFlag uint32 = 0x20000000

	// TypePoint is the WKB geometry type code for Point
	TypePoint uint32 = 1

	bigEndianMarker    byte = 0
	littleEndianMarker byte = 1
)

// Consumer parses a single EWKB geometry from a Consumable
type Consumer struct {
	buf          *Consumable
	littleEndian bool
}

// NewConsumer creates a consumer reading from buf
func NewConsumer(buf *Consumable) *Consumer {
	return &Consumer{buf: buf}
}

// Consume reads the byte order, the type word, the optional SRID and the geometry body
func (c *Consumer) Consume() (Point, error) {
	marker, err := c.buf.ConsumeByte()
	if err != nil {
		return Point{}, err
	}

	switch marker {
	case bigEndianMarker:
		c.littleEndian = false
	case littleEndianMarker:
		c.littleEndian = true
	default:
		return Point{}, &InvalidEndiannessError{Value: marker}
	}

	typeWord, err := c.buf.ConsumeInteger(c.littleEndian)
	if err != nil {
		return Point{}, err
	}

	var srid uint32
	if typeWord&SRIDFlag != 0 {
		srid, err = c.buf.ConsumeInteger(c.littleEndian)
		if err != nil {
			return Point{}, err
		}
		typeWord &^= SRIDFlag
	}

	switch typeWord {
	case TypePoint:
		return c.consumePoint(srid)
	default:
		return Point{}, &UnsupportedGeometryTypeError{Type: typeWord}
	}
}

func (c *Consumer) consumePoint(srid uint32) (Point, error) {
	x, err := c.buf.ConsumeDouble(c.littleEndian)
	if err != nil {
		return Point{}, err
	}
	y, err := c.buf.ConsumeDouble(c.littleEndian)
	if err != nil {
		return Point{}, err
	}
	return Point{X: x, Y: y, SRID: srid}, nil
}

// DecodeEWKB decodes a complete EWKB payload. Bytes left over after the geometry are rejected.
func DecodeEWKB(data []byte) (Point, error) {
	buf := NewConsumable(data)
	p, err := NewConsumer(buf).Consume()
	if err != nil {
		return Point{}, err
	}
	if buf.Remaining() != 0 {
		return Point{}, fmt.Errorf("%w: %d", ErrTrailingBytes, buf.Remaining())
	}
	return p, nil
}

// DecodeHex decodes a hex EWKB string as produced by a PostGIS geometry column.
// A leading `\x` (bytea hex output) is accepted.
func DecodeHex(s string) (Point, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, `\x`)

	data, err := hex.DecodeString(s)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return DecodeEWKB(data)
}
