package geometry

import (
	"database/sql/driver"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Point is a two-dimensional coordinate with a spatial reference id.
// SRID 0 means no reference system has been set.
type Point struct {
	X    float64
	Y    float64
	SRID uint32
}

// NewPoint creates a point without a spatial reference
func NewPoint(x, y float64) Point {
	return Point{X: x, Y: y}
}

// WithSRID returns a copy of the point bound to srid
func (p Point) WithSRID(srid uint32) Point {
	p.SRID = srid
	return p
}

// String returns the point as (E)WKT
func (p Point) String() string {
	wkt := fmt.Sprintf("POINT(%s %s)", formatCoord(p.X), formatCoord(p.Y))
	if p.SRID != 0 {
		return fmt.Sprintf("SRID=%d;%s", p.SRID, wkt)
	}
	return wkt
}

// EWKB encodes the point in PostGIS extended WKB. The SRID flag is set only when SRID is non-zero.
func (p Point) EWKB(littleEndian bool) []byte {
	var order binary.AppendByteOrder = binary.BigEndian
	marker := bigEndianMarker
	if littleEndian {
		order = binary.LittleEndian
		marker = littleEndianMarker
	}

	typeWord := TypePoint
	if p.SRID != 0 {
		typeWord |= SRIDFlag
	}

	buf := make([]byte, 0, 25)
	buf = append(buf, marker)
	buf = order.AppendUint32(buf, typeWord)
	if p.SRID != 0 {
		buf = order.AppendUint32(buf, p.SRID)
	}
	buf = order.AppendUint64(buf, math.Float64bits(p.X))
	buf = order.AppendUint64(buf, math.Float64bits(p.Y))
	return buf
}

// Hex returns the little-endian EWKB encoding as upper-case hex, the PostGIS text form
func (p Point) Hex() string {
	return strings.ToUpper(hex.EncodeToString(p.EWKB(true)))
}

// Value implements driver.Valuer
func (p Point) Value() (driver.Value, error) {
	return p.Hex(), nil
}

// Scan implements sql.Scanner for geometry columns returned as hex text or raw EWKB
func (p *Point) Scan(src interface{}) error {
	var (
		decoded Point
		err     error
	)

	switch v := src.(type) {
	case []byte:
		if len(v) > 0 && (v[0] == bigEndianMarker || v[0] == littleEndianMarker) {
			decoded, err = DecodeEWKB(v)
		} else {
			decoded, err = DecodeHex(string(v))
		}
	case string:
		decoded, err = DecodeHex(v)
	case nil:
		return errors.New("cannot scan NULL into geometry.Point")
	default:
		return fmt.Errorf("cannot scan %T into geometry.Point", src)
	}

	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// MarshalJSON encodes the point as a GeoJSON Point. GeoJSON coordinates are
// WGS 84 (RFC 7946), so the SRID is not written.
func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(geoJSONPoint{Type: "Point", Coordinates: []float64{p.X, p.Y}})
}

// UnmarshalJSON decodes a GeoJSON Point
func (p *Point) UnmarshalJSON(data []byte) error {
	decoded, err := ParseGeoJSON(data)
	if err != nil {
		return err
	}
	*p = decoded
	return nil
}

// ParseGeoJSON parses a GeoJSON Point object
func ParseGeoJSON(data []byte) (Point, error) {
	var g geoJSONPoint
	if err := json.Unmarshal(data, &g); err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidGeoJSON, err)
	}
	if g.Type != "Point" {
		return Point{}, fmt.Errorf("%w: type %q", ErrInvalidGeoJSON, g.Type)
	}
	if len(g.Coordinates) != 2 {
		return Point{}, fmt.Errorf("%w: expected 2 coordinates, got %d", ErrInvalidGeoJSON, len(g.Coordinates))
	}
	return NewPoint(g.Coordinates[0], g.Coordinates[1]), nil
}

// ParseWKT parses `POINT(x y)` with an optional `SRID=n;` prefix
func ParseWKT(s string) (Point, error) {
	s = strings.TrimSpace(s)

	var srid uint32
	if len(s) >= 5 && strings.EqualFold(s[:5], "SRID=") {
		semi := strings.IndexByte(s, ';')
		if semi < 0 {
			return Point{}, fmt.Errorf("%w: missing ';' after SRID", ErrInvalidWKT)
		}
		v, err := strconv.ParseUint(strings.TrimSpace(s[5:semi]), 10, 32)
		if err != nil {
			return Point{}, fmt.Errorf("%w: bad SRID: %v", ErrInvalidWKT, err)
		}
		srid = uint32(v)
		s = strings.TrimSpace(s[semi+1:])
	}

	if len(s) < 5 || !strings.EqualFold(s[:5], "POINT") {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidWKT, s)
	}

	body := strings.TrimSpace(s[5:])
	if !strings.HasPrefix(body, "(") || !strings.HasSuffix(body, ")") {
		return Point{}, fmt.Errorf("%w: %q", ErrInvalidWKT, s)
	}

	fields := strings.Fields(body[1 : len(body)-1])
	if len(fields) != 2 {
		return Point{}, fmt.Errorf("%w: expected 2 coordinates, got %d", ErrInvalidWKT, len(fields))
	}

	x, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidWKT, err)
	}
	y, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidWKT, err)
	}

	return Point{X: x, Y: y, SRID: srid}, nil
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
