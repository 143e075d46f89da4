package geometry

import (
	"encoding/binary"
	"math"
)

// Consumable is a forward-only cursor over a binary geometry payload
type Consumable struct {
	data   []byte
	offset int
}

// NewConsumable creates a cursor positioned at the start of data
func NewConsumable(data []byte) *Consumable {
	return &Consumable{data: data}
}

// Offset returns the number of bytes consumed so far
func (c *Consumable) Offset() int {
	return c.offset
}

// Len returns the total length of the underlying buffer
func (c *Consumable) Len() int {
	return len(c.data)
}

// Remaining returns the number of unread bytes
func (c *Consumable) Remaining() int {
	return len(c.data) - c.offset
}

// ConsumeByte reads a single byte
func (c *Consumable) ConsumeByte() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ConsumeInteger reads an unsigned 32-bit integer in the given byte order
func (c *Consumable) ConsumeInteger(littleEndian bool) (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	if littleEndian {
		return binary.LittleEndian.Uint32(b), nil
	}
	return binary.BigEndian.Uint32(b), nil
}

// ConsumeDouble reads an IEEE 754 double in the given byte order.
// Big-endian input is reversed and then decoded as little-endian.
func (c *Consumable) ConsumeDouble(littleEndian bool) (float64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}

	var buf [8]byte
	copy(buf[:], b)
	if !littleEndian {
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}

	return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
}

// take advances the cursor by n bytes, failing without moving when fewer remain
func (c *Consumable) take(n int) ([]byte, error) {
	if c.Remaining() < n {
		return nil, &BufferUnderrunError{Offset: c.offset, Want: n, Have: c.Remaining()}
	}
	b := c.data[c.offset : c.offset+n]
	c.offset += n
	return b, nil
}
