// Package buf implements the fixed-capacity, cursor-based scratch buffer
// used to assemble and parse the wire messages of the adapter protocol.
// Every write and read is big-endian; bounds failures never move the
// cursor or touch bytes past it.
package buf

import (
	"encoding/binary"
	"math"
)

// DataBuf is a fixed-capacity byte region with a read/write cursor.
// It never grows: callers size it once to the configured maximum
// message length and reuse it across messages via Reset.
//
// Every operation below takes its cursor position explicitly and
// returns the advanced position (0 on failure), mirroring the
// C-style DataBuf this protocol was ported from: callers thread the
// position between calls the way the wire codec does when assembling
// a message field by field.
type DataBuf struct {
	b []byte
}

// New allocates a DataBuf with the given capacity.
func New(capacity int) *DataBuf {
	return &DataBuf{b: make([]byte, capacity)}
}

// Init wraps an existing slice as a DataBuf without copying.
func Init(backing []byte) *DataBuf {
	return &DataBuf{b: backing}
}

// Cap returns the buffer's fixed capacity.
func (d *DataBuf) Cap() int { return len(d.b) }

// Bytes returns the backing slice. Callers must not retain it past the
// next Reset.
func (d *DataBuf) Bytes() []byte { return d.b }

// Reset zeroes the buffer so a fresh message can be assembled from
// position 0. It is the only way to rewind.
func (d *DataBuf) Reset() {
	for i := range d.b {
		d.b[i] = 0
	}
}

// Check reports whether pos+needed fits within the buffer's capacity.
func (d *DataBuf) Check(pos, needed int) bool {
	return pos >= 0 && needed >= 0 && pos+needed <= len(d.b)
}

// WriteI8 writes a single byte at pos and returns the new cursor
// position, or 0 on overflow.
func (d *DataBuf) WriteI8(pos int, v int8) int {
	if !d.Check(pos, 1) {
		return 0
	}
	d.b[pos] = byte(v)
	return pos + 1
}

// WriteI16 writes a big-endian int16 at pos.
func (d *DataBuf) WriteI16(pos int, v int16) int {
	if !d.Check(pos, 2) {
		return 0
	}
	binary.BigEndian.PutUint16(d.b[pos:], uint16(v))
	return pos + 2
}

// WriteI32 writes a big-endian int32 at pos.
func (d *DataBuf) WriteI32(pos int, v int32) int {
	if !d.Check(pos, 4) {
		return 0
	}
	binary.BigEndian.PutUint32(d.b[pos:], uint32(v))
	return pos + 4
}

// WriteI64 writes a big-endian int64 at pos.
func (d *DataBuf) WriteI64(pos int, v int64) int {
	if !d.Check(pos, 8) {
		return 0
	}
	binary.BigEndian.PutUint64(d.b[pos:], uint64(v))
	return pos + 8
}

// WriteF64 reinterprets v's IEEE-754 bit pattern as a big-endian int64
// and writes it at pos.
func (d *DataBuf) WriteF64(pos int, v float64) int {
	if !d.Check(pos, 8) {
		return 0
	}
	binary.BigEndian.PutUint64(d.b[pos:], math.Float64bits(v))
	return pos + 8
}

// WriteString writes a uint16 length prefix followed by the UTF-8
// bytes of s (treated as opaque octets). Fails if the total would
// exceed capacity.
func (d *DataBuf) WriteString(pos int, s string) int {
	n := len(s)
	if n > math.MaxUint16 || !d.Check(pos, 2+n) {
		return 0
	}
	binary.BigEndian.PutUint16(d.b[pos:], uint16(n))
	copy(d.b[pos+2:], s)
	return pos + 2 + n
}

// WriteEmptyString writes a zero length prefix and no bytes.
func (d *DataBuf) WriteEmptyString(pos int) int {
	return d.WriteI16(pos, 0)
}

// SetI16 overwrites a big-endian int16 at pos without advancing the
// cursor. Used to back-patch message length after the body is known.
func (d *DataBuf) SetI16(pos int, v int16) bool {
	if !d.Check(pos, 2) {
		return false
	}
	binary.BigEndian.PutUint16(d.b[pos:], uint16(v))
	return true
}

// PeekI8 reads a byte at pos without reporting a new cursor.
func (d *DataBuf) PeekI8(pos int) (int8, bool) {
	if !d.Check(pos, 1) {
		return 0, false
	}
	return int8(d.b[pos]), true
}

// ReadI8 reads a byte at pos and returns it with the advanced cursor.
func (d *DataBuf) ReadI8(pos int) (int8, int) {
	v, ok := d.PeekI8(pos)
	if !ok {
		return 0, 0
	}
	return v, pos + 1
}

// PeekI16 reads a big-endian int16 at pos without advancing.
func (d *DataBuf) PeekI16(pos int) (int16, bool) {
	if !d.Check(pos, 2) {
		return 0, false
	}
	return int16(binary.BigEndian.Uint16(d.b[pos:])), true
}

// ReadI16 reads a big-endian int16 at pos and returns the advanced
// cursor.
func (d *DataBuf) ReadI16(pos int) (int16, int) {
	v, ok := d.PeekI16(pos)
	if !ok {
		return 0, 0
	}
	return v, pos + 2
}

// PeekI32 reads a big-endian int32 at pos without advancing.
func (d *DataBuf) PeekI32(pos int) (int32, bool) {
	if !d.Check(pos, 4) {
		return 0, false
	}
	return int32(binary.BigEndian.Uint32(d.b[pos:])), true
}

// ReadI32 reads a big-endian int32 at pos and returns the advanced
// cursor.
func (d *DataBuf) ReadI32(pos int) (int32, int) {
	v, ok := d.PeekI32(pos)
	if !ok {
		return 0, 0
	}
	return v, pos + 4
}

// PeekI64 reads a big-endian int64 at pos without advancing.
func (d *DataBuf) PeekI64(pos int) (int64, bool) {
	if !d.Check(pos, 8) {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(d.b[pos:])), true
}

// ReadI64 reads a big-endian int64 at pos and returns the advanced
// cursor.
func (d *DataBuf) ReadI64(pos int) (int64, int) {
	v, ok := d.PeekI64(pos)
	if !ok {
		return 0, 0
	}
	return v, pos + 8
}

// PeekF64 reads a big-endian int64 bit pattern at pos and reinterprets
// it as a float64, without advancing.
func (d *DataBuf) PeekF64(pos int) (float64, bool) {
	if !d.Check(pos, 8) {
		return 0, false
	}
	return math.Float64frombits(binary.BigEndian.Uint64(d.b[pos:])), true
}

// ReadF64 reads a float64 at pos and returns the advanced cursor.
func (d *DataBuf) ReadF64(pos int) (float64, int) {
	v, ok := d.PeekF64(pos)
	if !ok {
		return 0, 0
	}
	return v, pos + 8
}

// ReadString reads a length-prefixed string at pos and returns it with
// the advanced cursor. Fails if the stored length exceeds the buffer
// remainder.
func (d *DataBuf) ReadString(pos int) (string, int) {
	n, ok := d.PeekI16(pos)
	if !ok {
		return "", 0
	}
	strLen := int(uint16(n))
	start := pos + 2
	if !d.Check(start, strLen) {
		return "", 0
	}
	return string(d.b[start : start+strLen]), start + strLen
}

// ReadStrncpy copies min(storedLen, len(dst)-1) bytes of a
// length-prefixed string into dst, null-terminates it, and returns the
// number of bytes copied (excluding the terminator) and the cursor
// advanced past the *full* stored length. Fails if the stored length
// exceeds the buffer remainder.
func (d *DataBuf) ReadStrncpy(pos int, dst []byte) (int, int) {
	n, ok := d.PeekI16(pos)
	if !ok {
		return 0, 0
	}
	strLen := int(uint16(n))
	start := pos + 2
	if !d.Check(start, strLen) {
		return 0, 0
	}
	if len(dst) == 0 {
		return 0, start + strLen
	}
	copyLen := strLen
	if copyLen > len(dst)-1 {
		copyLen = len(dst) - 1
	}
	copy(dst, d.b[start:start+copyLen])
	dst[copyLen] = 0
	return copyLen, start + strLen
}

// ReadStrdup allocates and returns an owned copy of the length-prefixed
// string at pos, along with the advanced cursor.
func (d *DataBuf) ReadStrdup(pos int) (string, int) {
	s, newPos := d.ReadString(pos)
	if newPos == 0 {
		return "", 0
	}
	return s, newPos
}
