package wire

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// ErrTruncated is returned when a decoder runs out of bytes mid-value.
var ErrTruncated = errors.Wrap(ErrInvalidMessage, "truncated payload")

// encoder builds a payload using the structural primitives from §4.2:
// fixed-width little-endian integers, a one-byte bool, length-prefixed
// strings/bytes, a presence byte for options, and length-prefixed arrays.
type encoder struct {
	buf bytes.Buffer
}

func newEncoder() *encoder { return &encoder{} }

func (e *encoder) Bytes() []byte { return e.buf.Bytes() }

func (e *encoder) u8(v uint8)   { e.buf.WriteByte(v) }
func (e *encoder) u16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) u32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) u64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); e.buf.Write(b[:]) }
func (e *encoder) i64(v int64)  { e.u64(uint64(v)) }
func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) bytesField(v []byte) {
	e.u32(uint32(len(v)))
	e.buf.Write(v)
}

func (e *encoder) str(v string) {
	e.bytesField([]byte(v))
}

func (e *encoder) optBool(present bool, write func()) {
	e.boolean(present)
	if present {
		write()
	}
}

func (e *encoder) optStr(v *string) {
	e.optBool(v != nil, func() { e.str(*v) })
}

// decoder walks a payload byte slice; each read advances the cursor and
// returns ErrTruncated if the payload is shorter than the value demands.
type decoder struct {
	data []byte
	pos  int
}

func newDecoder(data []byte) *decoder { return &decoder{data: data} }

func (d *decoder) remaining() int { return len(d.data) - d.pos }

func (d *decoder) need(n int) error {
	if d.remaining() < n {
		return ErrTruncated
	}
	return nil
}

func (d *decoder) u8() (uint8, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	v := d.data[d.pos]
	d.pos++
	return v, nil
}

func (d *decoder) u16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(d.data[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *decoder) u32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(d.data[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *decoder) u64() (uint64, error) {
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(d.data[d.pos:])
	d.pos += 8
	return v, nil
}

func (d *decoder) i64() (int64, error) {
	v, err := d.u64()
	return int64(v), err
}

func (d *decoder) boolean() (bool, error) {
	v, err := d.u8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, errors.Wrapf(ErrInvalidMessage, "invalid bool byte 0x%02x", v)
	}
	return v == 1, nil
}

func (d *decoder) bytesField() ([]byte, error) {
	n, err := d.u32()
	if err != nil {
		return nil, err
	}
	if err := d.need(int(n)); err != nil {
		return nil, err
	}
	v := d.data[d.pos : d.pos+int(n)]
	d.pos += int(n)
	return v, nil
}

func (d *decoder) str() (string, error) {
	b, err := d.bytesField()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.Wrap(ErrInvalidMessage, "invalid utf-8 string")
	}
	return string(b), nil
}

func (d *decoder) optStr() (*string, error) {
	present, err := d.boolean()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}
	s, err := d.str()
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (d *decoder) done() error {
	if d.remaining() != 0 {
		return errors.Wrapf(ErrInvalidMessage, "%d trailing bytes in payload", d.remaining())
	}
	return nil
}
