package wire

import (
	"fmt"
	"math"

	"github.com/tessera-mmo/core/internal/apperrors"
)

// Writer сериализует значения сообщения в little-endian байтовый поток.
// Используется только внутри кодеков конкретных типов сообщений (message.go).
type Writer struct {
	buf []byte
}

// NewWriter создаёт писатель с заданной начальной ёмкостью.
func NewWriter(sizeHint int) *Writer {
	return &Writer{buf: make([]byte, 0, sizeHint)}
}

// Bytes возвращает накопленный буфер.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) WriteUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteInt8(v int8)     { w.buf = append(w.buf, byte(v)) }
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

func (w *Writer) WriteUint16(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

func (w *Writer) WriteUint32(v uint32) {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

func (w *Writer) WriteFloat64(v float64) {
	bits := math.Float64bits(v)
	for i := 0; i < 8; i++ {
		w.buf = append(w.buf, byte(bits>>(8*i)))
	}
}

// WriteBytes appends raw bytes with no length prefix (caller tracks length).
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteString writes a uint16 byte-length prefix followed by the UTF-8 bytes.
func (w *Writer) WriteString(s string) {
	w.WriteUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// Reader deserializes a little-endian message byte stream, returning a
// protocol error on any short read (§7 — malformed messages disconnect the
// sending peer, they never panic the simulation).
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) need(n int, op string) error {
	if r.Remaining() < n {
		return apperrors.Protocol(op, fmt.Errorf("need %d bytes, have %d", n, r.Remaining()))
	}
	return nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1, "wire.Reader.ReadUint8"); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadUint8()
	return v != 0, err
}

func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2, "wire.Reader.ReadUint16"); err != nil {
		return 0, err
	}
	v := uint16(r.buf[r.pos]) | uint16(r.buf[r.pos+1])<<8
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4, "wire.Reader.ReadUint32"); err != nil {
		return 0, err
	}
	v := uint32(r.buf[r.pos]) | uint32(r.buf[r.pos+1])<<8 | uint32(r.buf[r.pos+2])<<16 | uint32(r.buf[r.pos+3])<<24
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

func (r *Reader) ReadFloat64() (float64, error) {
	if err := r.need(8, "wire.Reader.ReadFloat64"); err != nil {
		return 0, err
	}
	var bits uint64
	for i := 0; i < 8; i++ {
		bits |= uint64(r.buf[r.pos+i]) << (8 * i)
	}
	r.pos += 8
	return math.Float64frombits(bits), nil
}

// ReadBytes returns the next n raw bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n, "wire.Reader.ReadBytes"); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadString reads a uint16 byte-length prefix followed by that many bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
