// Package wire decodes and encodes the Bitcoin wire primitives used by
// transactions and blocks: little-endian integers and variable-length integers.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Wire decoding errors.
var (
	ErrTruncated = errors.New("truncated input")
	ErrMalformed = errors.New("malformed input")
)

// Varint prefix bytes.
const (
	varIntPrefix16 = 0xfd
	varIntPrefix32 = 0xfe
	varIntPrefix64 = 0xff
)

// Reader is a cursor over a byte buffer. A failed read never advances it.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a reader positioned at the start of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Slice returns buf[from:to] of the underlying buffer without copying.
func (r *Reader) Slice(from, to int) []byte { return r.buf[from:to] }

func (r *Reader) need(n int) error {
	if n < 0 || r.Remaining() < n {
		return fmt.Errorf("need %d bytes at offset %d, have %d: %w", n, r.off, r.Remaining(), ErrTruncated)
	}
	return nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

// ReadUint16 reads a little-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v, nil
}

// ReadUint32 reads a little-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

// ReadUint64 reads a little-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

// ReadInt8 reads one signed byte.
func (r *Reader) ReadInt8() (int8, error) {
	v, err := r.ReadUint8()
	return int8(v), err
}

// ReadInt16 reads a little-endian int16.
func (r *Reader) ReadInt16() (int16, error) {
	v, err := r.ReadUint16()
	return int16(v), err
}

// ReadInt32 reads a little-endian int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadInt64 reads a little-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// PeekVarIntWidth returns the total encoded width (1, 3, 5 or 9) of the
// varint at the cursor without consuming anything.
func (r *Reader) PeekVarIntWidth() (int, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	return varIntWidth(r.buf[r.off]), nil
}

func varIntWidth(prefix byte) int {
	switch prefix {
	case varIntPrefix16:
		return 3
	case varIntPrefix32:
		return 5
	case varIntPrefix64:
		return 9
	default:
		return 1
	}
}

// ReadVarInt reads a Bitcoin variable-length integer.
func (r *Reader) ReadVarInt() (uint64, error) {
	width, err := r.PeekVarIntWidth()
	if err != nil {
		return 0, err
	}
	if err := r.need(width); err != nil {
		return 0, err
	}
	b := r.buf[r.off:]
	var v uint64
	switch width {
	case 1:
		v = uint64(b[0])
	case 3:
		v = uint64(binary.LittleEndian.Uint16(b[1:]))
	case 5:
		v = uint64(binary.LittleEndian.Uint32(b[1:]))
	default:
		v = binary.LittleEndian.Uint64(b[1:])
	}
	r.off += width
	return v, nil
}

// ReadBytes returns the next n bytes as a sub-slice of the buffer.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.off += n
	return nil
}

// ReadHash reads 32 bytes in wire order.
func (r *Reader) ReadHash() (types.Hash, error) {
	var h types.Hash
	b, err := r.ReadBytes(types.HashSize)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// ReadVarBytes reads a varint length followed by that many bytes.
// Lengths above max fail with ErrMalformed.
func (r *Reader) ReadVarBytes(max uint64) ([]byte, error) {
	start := r.off
	n, err := r.ReadVarInt()
	if err != nil {
		return nil, err
	}
	if n > max {
		r.off = start
		return nil, fmt.Errorf("length %d exceeds %d: %w", n, max, ErrMalformed)
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		r.off = start
		return nil, err
	}
	return b, nil
}
