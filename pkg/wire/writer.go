package wire

import (
	"encoding/binary"
	"math"

	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// VarIntSize returns the encoded width of v.
func VarIntSize(v uint64) int {
	switch {
	case v < varIntPrefix16:
		return 1
	case v <= math.MaxUint16:
		return 3
	case v <= math.MaxUint32:
		return 5
	default:
		return 9
	}
}

// AppendVarInt appends the varint encoding of v.
func AppendVarInt(b []byte, v uint64) []byte {
	switch VarIntSize(v) {
	case 1:
		return append(b, byte(v))
	case 3:
		return binary.LittleEndian.AppendUint16(append(b, varIntPrefix16), uint16(v))
	case 5:
		return binary.LittleEndian.AppendUint32(append(b, varIntPrefix32), uint32(v))
	default:
		return binary.LittleEndian.AppendUint64(append(b, varIntPrefix64), v)
	}
}

// AppendUint16 appends a little-endian uint16.
func AppendUint16(b []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(b, v)
}

// AppendUint32 appends a little-endian uint32.
func AppendUint32(b []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(b, v)
}

// AppendUint64 appends a little-endian uint64.
func AppendUint64(b []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(b, v)
}

// AppendInt32 appends a little-endian int32.
func AppendInt32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

// AppendHash appends a hash in wire order.
func AppendHash(b []byte, h types.Hash) []byte {
	return append(b, h[:]...)
}

// AppendVarBytes appends a varint length followed by data.
func AppendVarBytes(b, data []byte) []byte {
	return append(AppendVarInt(b, uint64(len(data))), data...)
}
