package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/slpgraph/pkg/types"
)

func TestVarInt_Boundaries(t *testing.T) {
	tests := []struct {
		value uint64
		width int
		first byte
	}{
		{0, 1, 0x00},
		{0xfc, 1, 0xfc},
		{0xfd, 3, 0xfd},
		{0xffff, 3, 0xfd},
		{0x10000, 5, 0xfe},
		{0xffffffff, 5, 0xfe},
		{0x100000000, 9, 0xff},
		{math.MaxUint64, 9, 0xff},
	}

	for _, tt := range tests {
		enc := AppendVarInt(nil, tt.value)
		if len(enc) != tt.width {
			t.Errorf("AppendVarInt(%#x) width = %d, want %d", tt.value, len(enc), tt.width)
		}
		if VarIntSize(tt.value) != tt.width {
			t.Errorf("VarIntSize(%#x) = %d, want %d", tt.value, VarIntSize(tt.value), tt.width)
		}
		if enc[0] != tt.first {
			t.Errorf("AppendVarInt(%#x) prefix = %#x, want %#x", tt.value, enc[0], tt.first)
		}

		r := NewReader(enc)
		w, err := r.PeekVarIntWidth()
		if err != nil {
			t.Fatalf("PeekVarIntWidth: %v", err)
		}
		if w != tt.width {
			t.Errorf("PeekVarIntWidth(%#x) = %d, want %d", tt.value, w, tt.width)
		}
		if r.Offset() != 0 {
			t.Error("PeekVarIntWidth must not consume")
		}

		got, err := r.ReadVarInt()
		if err != nil {
			t.Fatalf("ReadVarInt(%#x): %v", tt.value, err)
		}
		if got != tt.value {
			t.Errorf("ReadVarInt = %#x, want %#x", got, tt.value)
		}
		if r.Remaining() != 0 {
			t.Errorf("Remaining = %d after full read", r.Remaining())
		}
	}
}

func TestVarInt_RoundTripSweep(t *testing.T) {
	// Walk every power of two and its neighbours.
	for shift := 0; shift < 64; shift++ {
		base := uint64(1) << shift
		for _, v := range []uint64{base - 1, base, base + 1} {
			r := NewReader(AppendVarInt(nil, v))
			got, err := r.ReadVarInt()
			if err != nil {
				t.Fatalf("ReadVarInt(%#x): %v", v, err)
			}
			if got != v {
				t.Fatalf("round trip %#x -> %#x", v, got)
			}
		}
	}
}

func FuzzVarIntRoundTrip(f *testing.F) {
	f.Add(uint64(0))
	f.Add(uint64(0xfd))
	f.Add(uint64(math.MaxUint64))
	f.Fuzz(func(t *testing.T, v uint64) {
		got, err := NewReader(AppendVarInt(nil, v)).ReadVarInt()
		if err != nil || got != v {
			t.Fatalf("round trip %d -> %d (%v)", v, got, err)
		}
	})
}

func TestReader_Truncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		read func(r *Reader) error
	}{
		{"u8", nil, func(r *Reader) error { _, err := r.ReadUint8(); return err }},
		{"u16", []byte{1}, func(r *Reader) error { _, err := r.ReadUint16(); return err }},
		{"u32", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.ReadUint32(); return err }},
		{"u64", []byte{1, 2, 3, 4, 5, 6, 7}, func(r *Reader) error { _, err := r.ReadUint64(); return err }},
		{"i32", []byte{1}, func(r *Reader) error { _, err := r.ReadInt32(); return err }},
		{"varint empty", nil, func(r *Reader) error { _, err := r.ReadVarInt(); return err }},
		{"varint16 short", []byte{0xfd, 0x01}, func(r *Reader) error { _, err := r.ReadVarInt(); return err }},
		{"varint64 short", []byte{0xff, 1, 2, 3}, func(r *Reader) error { _, err := r.ReadVarInt(); return err }},
		{"bytes", []byte{1, 2}, func(r *Reader) error { _, err := r.ReadBytes(3); return err }},
		{"hash", make([]byte, 31), func(r *Reader) error { _, err := r.ReadHash(); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.buf)
			err := tt.read(r)
			if !errors.Is(err, ErrTruncated) {
				t.Fatalf("err = %v, want ErrTruncated", err)
			}
			if r.Offset() != 0 {
				t.Errorf("Offset = %d after failed read, want 0", r.Offset())
			}
		})
	}
}

func TestReader_LittleEndian(t *testing.T) {
	var buf []byte
	buf = append(buf, 0x7f)
	buf = AppendUint16(buf, 0x1234)
	buf = AppendUint32(buf, 0xdeadbeef)
	buf = AppendUint64(buf, 0x0102030405060708)
	buf = AppendInt32(buf, -2)

	r := NewReader(buf)
	if v, _ := r.ReadInt8(); v != 0x7f {
		t.Errorf("ReadInt8 = %#x", v)
	}
	if v, _ := r.ReadUint16(); v != 0x1234 {
		t.Errorf("ReadUint16 = %#x", v)
	}
	if v, _ := r.ReadUint32(); v != 0xdeadbeef {
		t.Errorf("ReadUint32 = %#x", v)
	}
	if v, _ := r.ReadUint64(); v != 0x0102030405060708 {
		t.Errorf("ReadUint64 = %#x", v)
	}
	if v, _ := r.ReadInt32(); v != -2 {
		t.Errorf("ReadInt32 = %d, want -2", v)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d", r.Remaining())
	}
}

func TestReader_HashAndVarBytes(t *testing.T) {
	h := types.Hash{0xaa, 0xbb}
	buf := AppendHash(nil, h)
	buf = AppendVarBytes(buf, []byte("payload"))

	r := NewReader(buf)
	got, err := r.ReadHash()
	if err != nil {
		t.Fatalf("ReadHash: %v", err)
	}
	if got != h {
		t.Errorf("ReadHash = %x, want %x", got, h)
	}
	data, err := r.ReadVarBytes(100)
	if err != nil {
		t.Fatalf("ReadVarBytes: %v", err)
	}
	if !bytes.Equal(data, []byte("payload")) {
		t.Errorf("ReadVarBytes = %q", data)
	}
}

func TestReader_VarBytesLimit(t *testing.T) {
	r := NewReader(AppendVarBytes(nil, make([]byte, 10)))
	if _, err := r.ReadVarBytes(9); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if r.Offset() != 0 {
		t.Errorf("Offset = %d after rejected read", r.Offset())
	}
}
