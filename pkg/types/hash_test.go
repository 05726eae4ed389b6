package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestHash_IsZero(t *testing.T) {
	var zero Hash
	if !zero.IsZero() {
		t.Error("zero-value Hash should be zero")
	}

	nonZero := Hash{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero Hash should not be zero")
	}
}

func TestHash_StringIsByteReversed(t *testing.T) {
	var h Hash
	if s := h.String(); s != strings.Repeat("0", 64) {
		t.Errorf("zero hash String() = %s, want all zeros", s)
	}

	h[0] = 0xab
	h[31] = 0xcd
	s := h.String()
	if !strings.HasPrefix(s, "cd") {
		t.Errorf("String() should start with last byte 'cd', got %s", s[:2])
	}
	if !strings.HasSuffix(s, "ab") {
		t.Errorf("String() should end with first byte 'ab', got %s", s[62:])
	}
}

func TestHash_Bytes(t *testing.T) {
	h := Hash{0x01, 0x02, 0x03}
	b := h.Bytes()

	if len(b) != HashSize {
		t.Errorf("Bytes() length = %d, want %d", len(b), HashSize)
	}
	if b[0] != 0x01 || b[1] != 0x02 || b[2] != 0x03 {
		t.Errorf("Bytes() content mismatch")
	}

	b[0] = 0xFF
	if h[0] == 0xFF {
		t.Error("Bytes() should return a copy, not a reference")
	}
}

func TestHash_Reversed(t *testing.T) {
	h := Hash{0x01, 0x02}
	r := h.Reversed()
	if r[31] != 0x01 || r[30] != 0x02 {
		t.Errorf("Reversed() = %x", r)
	}
	if r.Reversed() != h {
		t.Error("Reversed twice should be identity")
	}
}

func TestDoubleSHA256(t *testing.T) {
	// sha256d("") in display order.
	const want = "56944c5d3f98413ef45cf54545538103cc9f298e0575820ad3591376e2e0f65d"
	if got := DoubleSHA256(nil).String(); got != want {
		t.Errorf("DoubleSHA256(nil) = %s, want %s", got, want)
	}
}

func TestHexToHash(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "valid 64 hex chars",
			input: "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
		},
		{
			name:  "all zeros",
			input: strings.Repeat("0", 64),
		},
		{
			name:    "too short",
			input:   "abcd",
			wantErr: true,
		},
		{
			name:    "too long",
			input:   strings.Repeat("a", 66),
			wantErr: true,
		},
		{
			name:    "invalid hex character",
			input:   strings.Repeat("g", 64),
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := HexToHash(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("HexToHash(%q) should have returned error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("HexToHash(%q) unexpected error: %v", tt.input, err)
			}
			if h.String() != tt.input {
				t.Errorf("roundtrip: got %s, want %s", h.String(), tt.input)
			}
		})
	}
}

func TestHash_JSON(t *testing.T) {
	h := Hash{0xde, 0xad}
	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.HasSuffix(string(data), `adde"`) {
		t.Errorf("Marshal = %s, want display order", data)
	}

	var back Hash
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != h {
		t.Errorf("Unmarshal = %x, want %x", back, h)
	}
}

func TestBytesToHash(t *testing.T) {
	if _, err := BytesToHash(make([]byte, 31)); err == nil {
		t.Error("expected error for 31 bytes")
	}
	h, err := BytesToHash(append([]byte{0x07}, make([]byte, 31)...))
	if err != nil {
		t.Fatalf("BytesToHash: %v", err)
	}
	if h[0] != 0x07 {
		t.Errorf("h[0] = %x, want 07", h[0])
	}
}

func TestTokenID_IsZero(t *testing.T) {
	var zero TokenID
	if !zero.IsZero() {
		t.Error("zero-value TokenID should be zero")
	}

	nonZero := TokenID{0x01}
	if nonZero.IsZero() {
		t.Error("non-zero TokenID should not be zero")
	}
}

func TestTokenID_String(t *testing.T) {
	tid := TokenID{0xde, 0xad}
	s := tid.String()
	if !strings.HasSuffix(s, "adde") {
		t.Errorf("TokenID.String() = %s, expected to end with 'adde'", s)
	}
}
