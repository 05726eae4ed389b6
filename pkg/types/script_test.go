package types

import (
	"encoding/json"
	"testing"
)

func TestScript_IsUnspendable(t *testing.T) {
	tests := []struct {
		script Script
		want   bool
	}{
		{nil, false},
		{Script{OpReturn}, true},
		{Script{OpReturn, 0x04, 'S', 'L', 'P', 0x00}, true},
		{Script{0x76, 0xa9, 0x14}, false},
	}
	for _, tt := range tests {
		if got := tt.script.IsUnspendable(); got != tt.want {
			t.Errorf("IsUnspendable(%x) = %v, want %v", []byte(tt.script), got, tt.want)
		}
	}
}

func TestScript_JSON(t *testing.T) {
	s := Script{0x76, 0xa9}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `"76a9"` {
		t.Errorf("Marshal = %s, want \"76a9\"", data)
	}
	var back Script
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Hex() != "76a9" {
		t.Errorf("Unmarshal = %s", back.Hex())
	}
}

func TestTokenType_Known(t *testing.T) {
	for _, tt := range []TokenType{TokenTypeFungible, TokenTypeNFT1Child, TokenTypeNFT1Group} {
		if !tt.Known() {
			t.Errorf("%s should be known", tt)
		}
	}
	if TokenType(0x02).Known() {
		t.Error("0x02 should not be known")
	}
	if TokenType(0x02).String() != "unknown" {
		t.Error("unknown type name")
	}
}
