package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// OpReturn is the opcode marking a provably unspendable output.
const OpReturn = 0x6a

// Script is a raw output locking script.
type Script []byte

// IsUnspendable reports whether the script starts with OP_RETURN.
func (s Script) IsUnspendable() bool {
	return len(s) > 0 && s[0] == OpReturn
}

// Hex returns the hex encoding of the script.
func (s Script) Hex() string {
	return hex.EncodeToString(s)
}

// Key returns the script as a string usable as a map key.
func (s Script) Key() string {
	return string(s)
}

// MarshalJSON encodes the script as hex.
func (s Script) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Hex())
}

// UnmarshalJSON decodes a hex-encoded script.
func (s *Script) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("invalid script hex: %w", err)
	}
	*s = b
	return nil
}

// HexToScript decodes a hex-encoded script.
func HexToScript(s string) (Script, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid script hex: %w", err)
	}
	return Script(b), nil
}
