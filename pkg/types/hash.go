// Package types defines the primitive identifiers shared by the slpgraph indexer.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash is a 256-bit value stored in wire (internal) byte order.
// Its text form is the byte-reversed hex string used by block explorers.
type Hash [HashSize]byte

// TokenID identifies an SLP token. It is the txid of the token's GENESIS.
type TokenID Hash

// DoubleSHA256 returns sha256(sha256(data)).
func DoubleSHA256(data []byte) Hash {
	return Hash(chainhash.DoubleHashH(data))
}

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the byte-reversed hex encoding.
func (h Hash) String() string {
	return chainhash.Hash(h).String()
}

// Bytes returns a copy of the hash in wire order.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Reversed returns the hash with its byte order flipped.
func (h Hash) Reversed() Hash {
	var r Hash
	for i := 0; i < HashSize; i++ {
		r[i] = h[HashSize-1-i]
	}
	return r
}

// MarshalJSON encodes the hash in display form.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a display-form hex string.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash parses a display-form (byte-reversed) hex string.
// The string must be exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	if len(s) != HashSize*2 {
		return Hash{}, fmt.Errorf("hash must be %d hex chars, got %d", HashSize*2, len(s))
	}
	ch, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	return Hash(*ch), nil
}

// BytesToHash copies a 32-byte wire-order slice into a Hash.
func BytesToHash(b []byte) (Hash, error) {
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// IsZero returns true if the token ID is all zeros.
func (t TokenID) IsZero() bool {
	return Hash(t).IsZero()
}

// String returns the display form of the token ID.
func (t TokenID) String() string {
	return Hash(t).String()
}

// MarshalJSON encodes the token ID in display form.
func (t TokenID) MarshalJSON() ([]byte, error) {
	return Hash(t).MarshalJSON()
}

// UnmarshalJSON decodes a display-form token ID.
func (t *TokenID) UnmarshalJSON(data []byte) error {
	return (*Hash)(t).UnmarshalJSON(data)
}

// HexToTokenID parses a display-form token ID.
func HexToTokenID(s string) (TokenID, error) {
	h, err := HexToHash(s)
	return TokenID(h), err
}
