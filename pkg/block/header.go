package block

import (
	"fmt"

	"github.com/Klingon-tech/slpgraph/pkg/types"
	"github.com/Klingon-tech/slpgraph/pkg/wire"
)

// HeaderSize is the serialized size of a block header.
const HeaderSize = 80

// Header contains block metadata.
type Header struct {
	Version    uint32     `json:"version"`
	PrevBlock  types.Hash `json:"prev_block"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Timestamp  uint32     `json:"timestamp"`
	Bits       uint32     `json:"bits"`
	Nonce      uint32     `json:"nonce"`
}

// Bytes returns the 80-byte wire encoding of the header.
func (h *Header) Bytes() []byte {
	b := make([]byte, 0, HeaderSize)
	b = wire.AppendUint32(b, h.Version)
	b = wire.AppendHash(b, h.PrevBlock)
	b = wire.AppendHash(b, h.MerkleRoot)
	b = wire.AppendUint32(b, h.Timestamp)
	b = wire.AppendUint32(b, h.Bits)
	return wire.AppendUint32(b, h.Nonce)
}

// Hash returns the block hash (double SHA-256 of the header bytes).
func (h *Header) Hash() types.Hash {
	return types.DoubleSHA256(h.Bytes())
}

func readHeader(r *wire.Reader) (Header, error) {
	var h Header
	var err error
	if h.Version, err = r.ReadUint32(); err != nil {
		return h, fmt.Errorf("version: %w", err)
	}
	if h.PrevBlock, err = r.ReadHash(); err != nil {
		return h, fmt.Errorf("prev block: %w", err)
	}
	if h.MerkleRoot, err = r.ReadHash(); err != nil {
		return h, fmt.Errorf("merkle root: %w", err)
	}
	if h.Timestamp, err = r.ReadUint32(); err != nil {
		return h, fmt.Errorf("timestamp: %w", err)
	}
	if h.Bits, err = r.ReadUint32(); err != nil {
		return h, fmt.Errorf("bits: %w", err)
	}
	if h.Nonce, err = r.ReadUint32(); err != nil {
		return h, fmt.Errorf("nonce: %w", err)
	}
	return h, nil
}
