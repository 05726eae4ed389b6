// Package block hydrates serialized blocks and encodes the block cache layout.
package block

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
	"github.com/Klingon-tech/slpgraph/pkg/wire"
)

// Block errors.
var (
	ErrMalformed      = wire.ErrMalformed
	ErrMerkleMismatch = errors.New("merkle root mismatch")
)

// MaxTxCount bounds the declared transaction count of a block.
const MaxTxCount = 1 << 24

// Block is a header plus its (possibly filtered) transactions.
type Block struct {
	Header Header
	Txs    []*tx.Transaction
	// TxCount is the number of transactions in the serialized block, before
	// any filtering.
	TxCount uint64
}

// Options control hydration.
type Options struct {
	// Height is stamped on every hydrated output.
	Height uint32
	// TokenOnly keeps only transactions carrying a recognized token operation.
	TokenOnly bool
	// VerifyMerkle checks the header merkle root against all txids.
	VerifyMerkle bool
}

// Hash returns the block hash.
func (b *Block) Hash() string {
	return b.Header.Hash().String()
}

// Hydrate parses a serialized block. It fails if any transaction fails.
func Hydrate(data []byte, opts Options) (*Block, error) {
	r := wire.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	count, err := r.ReadVarInt()
	if err != nil {
		return nil, fmt.Errorf("tx count: %w", err)
	}
	if count > MaxTxCount {
		return nil, fmt.Errorf("tx count %d exceeds %d: %w", count, MaxTxCount, ErrMalformed)
	}

	blk := &Block{Header: h, TxCount: count}
	var txids []types.Hash
	if opts.VerifyMerkle {
		txids = make([]types.Hash, 0, min(count, uint64(r.Remaining()/60)))
	}
	for i := uint64(0); i < count; i++ {
		t, err := tx.HydrateFrom(r, opts.Height)
		if err != nil {
			return nil, fmt.Errorf("tx %d: %w", i, err)
		}
		if opts.VerifyMerkle {
			txids = append(txids, t.TxID)
		}
		if opts.TokenOnly && !t.IsToken() {
			continue
		}
		blk.Txs = append(blk.Txs, t)
	}

	if opts.VerifyMerkle {
		if root := ComputeMerkleRoot(txids); root != h.MerkleRoot {
			return nil, fmt.Errorf("computed %s, header %s: %w", root, h.MerkleRoot, ErrMerkleMismatch)
		}
	}
	return blk, nil
}

// Encode writes the cache layout: header, varint transaction count, then the
// raw bytes of each transaction. Hydrate re-parses it.
func Encode(h Header, txs []*tx.Transaction) []byte {
	size := HeaderSize + wire.VarIntSize(uint64(len(txs)))
	for _, t := range txs {
		size += len(t.Raw)
	}
	b := make([]byte, 0, size)
	b = append(b, h.Bytes()...)
	b = wire.AppendVarInt(b, uint64(len(txs)))
	for _, t := range txs {
		b = append(b, t.Raw...)
	}
	return b
}
