// Package tx hydrates serialized Bitcoin Cash transactions and exposes the
// SLP token operation carried in output 0.
package tx

import (
	"github.com/Klingon-tech/slpgraph/pkg/slp"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Transaction is a hydrated transaction. It is immutable after hydration.
type Transaction struct {
	TxID     types.Hash
	Version  int32
	LockTime uint32
	Inputs   []types.Outpoint
	Outputs  []Output
	Op       slp.Op
	Raw      []byte
	Height   uint32
}

// Output is a transaction output together with its location.
type Output struct {
	TxID   types.Hash   `json:"txid"`
	Index  uint32       `json:"index"`
	Height uint32       `json:"height"`
	Value  uint64       `json:"value"`
	Script types.Script `json:"script"`
}

// Outpoint returns the outpoint identifying o.
func (o Output) Outpoint() types.Outpoint {
	return types.Outpoint{TxID: o.TxID, Index: o.Index}
}

// IsToken reports whether the transaction carries a recognized token operation.
func (t *Transaction) IsToken() bool {
	return slp.IsValid(t.Op)
}

// TokenID returns the token the transaction operates on.
func (t *Transaction) TokenID() (types.TokenID, bool) {
	return slp.TokenIDOf(t.Op)
}

// TokenType returns the token type of the operation, or 0 when invalid.
func (t *Transaction) TokenType() types.TokenType {
	if t.Op == nil {
		return 0
	}
	return t.Op.TokenType()
}

// OutputTokenAmount returns the token amount assigned to output vout.
func (t *Transaction) OutputTokenAmount(vout uint32) uint64 {
	return slp.OutputAmount(t.Op, vout)
}

// MintBatonOutpoint returns the outpoint holding the mint baton created by
// this transaction. It is false when there is no baton or the declared output
// does not exist.
func (t *Transaction) MintBatonOutpoint() (types.Outpoint, bool) {
	vout, ok := slp.MintBatonVout(t.Op)
	if !ok || uint64(vout) >= uint64(len(t.Outputs)) {
		return types.Outpoint{}, false
	}
	return types.Outpoint{TxID: t.TxID, Index: vout}, true
}

// InputTxIDs returns the distinct source txids of the inputs, in input order.
func (t *Transaction) InputTxIDs() []types.Hash {
	seen := make(map[types.Hash]struct{}, len(t.Inputs))
	ids := make([]types.Hash, 0, len(t.Inputs))
	for _, in := range t.Inputs {
		if _, ok := seen[in.TxID]; ok {
			continue
		}
		seen[in.TxID] = struct{}{}
		ids = append(ids, in.TxID)
	}
	return ids
}
