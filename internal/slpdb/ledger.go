// Package slpdb tracks per-token unspent outputs and mint authority for
// transactions proven valid.
package slpdb

import (
	"encoding/hex"
	"sort"

	"github.com/Klingon-tech/slpgraph/pkg/slp"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// TokenUtxo is an unspent output carrying tokens or the mint baton.
type TokenUtxo struct {
	Outpoint    types.Outpoint `json:"outpoint"`
	Amount      uint64         `json:"amount"`
	IsMintBaton bool           `json:"isMintBaton"`
}

// Token is the ledger entry of one token. It is created by the first GENESIS
// seen for the token id and never removed.
type Token struct {
	ID           types.TokenID
	Genesis      *slp.Genesis
	Transactions map[types.Hash]*tx.Transaction
	Utxos        map[types.Outpoint]TokenUtxo
	MintBaton    *types.Outpoint
}

// Metadata is the externally visible summary of a token.
type Metadata struct {
	TokenID      types.TokenID   `json:"tokenId"`
	Type         types.TokenType `json:"type"`
	Ticker       string          `json:"ticker"`
	Name         string          `json:"name"`
	DocumentURI  string          `json:"documentUri"`
	DocumentHash string          `json:"documentHash,omitempty"`
	Decimals     uint8           `json:"decimals"`
	InitialQty   uint64          `json:"initialQty"`
	Transactions int             `json:"transactions"`
	Utxos        int             `json:"utxos"`
	MintBaton    *types.Outpoint `json:"mintBaton,omitempty"`
}

// Metadata summarizes the token.
func (t *Token) Metadata() Metadata {
	m := Metadata{
		TokenID:      t.ID,
		Type:         t.Genesis.Type,
		Ticker:       t.Genesis.Ticker,
		Name:         t.Genesis.Name,
		DocumentURI:  t.Genesis.DocumentURI,
		Decimals:     t.Genesis.Decimals,
		InitialQty:   t.Genesis.Qty,
		Transactions: len(t.Transactions),
		Utxos:        len(t.Utxos),
	}
	if len(t.Genesis.DocumentHash) > 0 {
		m.DocumentHash = hex.EncodeToString(t.Genesis.DocumentHash)
	}
	if t.MintBaton != nil {
		baton := *t.MintBaton
		m.MintBaton = &baton
	}
	return m
}

// SortedUtxos returns the token's unspent outputs ordered by outpoint.
func (t *Token) SortedUtxos() []TokenUtxo {
	out := make([]TokenUtxo, 0, len(t.Utxos))
	for _, u := range t.Utxos {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Outpoint.Less(out[j].Outpoint) })
	return out
}

// Ledger holds every token. It is not safe for concurrent use; the chain
// coordinator serializes access.
type Ledger struct {
	tokens  map[types.TokenID]*Token
	owners  map[types.Outpoint]types.TokenID
	applied map[types.Hash]struct{}
	journal *Undo
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		tokens:  make(map[types.TokenID]*Token),
		owners:  make(map[types.Outpoint]types.TokenID),
		applied: make(map[types.Hash]struct{}),
	}
}

// Apply records a transaction already proven valid. Applying the same txid
// twice is a no-op. MINT and SEND for a token whose GENESIS was never applied
// are ignored. It reports whether the ledger changed. While recording, a
// transaction applied earlier from the mempool is still noted so that
// reverting its block drops it.
func (l *Ledger) Apply(t *tx.Transaction) bool {
	if _, ok := l.applied[t.TxID]; ok {
		l.noteTx(t)
		return false
	}

	var tok *Token
	switch op := t.Op.(type) {
	case *slp.Genesis:
		if _, exists := l.tokens[op.TokenID]; exists {
			return false
		}
		tok = &Token{
			ID:           op.TokenID,
			Genesis:      op,
			Transactions: make(map[types.Hash]*tx.Transaction),
			Utxos:        make(map[types.Outpoint]TokenUtxo),
		}
		l.tokens[op.TokenID] = tok
	case *slp.Mint:
		tok = l.tokens[op.TokenID]
	case *slp.Send:
		tok = l.tokens[op.TokenID]
	default:
		return false
	}
	if tok == nil {
		return false
	}

	l.applied[t.TxID] = struct{}{}
	tok.Transactions[t.TxID] = t
	l.noteTx(t)

	for i := range t.Outputs {
		vout := uint32(i)
		if amt := t.OutputTokenAmount(vout); amt > 0 {
			l.addUtxo(tok, TokenUtxo{Outpoint: t.Outputs[i].Outpoint(), Amount: amt})
		}
	}
	if baton, ok := t.MintBatonOutpoint(); ok {
		u := tok.Utxos[baton]
		u.Outpoint = baton
		u.IsMintBaton = true
		l.addUtxo(tok, u)
		l.noteBaton(tok)
		tok.MintBaton = &baton
	}
	return true
}

func (l *Ledger) addUtxo(tok *Token, u TokenUtxo) {
	tok.Utxos[u.Outpoint] = u
	l.owners[u.Outpoint] = tok.ID
}

// Spend removes token outputs consumed by inputs. Spending the current mint
// baton clears it. Unknown outpoints are ignored. It returns the number of
// token outputs removed.
func (l *Ledger) Spend(ops ...types.Outpoint) int {
	n := 0
	for _, op := range ops {
		id, ok := l.owners[op]
		if !ok {
			continue
		}
		delete(l.owners, op)
		tok := l.tokens[id]
		u, held := tok.Utxos[op]
		if !held {
			continue
		}
		l.noteSpend(id, u)
		delete(tok.Utxos, op)
		if tok.MintBaton != nil && *tok.MintBaton == op {
			l.noteBaton(tok)
			tok.MintBaton = nil
		}
		n++
	}
	return n
}

// Prune removes token outputs for which keep returns false. A token left
// without a baton takes a surviving baton output as its baton.
func (l *Ledger) Prune(keep func(types.Outpoint) bool) int {
	var drop []types.Outpoint
	touched := make(map[types.TokenID]struct{})
	for op, id := range l.owners {
		if !keep(op) {
			drop = append(drop, op)
			touched[id] = struct{}{}
		}
	}
	n := l.Spend(drop...)
	for id := range touched {
		l.fixBaton(l.tokens[id])
	}
	return n
}

// fixBaton points the baton at a held baton output when the current one is
// missing or no longer held.
func (l *Ledger) fixBaton(tok *Token) {
	if tok.MintBaton != nil {
		if _, held := tok.Utxos[*tok.MintBaton]; held {
			return
		}
		tok.MintBaton = nil
	}
	for op, u := range tok.Utxos {
		if u.IsMintBaton {
			baton := op
			tok.MintBaton = &baton
			return
		}
	}
}

// Token returns the ledger entry for id.
func (l *Ledger) Token(id types.TokenID) (*Token, bool) {
	t, ok := l.tokens[id]
	return t, ok
}

// Utxo returns the token output at op.
func (l *Ledger) Utxo(op types.Outpoint) (TokenUtxo, types.TokenID, bool) {
	id, ok := l.owners[op]
	if !ok {
		return TokenUtxo{}, types.TokenID{}, false
	}
	u, ok := l.tokens[id].Utxos[op]
	return u, id, ok
}

// Applied reports whether txid has been applied.
func (l *Ledger) Applied(txid types.Hash) bool {
	_, ok := l.applied[txid]
	return ok
}

// Tokens returns all token ids in byte order.
func (l *Ledger) Tokens() []types.TokenID {
	ids := make([]types.TokenID, 0, len(l.tokens))
	for id := range l.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

// Len returns the number of tokens.
func (l *Ledger) Len() int { return len(l.tokens) }

// UtxoCount returns the number of token outputs across all tokens.
func (l *Ledger) UtxoCount() int { return len(l.owners) }
