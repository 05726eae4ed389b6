package slpdb

import (
	"github.com/Klingon-tech/slpgraph/pkg/slp"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Undo holds the ledger changes of one block so Revert can take them back.
type Undo struct {
	txs    []*tx.Transaction
	spent  []spentUtxo
	batons map[types.TokenID]*types.Outpoint
}

type spentUtxo struct {
	id   types.TokenID
	utxo TokenUtxo
}

// Begin starts recording changes into a new Undo. Recording stops at Commit.
func (l *Ledger) Begin() {
	l.journal = &Undo{batons: make(map[types.TokenID]*types.Outpoint)}
}

// Commit stops recording and returns what was recorded since Begin, or nil
// when Begin was not called.
func (l *Ledger) Commit() *Undo {
	u := l.journal
	l.journal = nil
	return u
}

func (l *Ledger) noteTx(t *tx.Transaction) {
	if l.journal != nil {
		l.journal.txs = append(l.journal.txs, t)
	}
}

func (l *Ledger) noteSpend(id types.TokenID, u TokenUtxo) {
	if l.journal != nil {
		l.journal.spent = append(l.journal.spent, spentUtxo{id: id, utxo: u})
	}
}

// noteBaton keeps the baton a token had before the recorded block touched it.
func (l *Ledger) noteBaton(tok *Token) {
	if l.journal == nil {
		return
	}
	if _, seen := l.journal.batons[tok.ID]; seen {
		return
	}
	var prev *types.Outpoint
	if tok.MintBaton != nil {
		op := *tok.MintBaton
		prev = &op
	}
	l.journal.batons[tok.ID] = prev
}

// Revert takes back the changes recorded in u: spent token outputs return,
// the block's transactions and their outputs are dropped, and batons go back
// to their previous outpoints. A token whose genesis is dropped disappears.
func (l *Ledger) Revert(u *Undo) {
	if u == nil {
		return
	}
	for i := len(u.spent) - 1; i >= 0; i-- {
		s := u.spent[i]
		if tok, ok := l.tokens[s.id]; ok {
			l.addUtxo(tok, s.utxo)
		}
	}
	for i := len(u.txs) - 1; i >= 0; i-- {
		l.unapply(u.txs[i])
	}
	for id, prev := range u.batons {
		if tok, ok := l.tokens[id]; ok {
			tok.MintBaton = prev
		}
	}
	for _, t := range u.txs {
		if id, ok := t.TokenID(); ok {
			if tok, ok := l.tokens[id]; ok {
				l.fixBaton(tok)
			}
		}
	}
}

func (l *Ledger) unapply(t *tx.Transaction) {
	id, ok := t.TokenID()
	if !ok {
		return
	}
	tok, ok := l.tokens[id]
	if !ok {
		return
	}
	delete(l.applied, t.TxID)
	delete(tok.Transactions, t.TxID)
	for i := range t.Outputs {
		op := t.Outputs[i].Outpoint()
		if owner, held := l.owners[op]; held && owner == id {
			delete(l.owners, op)
			delete(tok.Utxos, op)
		}
	}
	if _, genesis := t.Op.(*slp.Genesis); genesis {
		for op := range tok.Utxos {
			delete(l.owners, op)
		}
		delete(l.tokens, id)
	}
}
