// Package slptest builds serialized token transactions for tests.
package slptest

import (
	"testing"

	"github.com/Klingon-tech/slpgraph/pkg/slp"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// DustValue is the satoshi value placed on every non-OP_RETURN output.
const DustValue = 546

// P2PKH returns a pay-to-pubkey-hash script whose hash is filled with tag.
func P2PKH(tag byte) types.Script {
	s := []byte{0x76, 0xa9, 0x14}
	for i := 0; i < 20; i++ {
		s = append(s, tag)
	}
	return append(s, 0x88, 0xac)
}

// Funding returns a distinct outpoint outside any test graph.
func Funding(n byte) types.Outpoint {
	return types.Outpoint{TxID: types.Hash{0xf0, n}, Index: 0}
}

// Out returns the outpoint of output vout of t.
func Out(t *tx.Transaction, vout uint32) types.Outpoint {
	return types.Outpoint{TxID: t.TxID, Index: vout}
}

// Build hydrates a transaction with the given inputs, an OP_RETURN output 0
// carrying script, and outputs dust outputs after it.
func Build(tb testing.TB, inputs []types.Outpoint, script types.Script, outputs int) *tx.Transaction {
	tb.Helper()
	b := tx.NewBuilder()
	for _, in := range inputs {
		b.AddInput(in)
	}
	b.AddOutput(0, script)
	for i := 1; i <= outputs; i++ {
		b.AddOutput(DustValue, P2PKH(byte(i)))
	}
	t, err := b.Build(0)
	if err != nil {
		tb.Fatalf("build: %v", err)
	}
	return t
}

// Genesis builds a GENESIS of typ spending funding. A zero baton means no
// mint baton.
func Genesis(tb testing.TB, typ types.TokenType, funding types.Outpoint, qty uint64, baton uint32) *tx.Transaction {
	tb.Helper()
	g := &slp.Genesis{
		Type:          typ,
		Ticker:        "TEST",
		Name:          "Test Token",
		Decimals:      0,
		HasMintBaton:  baton != 0,
		MintBatonVout: baton,
		Qty:           qty,
	}
	return Build(tb, []types.Outpoint{funding}, g.Script(), int(max(1, baton)))
}

// Mint builds a MINT of typ for id spending inputs. A zero baton means the
// mint passes no baton on.
func Mint(tb testing.TB, typ types.TokenType, id types.TokenID, inputs []types.Outpoint, qty uint64, baton uint32) *tx.Transaction {
	tb.Helper()
	m := &slp.Mint{
		Type:          typ,
		TokenID:       id,
		HasMintBaton:  baton != 0,
		MintBatonVout: baton,
		Qty:           qty,
	}
	return Build(tb, inputs, m.Script(), int(max(1, baton)))
}

// Send builds a SEND of typ for id spending inputs.
func Send(tb testing.TB, typ types.TokenType, id types.TokenID, inputs []types.Outpoint, amounts ...uint64) *tx.Transaction {
	tb.Helper()
	s := &slp.Send{Type: typ, TokenID: id, Amounts: amounts}
	return Build(tb, inputs, s.Script(), len(amounts))
}

// Plain builds a transaction without a token operation, paying values to
// outputs 0..n-1.
func Plain(tb testing.TB, inputs []types.Outpoint, values ...uint64) *tx.Transaction {
	tb.Helper()
	b := tx.NewBuilder()
	for _, in := range inputs {
		b.AddInput(in)
	}
	for i, v := range values {
		b.AddOutput(v, P2PKH(byte(0x80+i)))
	}
	t, err := b.Build(0)
	if err != nil {
		tb.Fatalf("build: %v", err)
	}
	return t
}

// ID returns the token id created by a GENESIS transaction.
func ID(genesis *tx.Transaction) types.TokenID {
	return types.TokenID(genesis.TxID)
}
