package utxodb

import (
	"testing"

	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

var (
	alice = types.Script{0x76, 0xa9, 0x14, 0xaa, 0x88, 0xac}
	bob   = types.Script{0x76, 0xa9, 0x14, 0xbb, 0x88, 0xac}
)

func out(txid byte, index uint32, value uint64, script types.Script) tx.Output {
	return tx.Output{TxID: types.Hash{txid}, Index: index, Value: value, Script: script}
}

func op(txid byte, index uint32) types.Outpoint {
	return types.Outpoint{TxID: types.Hash{txid}, Index: index}
}

func TestApplyBlock_BalanceAndRollback(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 5000, alice)}, true)
	if got := idx.Balance(alice); got != 5000 {
		t.Fatalf("balance after add = %d, want 5000", got)
	}

	idx.ApplyBlock([]types.Outpoint{op(1, 0)}, nil, true)
	if got := idx.Balance(alice); got != 0 {
		t.Fatalf("balance after spend = %d, want 0", got)
	}

	if !idx.Rollback() {
		t.Fatal("Rollback() = false")
	}
	if got := idx.Balance(alice); got != 5000 {
		t.Fatalf("balance after rollback = %d, want 5000", got)
	}

	if !idx.Rollback() {
		t.Fatal("second Rollback() = false")
	}
	if got := idx.Balance(alice); got != 0 {
		t.Fatalf("balance after undoing creation = %d, want 0", got)
	}
	if idx.Stats().Scripts != 0 {
		t.Errorf("empty script buckets should be dropped")
	}
}

func TestApplyBlock_SkipsUnspendable(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 0, types.Script{types.OpReturn, 0x01}), out(1, 1, 10, alice)}, false)
	if got := idx.Stats().Confirmed; got != 1 {
		t.Fatalf("confirmed = %d, want 1", got)
	}
}

func TestApplyBlock_CreateAndSpendSameBlock(t *testing.T) {
	idx := New()
	idx.ApplyBlock([]types.Outpoint{op(1, 0)}, []tx.Output{out(1, 0, 10, alice)}, true)
	if idx.HasConfirmed(op(1, 0)) {
		t.Fatal("output spent in its own block should be gone")
	}
	idx.Rollback()
	if idx.HasConfirmed(op(1, 0)) {
		t.Fatal("rollback should not resurrect an output created in the same block")
	}
}

func TestRollback_DepthLimit(t *testing.T) {
	idx := New()
	for i := 0; i < RollbackDepth+5; i++ {
		idx.ApplyBlock(nil, []tx.Output{out(byte(i+1), 0, 1, alice)}, true)
	}
	if got := idx.RollbackAvailable(); got != RollbackDepth {
		t.Fatalf("RollbackAvailable = %d, want %d", got, RollbackDepth)
	}
	for i := 0; i < RollbackDepth; i++ {
		if !idx.Rollback() {
			t.Fatalf("Rollback %d = false", i)
		}
	}
	before := idx.Stats()
	if idx.Rollback() {
		t.Fatal("Rollback past retained depth should be a no-op")
	}
	if after := idx.Stats(); after != before {
		t.Errorf("stats changed: %+v -> %+v", before, after)
	}
	if got := idx.Balance(alice); got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
}

func TestApplyBlock_NoRollbackRecord(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 1, alice)}, false)
	if idx.Rollback() {
		t.Fatal("Rollback with no saved history should be a no-op")
	}
}

func TestMempool_Overlay(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 100, alice)}, false)

	// Unconfirmed tx spends alice's output and pays bob.
	idx.ApplyMempoolTx([]types.Outpoint{op(1, 0)}, []tx.Output{out(2, 0, 90, bob)})
	if got := idx.Balance(alice); got != 0 {
		t.Errorf("alice balance = %d, want 0", got)
	}
	if got := idx.Balance(bob); got != 90 {
		t.Errorf("bob balance = %d, want 90", got)
	}
	res := idx.ByOutpoints([]types.Outpoint{op(1, 0), op(2, 0), op(3, 0)})
	if res[0] != nil {
		t.Error("mempool-spent output should not be returned")
	}
	if res[1] == nil || res[1].Value != 90 {
		t.Errorf("mempool output = %+v", res[1])
	}
	if res[2] != nil {
		t.Error("unknown output should be nil")
	}

	// Spending a mempool output removes it.
	idx.ApplyMempoolTx([]types.Outpoint{op(2, 0)}, nil)
	if got := idx.Balance(bob); got != 0 {
		t.Errorf("bob balance after mempool spend = %d, want 0", got)
	}

	// Unknown spends are ignored.
	idx.ApplyMempoolTx([]types.Outpoint{op(9, 9)}, nil)
	if s := idx.Stats(); s.MempoolSpent != 1 {
		t.Errorf("MempoolSpent = %d, want 1", s.MempoolSpent)
	}
}

func TestMempool_Confirmation(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 100, alice)}, false)
	idx.ApplyMempoolTx([]types.Outpoint{op(1, 0)}, []tx.Output{out(2, 0, 90, bob)})

	// The same tx confirms.
	idx.ApplyBlock([]types.Outpoint{op(1, 0)}, []tx.Output{out(2, 0, 90, bob)}, false)
	s := idx.Stats()
	if s.Mempool != 0 || s.MempoolSpent != 0 {
		t.Fatalf("stats after confirmation = %+v", s)
	}
	if got := idx.Balance(bob); got != 90 {
		t.Errorf("bob balance = %d, want 90", got)
	}
}

func TestClearMempool(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 100, alice)}, false)
	idx.ApplyMempoolTx([]types.Outpoint{op(1, 0)}, []tx.Output{out(2, 0, 90, bob)})
	idx.ClearMempool()
	if idx.Balance(alice) != 100 || idx.Balance(bob) != 0 {
		t.Fatal("ClearMempool should restore the confirmed view")
	}
}

func TestByScript_OrderAndLimit(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{
		out(3, 0, 1, alice),
		out(1, 1, 2, alice),
		out(1, 0, 3, alice),
		out(2, 0, 4, bob),
	}, false)
	idx.ApplyMempoolTx(nil, []tx.Output{out(0, 5, 5, alice)})

	got := idx.ByScript(alice, 0)
	want := []types.Outpoint{op(1, 0), op(1, 1), op(3, 0), op(0, 5)}
	if len(got) != len(want) {
		t.Fatalf("ByScript = %d outputs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Outpoint() != want[i] {
			t.Errorf("output %d = %s, want %s", i, got[i].Outpoint(), want[i])
		}
	}

	if got := idx.ByScript(alice, 2); len(got) != 2 {
		t.Errorf("ByScript limit 2 = %d outputs", len(got))
	}
	if got := idx.ByScript(types.Script{0x51}, 0); len(got) != 0 {
		t.Errorf("ByScript unknown = %d outputs", len(got))
	}
}
