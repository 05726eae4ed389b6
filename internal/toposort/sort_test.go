package toposort

import (
	"testing"

	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

func id(n byte) types.Hash { return types.Hash{n} }

func mkTx(n byte, spends ...byte) *tx.Transaction {
	t := &tx.Transaction{TxID: id(n)}
	for _, s := range spends {
		t.Inputs = append(t.Inputs, types.Outpoint{TxID: id(s)})
	}
	return t
}

func ids(txs []*tx.Transaction) []byte {
	out := make([]byte, len(txs))
	for i, t := range txs {
		out[i] = t.TxID[0]
	}
	return out
}

func permutations(in []*tx.Transaction) [][]*tx.Transaction {
	if len(in) <= 1 {
		return [][]*tx.Transaction{append([]*tx.Transaction(nil), in...)}
	}
	var out [][]*tx.Transaction
	for i := range in {
		rest := make([]*tx.Transaction, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]*tx.Transaction{in[i]}, p...))
		}
	}
	return out
}

func TestSort_LinearChainAllPermutations(t *testing.T) {
	// 1 <- 2 <- 3 <- 4, with 1 spending something outside the batch.
	chain := []*tx.Transaction{mkTx(1, 0xee), mkTx(2, 1), mkTx(3, 2), mkTx(4, 3)}
	want := []byte{1, 2, 3, 4}

	perms := permutations(chain)
	if len(perms) != 24 {
		t.Fatalf("permutations = %d, want 24", len(perms))
	}
	for _, p := range perms {
		got := ids(Sort(p))
		if string(got) != string(want) {
			t.Errorf("Sort(%v) = %v, want %v", ids(p), got, want)
		}
	}
}

func TestSort_UnrelatedKeepInputOrder(t *testing.T) {
	in := []*tx.Transaction{mkTx(5), mkTx(3), mkTx(9), mkTx(1)}
	got := ids(Sort(in))
	if string(got) != string([]byte{5, 3, 9, 1}) {
		t.Errorf("Sort = %v, want input order", got)
	}
}

func TestSort_Diamond(t *testing.T) {
	// 4 spends 2 and 3, both spend 1.
	in := []*tx.Transaction{mkTx(4, 2, 3), mkTx(3, 1), mkTx(2, 1), mkTx(1)}
	out := Sort(in)
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	pos := make(map[byte]int)
	for i, x := range out {
		pos[x.TxID[0]] = i
	}
	for _, edge := range [][2]byte{{1, 2}, {1, 3}, {2, 4}, {3, 4}} {
		if pos[edge[0]] > pos[edge[1]] {
			t.Errorf("%d placed after %d: %v", edge[0], edge[1], ids(out))
		}
	}
}

func TestSort_CycleTerminates(t *testing.T) {
	in := []*tx.Transaction{mkTx(1, 2), mkTx(2, 1), mkTx(3, 3)}
	out := Sort(in)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
}

func TestSort_Duplicates(t *testing.T) {
	a := mkTx(1)
	out := Sort([]*tx.Transaction{a, mkTx(2, 1), a})
	if got := ids(out); string(got) != string([]byte{1, 2}) {
		t.Errorf("Sort = %v, want [1 2]", got)
	}
}

func TestSort_DeepChain(t *testing.T) {
	const depth = 200_000
	txs := make([]*tx.Transaction, depth)
	for i := range txs {
		var h types.Hash
		h[0], h[1], h[2] = byte(i), byte(i>>8), byte(i>>16)
		txs[i] = &tx.Transaction{TxID: h}
		if i > 0 {
			txs[i].Inputs = []types.Outpoint{{TxID: txs[i-1].TxID}}
		}
	}
	// Reverse so the walk has to descend the full depth from the first root.
	rev := make([]*tx.Transaction, depth)
	for i := range txs {
		rev[depth-1-i] = txs[i]
	}

	out := Sort(rev)
	if len(out) != depth {
		t.Fatalf("len = %d, want %d", len(out), depth)
	}
	for i := range out {
		if out[i] != txs[i] {
			t.Fatalf("position %d out of order", i)
		}
	}
}

func TestSort_Empty(t *testing.T) {
	if out := Sort(nil); len(out) != 0 {
		t.Errorf("Sort(nil) = %v", out)
	}
}
