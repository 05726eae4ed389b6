// Package toposort orders a batch of transactions so that every transaction
// follows the in-batch transactions it spends from.
package toposort

import (
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

type frame struct {
	tx   *tx.Transaction
	next int // next input to examine
}

// Sort returns txs in dependency order using a post-order depth-first walk.
// Unrelated transactions keep their input order. A transaction is marked
// visited on entry, so cycles in corrupt input terminate. Duplicate txids
// collapse to their first occurrence.
func Sort(txs []*tx.Transaction) []*tx.Transaction {
	byID := make(map[types.Hash]*tx.Transaction, len(txs))
	for _, t := range txs {
		if _, ok := byID[t.TxID]; !ok {
			byID[t.TxID] = t
		}
	}

	visited := make(map[types.Hash]struct{}, len(byID))
	out := make([]*tx.Transaction, 0, len(byID))
	var stack []frame

	for _, root := range txs {
		if _, ok := visited[root.TxID]; ok {
			continue
		}
		visited[root.TxID] = struct{}{}
		stack = append(stack[:0], frame{tx: byID[root.TxID]})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			descended := false
			for top.next < len(top.tx.Inputs) {
				src := top.tx.Inputs[top.next].TxID
				top.next++
				dep, inBatch := byID[src]
				if !inBatch {
					continue
				}
				if _, seen := visited[src]; seen {
					continue
				}
				visited[src] = struct{}{}
				stack = append(stack, frame{tx: dep})
				descended = true
				break
			}
			if descended {
				continue
			}
			out = append(out, top.tx)
			stack = stack[:len(stack)-1]
		}
	}
	return out
}
