// Package utxodb indexes unspent outputs by outpoint and locking script, with
// a mempool overlay and a bounded rollback history for confirmed blocks.
package utxodb

import (
	"sort"

	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// RollbackDepth is the number of blocks whose changes can be undone.
const RollbackDepth = 10

type scriptIndex map[string]map[types.Outpoint]struct{}

func (s scriptIndex) add(script types.Script, op types.Outpoint) {
	k := script.Key()
	bucket, ok := s[k]
	if !ok {
		bucket = make(map[types.Outpoint]struct{})
		s[k] = bucket
	}
	bucket[op] = struct{}{}
}

func (s scriptIndex) remove(script types.Script, op types.Outpoint) {
	k := script.Key()
	bucket, ok := s[k]
	if !ok {
		return
	}
	delete(bucket, op)
	if len(bucket) == 0 {
		delete(s, k)
	}
}

// record is the undo information of one block.
type record struct {
	removed []tx.Output
	added   []types.Outpoint
}

// Index is the UTXO index. An outpoint is never in both the confirmed set
// and the mempool overlay, and the mempool-spent set only holds confirmed
// outpoints. Index is not safe for concurrent use; the chain coordinator
// serializes access.
type Index struct {
	confirmed       map[types.Outpoint]tx.Output
	confirmedScript scriptIndex
	mempool         map[types.Outpoint]tx.Output
	mempoolScript   scriptIndex
	mempoolSpent    map[types.Outpoint]struct{}
	history         []record
}

// Stats summarizes the index contents.
type Stats struct {
	Confirmed    int `json:"confirmed"`
	Mempool      int `json:"mempool"`
	MempoolSpent int `json:"mempoolSpent"`
	Scripts      int `json:"scripts"`
	Rollback     int `json:"rollback"`
}

// New creates an empty index.
func New() *Index {
	idx := &Index{}
	idx.reset()
	return idx
}

func (idx *Index) reset() {
	idx.confirmed = make(map[types.Outpoint]tx.Output)
	idx.confirmedScript = make(scriptIndex)
	idx.mempool = make(map[types.Outpoint]tx.Output)
	idx.mempoolScript = make(scriptIndex)
	idx.mempoolSpent = make(map[types.Outpoint]struct{})
	idx.history = nil
}

func (idx *Index) addConfirmed(out tx.Output) {
	op := out.Outpoint()
	idx.confirmed[op] = out
	idx.confirmedScript.add(out.Script, op)
}

func (idx *Index) removeConfirmed(op types.Outpoint) (tx.Output, bool) {
	out, ok := idx.confirmed[op]
	if !ok {
		return tx.Output{}, false
	}
	delete(idx.confirmed, op)
	idx.confirmedScript.remove(out.Script, op)
	return out, true
}

func (idx *Index) removeMempool(op types.Outpoint) bool {
	out, ok := idx.mempool[op]
	if !ok {
		return false
	}
	delete(idx.mempool, op)
	idx.mempoolScript.remove(out.Script, op)
	return true
}

// ApplyBlock adds the spendable outputs created by a block and then removes
// the outpoints it spends. Outputs move out of the mempool overlay when they
// confirm. With saveRollback the changes can later be undone by Rollback.
func (idx *Index) ApplyBlock(spent []types.Outpoint, created []tx.Output, saveRollback bool) {
	var rec record
	for _, out := range created {
		if out.Script.IsUnspendable() {
			continue
		}
		op := out.Outpoint()
		idx.removeMempool(op)
		delete(idx.mempoolSpent, op)
		idx.addConfirmed(out)
		if saveRollback {
			rec.added = append(rec.added, op)
		}
	}

	for _, op := range spent {
		if out, ok := idx.removeConfirmed(op); ok {
			if saveRollback {
				rec.removed = append(rec.removed, out)
			}
		} else {
			idx.removeMempool(op)
		}
		delete(idx.mempoolSpent, op)
	}

	if saveRollback {
		idx.history = append(idx.history, rec)
		if len(idx.history) > RollbackDepth {
			idx.history = idx.history[len(idx.history)-RollbackDepth:]
		}
	}
}

// ApplyMempoolTx records an unconfirmed transaction. Spending a mempool
// output removes it, spending a confirmed output marks it mempool-spent, and
// spending an unknown outpoint is ignored.
func (idx *Index) ApplyMempoolTx(spent []types.Outpoint, created []tx.Output) {
	for _, op := range spent {
		if idx.removeMempool(op) {
			continue
		}
		if _, ok := idx.confirmed[op]; ok {
			idx.mempoolSpent[op] = struct{}{}
		}
	}
	for _, out := range created {
		if out.Script.IsUnspendable() {
			continue
		}
		op := out.Outpoint()
		if _, ok := idx.confirmed[op]; ok {
			continue
		}
		idx.mempool[op] = out
		idx.mempoolScript.add(out.Script, op)
	}
}

// Rollback undoes the newest recorded block. It reports false and changes
// nothing when no history is left.
func (idx *Index) Rollback() bool {
	if len(idx.history) == 0 {
		return false
	}
	rec := idx.history[len(idx.history)-1]
	idx.history = idx.history[:len(idx.history)-1]

	for _, out := range rec.removed {
		idx.addConfirmed(out)
	}
	for _, op := range rec.added {
		idx.removeConfirmed(op)
		delete(idx.mempoolSpent, op)
	}
	return true
}

// RollbackAvailable returns the number of blocks Rollback can undo.
func (idx *Index) RollbackAvailable() int { return len(idx.history) }

// ClearMempool drops the mempool overlay and the mempool-spent marks.
func (idx *Index) ClearMempool() {
	idx.mempool = make(map[types.Outpoint]tx.Output)
	idx.mempoolScript = make(scriptIndex)
	idx.mempoolSpent = make(map[types.Outpoint]struct{})
}

// ByOutpoints looks up each outpoint, preferring the confirmed set unless the
// output is spent in the mempool. Missing outpoints yield nil.
func (idx *Index) ByOutpoints(ops []types.Outpoint) []*tx.Output {
	out := make([]*tx.Output, len(ops))
	for i, op := range ops {
		if o, ok := idx.confirmed[op]; ok {
			if _, spent := idx.mempoolSpent[op]; !spent {
				o := o
				out[i] = &o
			}
			continue
		}
		if o, ok := idx.mempool[op]; ok {
			out[i] = &o
		}
	}
	return out
}

// HasConfirmed reports whether op is in the confirmed set.
func (idx *Index) HasConfirmed(op types.Outpoint) bool {
	_, ok := idx.confirmed[op]
	return ok
}

func sortedBucket(bucket map[types.Outpoint]struct{}) []types.Outpoint {
	ops := make([]types.Outpoint, 0, len(bucket))
	for op := range bucket {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Less(ops[j]) })
	return ops
}

// ByScript returns the spendable outputs locked by script: confirmed outputs
// not spent in the mempool, then mempool outputs, each group ordered by
// outpoint. A limit of zero or less means no limit.
func (idx *Index) ByScript(script types.Script, limit int) []tx.Output {
	k := script.Key()
	var out []tx.Output
	full := func() bool { return limit > 0 && len(out) >= limit }

	for _, op := range sortedBucket(idx.confirmedScript[k]) {
		if full() {
			return out
		}
		if _, spent := idx.mempoolSpent[op]; spent {
			continue
		}
		out = append(out, idx.confirmed[op])
	}
	for _, op := range sortedBucket(idx.mempoolScript[k]) {
		if full() {
			return out
		}
		out = append(out, idx.mempool[op])
	}
	return out
}

// Balance returns the total value of the spendable outputs locked by script.
func (idx *Index) Balance(script types.Script) uint64 {
	k := script.Key()
	var total uint64
	for op := range idx.confirmedScript[k] {
		if _, spent := idx.mempoolSpent[op]; spent {
			continue
		}
		total += idx.confirmed[op].Value
	}
	for op := range idx.mempoolScript[k] {
		total += idx.mempool[op].Value
	}
	return total
}

// Stats returns the current counts.
func (idx *Index) Stats() Stats {
	scripts := len(idx.confirmedScript)
	for k := range idx.mempoolScript {
		if _, ok := idx.confirmedScript[k]; !ok {
			scripts++
		}
	}
	return Stats{
		Confirmed:    len(idx.confirmed),
		Mempool:      len(idx.mempool),
		MempoolSpent: len(idx.mempoolSpent),
		Scripts:      scripts,
		Rollback:     len(idx.history),
	}
}
