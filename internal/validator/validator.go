// Package validator decides SLP token validity for transactions by walking
// their token ancestry.
package validator

import (
	"errors"
	"math/bits"

	"github.com/Klingon-tech/slpgraph/internal/log"
	"github.com/Klingon-tech/slpgraph/pkg/slp"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// ErrUnknownTx is returned when validating a txid that was never added.
var ErrUnknownTx = errors.New("unknown transaction")

// Validator keeps every transaction it has been given and the set of txids
// proven valid. It is not safe for concurrent use; the chain coordinator
// serializes access.
type Validator struct {
	txs   map[types.Hash]*tx.Transaction
	valid map[types.Hash]struct{}
}

// New creates an empty validator.
func New() *Validator {
	return &Validator{
		txs:   make(map[types.Hash]*tx.Transaction),
		valid: make(map[types.Hash]struct{}),
	}
}

// Add registers a transaction. Re-adding a txid is a no-op.
func (v *Validator) Add(t *tx.Transaction) {
	if _, ok := v.txs[t.TxID]; ok {
		return
	}
	v.txs[t.TxID] = t
}

// Has reports whether txid has been added.
func (v *Validator) Has(txid types.Hash) bool {
	_, ok := v.txs[txid]
	return ok
}

// Get returns a registered transaction.
func (v *Validator) Get(txid types.Hash) (*tx.Transaction, bool) {
	t, ok := v.txs[txid]
	return t, ok
}

// IsValid reports whether txid has already been proven valid.
func (v *Validator) IsValid(txid types.Hash) bool {
	_, ok := v.valid[txid]
	return ok
}

// Len returns the number of registered transactions.
func (v *Validator) Len() int { return len(v.txs) }

// ValidCount returns the number of transactions proven valid.
func (v *Validator) ValidCount() int { return len(v.valid) }

// ValidateTx adds t and validates it.
func (v *Validator) ValidateTx(t *tx.Transaction) bool {
	v.Add(t)
	ok, _ := v.Validate(t.TxID)
	return ok
}

type frame struct {
	t    *tx.Transaction
	deps []types.Hash
	next int
}

// Validate decides whether txid is a valid token transaction. Every token
// source it depends on is evaluated first, deepest ancestor first, without
// recursion. A dependency that is still being evaluated (a cycle) counts as
// not valid. Invalid outcomes are remembered only for this call.
func (v *Validator) Validate(txid types.Hash) (bool, error) {
	root, ok := v.txs[txid]
	if !ok {
		return false, ErrUnknownTx
	}
	if v.IsValid(txid) {
		return true, nil
	}

	invalid := make(map[types.Hash]struct{})
	onStack := map[types.Hash]struct{}{txid: {}}
	stack := []frame{{t: root, deps: v.dependencies(root)}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		pushed := false
		for top.next < len(top.deps) {
			dep := top.deps[top.next]
			top.next++
			if v.IsValid(dep) {
				continue
			}
			if _, bad := invalid[dep]; bad {
				continue
			}
			if _, busy := onStack[dep]; busy {
				continue
			}
			src := v.txs[dep]
			onStack[dep] = struct{}{}
			stack = append(stack, frame{t: src, deps: v.dependencies(src)})
			pushed = true
			break
		}
		if pushed {
			continue
		}

		cur := top.t
		stack = stack[:len(stack)-1]
		delete(onStack, cur.TxID)
		if v.evaluate(cur) {
			v.valid[cur.TxID] = struct{}{}
		} else {
			invalid[cur.TxID] = struct{}{}
		}
	}
	return v.IsValid(txid), nil
}

// dependencies lists the known transactions whose validity t's outcome can
// depend on.
func (v *Validator) dependencies(t *tx.Transaction) []types.Hash {
	var deps []types.Hash
	seen := make(map[types.Hash]struct{})
	add := func(h types.Hash) {
		if _, ok := seen[h]; ok {
			return
		}
		seen[h] = struct{}{}
		deps = append(deps, h)
	}

	switch op := t.Op.(type) {
	case *slp.Send, *slp.Mint:
		id, _ := slp.TokenIDOf(op)
		for _, in := range t.Inputs {
			if v.sameToken(in.TxID, id, op.TokenType()) {
				add(in.TxID)
			}
		}
	case *slp.Genesis:
		if op.Type == types.TokenTypeNFT1Child && len(t.Inputs) > 0 {
			if src, ok := v.txs[t.Inputs[0].TxID]; ok && src.TokenType() == types.TokenTypeNFT1Group {
				add(src.TxID)
			}
		}
	}
	return deps
}

func (v *Validator) sameToken(txid types.Hash, id types.TokenID, typ types.TokenType) bool {
	src, ok := v.txs[txid]
	if !ok || !src.IsToken() {
		return false
	}
	srcID, _ := src.TokenID()
	return srcID == id && src.TokenType() == typ
}

// evaluate applies the per-operation rules assuming every dependency has
// already been decided.
func (v *Validator) evaluate(t *tx.Transaction) bool {
	switch op := t.Op.(type) {
	case *slp.Genesis:
		return v.evaluateGenesis(t, op)
	case *slp.Mint:
		return v.evaluateMint(t, op)
	case *slp.Send:
		return v.evaluateSend(t, op)
	default:
		return false
	}
}

func (v *Validator) evaluateGenesis(t *tx.Transaction, op *slp.Genesis) bool {
	if op.Type != types.TokenTypeNFT1Child {
		return true
	}
	if len(t.Inputs) == 0 {
		return false
	}
	in := t.Inputs[0]
	src, ok := v.txs[in.TxID]
	if !ok || !v.IsValid(in.TxID) || src.TokenType() != types.TokenTypeNFT1Group {
		return false
	}
	return src.OutputTokenAmount(in.Index) >= 1
}

func (v *Validator) evaluateMint(t *tx.Transaction, op *slp.Mint) bool {
	var candidate types.Hash
	found := 0
	for _, in := range t.Inputs {
		if !v.IsValid(in.TxID) || !v.sameToken(in.TxID, op.TokenID, op.Type) {
			continue
		}
		baton, ok := v.txs[in.TxID].MintBatonOutpoint()
		if !ok || baton != in {
			continue
		}
		if found > 0 && candidate == in.TxID {
			continue
		}
		candidate = in.TxID
		found++
	}
	if found > 1 {
		log.Chain.Warn().
			Str("txid", t.TxID.String()).
			Str("token", op.TokenID.String()).
			Int("candidates", found).
			Msg("Mint spends more than one baton, rejecting")
		return false
	}
	return found == 1
}

func (v *Validator) evaluateSend(t *tx.Transaction, op *slp.Send) bool {
	var outHi, outLo uint64
	for _, amt := range op.Amounts {
		outHi, outLo = add128(outHi, outLo, amt)
	}

	var inHi, inLo uint64
	seen := make(map[types.Outpoint]struct{}, len(t.Inputs))
	for _, in := range t.Inputs {
		if _, dup := seen[in]; dup {
			continue
		}
		seen[in] = struct{}{}
		if !v.IsValid(in.TxID) || !v.sameToken(in.TxID, op.TokenID, op.Type) {
			continue
		}
		inHi, inLo = add128(inHi, inLo, v.txs[in.TxID].OutputTokenAmount(in.Index))
	}

	return outHi < inHi || (outHi == inHi && outLo <= inLo)
}

func add128(hi, lo, x uint64) (uint64, uint64) {
	lo, carry := bits.Add64(lo, x, 0)
	return hi + carry, lo
}
