// Package txgraph keeps the provenance graph of token transactions: for every
// token, the transactions proven valid and the links to the in-token
// transactions they spend.
package txgraph

import (
	"errors"
	"sort"
	"sync"

	"github.com/Klingon-tech/slpgraph/internal/log"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

var (
	// ErrNotFound is returned when a txid is not in any token graph.
	ErrNotFound = errors.New("transaction not in graph")
	// ErrNotInGraph signals a txid indexed to a token whose graph lacks it.
	ErrNotInGraph = errors.New("transaction indexed but missing from token graph")
)

// Entry is a transaction as the graph receives it.
type Entry struct {
	TxID   types.Hash
	Raw    []byte
	Inputs []types.Hash
}

// EntryFromTx builds the graph entry of a hydrated transaction.
func EntryFromTx(t *tx.Transaction) Entry {
	return Entry{TxID: t.TxID, Raw: t.Raw, Inputs: t.InputTxIDs()}
}

type node struct {
	txid   types.Hash
	raw    []byte
	inputs []int
}

// tokenGraph is an append-only arena; handles are indexes into nodes.
type tokenGraph struct {
	nodes []node
	index map[types.Hash]int
}

// Graph holds one arena per token.
type Graph struct {
	mu     sync.RWMutex
	tokens map[types.TokenID]*tokenGraph
	owner  map[types.Hash]types.TokenID
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		tokens: make(map[types.TokenID]*tokenGraph),
		owner:  make(map[types.Hash]types.TokenID),
	}
}

// Insert adds entries to the graph of tokenID. Txids already present in any
// token graph are skipped. Inputs are linked only to nodes of the same token.
// It returns the number of nodes created.
func (g *Graph) Insert(tokenID types.TokenID, entries []Entry) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	tg, ok := g.tokens[tokenID]
	if !ok {
		tg = &tokenGraph{index: make(map[types.Hash]int)}
		g.tokens[tokenID] = tg
	}

	first := len(tg.nodes)
	pending := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, exists := g.owner[e.TxID]; exists {
			continue
		}
		g.owner[e.TxID] = tokenID
		tg.index[e.TxID] = len(tg.nodes)
		tg.nodes = append(tg.nodes, node{txid: e.TxID, raw: e.Raw})
		pending = append(pending, e)
	}

	for i, e := range pending {
		n := &tg.nodes[first+i]
		for _, in := range e.Inputs {
			h, ok := tg.index[in]
			if !ok {
				log.Graph.Debug().
					Str("txid", e.TxID.String()).
					Str("input", in.String()).
					Msg("Input outside token graph")
				continue
			}
			n.inputs = append(n.inputs, h)
		}
	}
	return len(pending)
}

// Search returns the raw bytes of txid and every transaction it transitively
// spends within its token graph, in depth-first discovery order.
func (g *Graph) Search(txid types.Hash) ([][]byte, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.owner[txid]
	if !ok {
		return nil, ErrNotFound
	}
	tg := g.tokens[id]
	start, ok := tg.index[txid]
	if !ok {
		log.Graph.Error().
			Str("txid", txid.String()).
			Str("token", id.String()).
			Msg("Transaction indexed but missing from token graph")
		return nil, ErrNotInGraph
	}

	seen := map[int]struct{}{start: {}}
	stack := []int{start}
	var out [][]byte
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := &tg.nodes[h]
		out = append(out, n.raw)
		for i := len(n.inputs) - 1; i >= 0; i-- {
			in := n.inputs[i]
			if _, ok := seen[in]; ok {
				continue
			}
			seen[in] = struct{}{}
			stack = append(stack, in)
		}
	}
	return out, nil
}

// Has reports whether txid is in any token graph.
func (g *Graph) Has(txid types.Hash) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.owner[txid]
	return ok
}

// TokenOf returns the token whose graph holds txid.
func (g *Graph) TokenOf(txid types.Hash) (types.TokenID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.owner[txid]
	return id, ok
}

// Tokens returns the token ids with a graph, in byte order.
func (g *Graph) Tokens() []types.TokenID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ids := make([]types.TokenID, 0, len(g.tokens))
	for id := range g.tokens {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return string(ids[i][:]) < string(ids[j][:])
	})
	return ids
}

// Entries returns the nodes of tokenID in insertion order. Inputs list only
// the linked in-token sources.
func (g *Graph) Entries(tokenID types.TokenID) []Entry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tg, ok := g.tokens[tokenID]
	if !ok {
		return nil
	}
	out := make([]Entry, len(tg.nodes))
	for i, n := range tg.nodes {
		e := Entry{TxID: n.txid, Raw: n.raw, Inputs: make([]types.Hash, len(n.inputs))}
		for j, h := range n.inputs {
			e.Inputs[j] = tg.nodes[h].txid
		}
		out[i] = e
	}
	return out
}

// Len returns the number of nodes across all tokens.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.owner)
}
