// Package bch coordinates block and mempool ingestion across the token
// validator, token ledger, provenance graph and UTXO index.
package bch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/slpgraph/internal/log"
	"github.com/Klingon-tech/slpgraph/internal/slpdb"
	"github.com/Klingon-tech/slpgraph/internal/toposort"
	"github.com/Klingon-tech/slpgraph/internal/txgraph"
	"github.com/Klingon-tech/slpgraph/internal/utxodb"
	"github.com/Klingon-tech/slpgraph/internal/validator"
	"github.com/Klingon-tech/slpgraph/pkg/block"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// ErrHeightChanged is returned by ProcessBlock when another block was applied
// while the block was being hydrated.
var ErrHeightChanged = errors.New("chain height changed during hydration")

// Config controls what the chain indexes.
type Config struct {
	// TokenOnly restricts the UTXO index and ledger spends to token
	// transactions.
	TokenOnly bool
	// VerifyMerkle checks block merkle roots during hydration.
	VerifyMerkle bool
}

// DefaultConfig returns the default chain configuration.
func DefaultConfig() Config {
	return Config{TokenOnly: true}
}

// Info summarizes the chain state.
type Info struct {
	Height       uint32       `json:"height"`
	TipHash      types.Hash   `json:"tipHash"`
	Tokens       int          `json:"tokens"`
	GraphNodes   int          `json:"graphNodes"`
	KnownTxs     int          `json:"knownTxs"`
	ValidTxs     int          `json:"validTxs"`
	TokenUtxos   int          `json:"tokenUtxos"`
	Utxos        utxodb.Stats `json:"utxos"`
	TokenOnly    bool         `json:"tokenOnly"`
	RollbackLeft int          `json:"rollbackLeft"`
}

// Chain owns every index under one lock. Queries take the shared lock and
// ingestion the exclusive lock. Callers supply blocks in chain order.
type Chain struct {
	mu     sync.RWMutex
	cfg    Config
	height uint32
	// recent holds the hashes of the newest blocks, tip last, so a rollback
	// can restore the previous tip.
	recent []types.Hash
	// undo holds the ledger changes of the blocks the UTXO index can roll
	// back, newest last.
	undo []*slpdb.Undo

	validator *validator.Validator
	ledger    *slpdb.Ledger
	graph     *txgraph.Graph
	utxos     *utxodb.Index
}

// New creates an empty chain whose tip is startHeight.
func New(cfg Config, startHeight uint32) *Chain {
	return &Chain{
		cfg:       cfg,
		height:    startHeight,
		validator: validator.New(),
		ledger:    slpdb.New(),
		graph:     txgraph.New(),
		utxos:     utxodb.New(),
	}
}

// Config returns the chain configuration.
func (c *Chain) Config() Config { return c.cfg }

// ProcessBlock hydrates a serialized block at the next height and applies it.
// Hydration runs outside the lock; if the height moved meanwhile the block is
// not applied and ErrHeightChanged is returned. A block that fails to hydrate
// leaves the chain untouched.
func (c *Chain) ProcessBlock(raw []byte, saveRollback bool) error {
	height := c.Height() + 1
	blk, err := block.Hydrate(raw, block.Options{
		Height:       height,
		TokenOnly:    c.cfg.TokenOnly,
		VerifyMerkle: c.cfg.VerifyMerkle,
	})
	if err != nil {
		return fmt.Errorf("hydrate block: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.height+1 != height {
		return fmt.Errorf("hydrated at %d, tip now %d: %w", height, c.height, ErrHeightChanged)
	}
	c.applyBlock(blk, saveRollback)
	return nil
}

// ApplyBlock applies a hydrated block and advances the height by one.
func (c *Chain) ApplyBlock(blk *block.Block, saveRollback bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyBlock(blk, saveRollback)
}

// applyBlock does the work of ApplyBlock. The caller holds the write lock.
func (c *Chain) applyBlock(blk *block.Block, saveRollback bool) {
	if saveRollback {
		c.ledger.Begin()
	}

	var tokenTxs []*tx.Transaction
	for _, t := range blk.Txs {
		if t.IsToken() {
			tokenTxs = append(tokenTxs, t)
		}
	}
	valid := 0
	for _, t := range toposort.Sort(tokenTxs) {
		if c.applyTokenTx(t) {
			valid++
		}
	}

	var spent []types.Outpoint
	var created []tx.Output
	for _, t := range blk.Txs {
		if c.cfg.TokenOnly && !t.IsToken() {
			continue
		}
		spent = append(spent, t.Inputs...)
		created = append(created, t.Outputs...)
	}
	c.utxos.ApplyBlock(spent, created, saveRollback)
	c.ledger.Spend(spent...)
	if saveRollback {
		c.undo = append(c.undo, c.ledger.Commit())
		if len(c.undo) > utxodb.RollbackDepth {
			c.undo = c.undo[len(c.undo)-utxodb.RollbackDepth:]
		}
	}

	c.height++
	c.recent = append(c.recent, blk.Header.Hash())
	if len(c.recent) > utxodb.RollbackDepth+1 {
		c.recent = c.recent[len(c.recent)-utxodb.RollbackDepth-1:]
	}

	log.Chain.Debug().
		Uint32("height", c.height).
		Int("tokenTxs", len(tokenTxs)).
		Int("valid", valid).
		Msg("Block applied")
}

// applyTokenTx registers t and, when valid, records it in the ledger and
// graph. The caller holds the write lock.
func (c *Chain) applyTokenTx(t *tx.Transaction) bool {
	c.validator.Add(t)
	ok, err := c.validator.Validate(t.TxID)
	if err != nil || !ok {
		log.Chain.Debug().
			Str("txid", t.TxID.String()).
			Str("op", t.Op.Kind().String()).
			Msg("Token transaction not valid")
		return false
	}
	c.ledger.Apply(t)
	if id, ok := t.TokenID(); ok {
		c.graph.Insert(id, []txgraph.Entry{txgraph.EntryFromTx(t)})
	}
	return true
}

// ProcessMempoolTx hydrates and applies an unconfirmed transaction. The
// height does not change and the ledger keeps outputs it spends until they
// confirm as spent.
func (c *Chain) ProcessMempoolTx(raw []byte) error {
	t, n, err := tx.Hydrate(raw, 0)
	if err != nil {
		return fmt.Errorf("hydrate tx: %w", err)
	}
	if n != len(raw) {
		return fmt.Errorf("hydrate tx: %d trailing bytes: %w", len(raw)-n, tx.ErrMalformed)
	}
	c.ApplyMempoolTx(t)
	return nil
}

// ApplyMempoolTx applies a hydrated unconfirmed transaction.
func (c *Chain) ApplyMempoolTx(t *tx.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	isToken := t.IsToken()
	if isToken {
		c.applyTokenTx(t)
	}
	if isToken || !c.cfg.TokenOnly {
		c.utxos.ApplyMempoolTx(t.Inputs, t.Outputs)
	}
}

// Rollback undoes the newest block recorded with saveRollback. The UTXO
// index, token ledger and height revert; the validator and graph keep what
// they learned. It reports false when nothing is left to undo.
func (c *Chain) Rollback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.utxos.Rollback() {
		return false
	}
	if n := len(c.undo); n > 0 {
		c.ledger.Revert(c.undo[n-1])
		c.undo = c.undo[:n-1]
	}
	c.utxos.ClearMempool()
	c.height--
	if len(c.recent) > 0 {
		c.recent = c.recent[:len(c.recent)-1]
	}
	log.Chain.Info().Uint32("height", c.height).Msg("Rolled back one block")
	return true
}

// Height returns the height of the last applied block.
func (c *Chain) Height() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// TipHash returns the hash of the last applied block, or the zero hash when
// it is not known.
func (c *Chain) TipHash() types.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tipHash()
}

func (c *Chain) tipHash() types.Hash {
	if len(c.recent) == 0 {
		return types.Hash{}
	}
	return c.recent[len(c.recent)-1]
}

// GraphSearch returns the raw transactions in the token provenance of txid.
func (c *Chain) GraphSearch(txid types.Hash) ([][]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.graph.Search(txid)
}

// UtxosByOutpoints looks up outputs; missing entries are nil.
func (c *Chain) UtxosByOutpoints(ops []types.Outpoint) []*tx.Output {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.utxos.ByOutpoints(ops)
}

// UtxosByScript returns at most limit spendable outputs locked by script.
func (c *Chain) UtxosByScript(script types.Script, limit int) []tx.Output {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.utxos.ByScript(script, limit)
}

// Balance returns the spendable value locked by script.
func (c *Chain) Balance(script types.Script) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.utxos.Balance(script)
}

// Validate reports whether txid is a valid token transaction. Proven results
// are served under the shared lock; anything else needs the exclusive lock
// because validation memoizes.
func (c *Chain) Validate(txid types.Hash) (bool, error) {
	c.mu.RLock()
	if c.validator.IsValid(txid) {
		c.mu.RUnlock()
		return true, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.validator.Validate(txid)
}

// Token returns the metadata of a token.
func (c *Chain) Token(id types.TokenID) (slpdb.Metadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.ledger.Token(id)
	if !ok {
		return slpdb.Metadata{}, false
	}
	return tok.Metadata(), true
}

// TokenUtxos returns the unspent outputs of a token ordered by outpoint.
func (c *Chain) TokenUtxos(id types.TokenID) ([]slpdb.TokenUtxo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tok, ok := c.ledger.Token(id)
	if !ok {
		return nil, false
	}
	return tok.SortedUtxos(), true
}

// Info returns a summary of the chain state.
func (c *Chain) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Info{
		Height:       c.height,
		TipHash:      c.tipHash(),
		Tokens:       c.ledger.Len(),
		GraphNodes:   c.graph.Len(),
		KnownTxs:     c.validator.Len(),
		ValidTxs:     c.validator.ValidCount(),
		TokenUtxos:   c.ledger.UtxoCount(),
		Utxos:        c.utxos.Stats(),
		TokenOnly:    c.cfg.TokenOnly,
		RollbackLeft: c.utxos.RollbackAvailable(),
	}
}
