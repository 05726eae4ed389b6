package bch

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/slpgraph/internal/log"
	"github.com/Klingon-tech/slpgraph/internal/slpdb"
	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/internal/toposort"
	"github.com/Klingon-tech/slpgraph/internal/txgraph"
	"github.com/Klingon-tech/slpgraph/internal/utxodb"
	"github.com/Klingon-tech/slpgraph/internal/validator"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

// Snapshot state keys.
var (
	keyHeight = []byte("s/height")
	keyTip    = []byte("s/tip")
)

// Snapshot persists the height, provenance graph, confirmed UTXO set and
// token metadata to db. The height is written last and marks a complete
// snapshot.
func (c *Chain) Snapshot(db storage.DB) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.graph.SaveAll(db); err != nil {
		return fmt.Errorf("snapshot graph: %w", err)
	}
	if err := c.utxos.Save(db); err != nil {
		return fmt.Errorf("snapshot utxos: %w", err)
	}
	if err := slpdb.NewStore(db).SaveAll(c.ledger); err != nil {
		return fmt.Errorf("snapshot tokens: %w", err)
	}

	tip := c.tipHash()
	b := storage.NewBatch(db)
	if err := b.Put(keyTip, tip[:]); err != nil {
		return fmt.Errorf("snapshot tip: %w", err)
	}
	if err := b.Put(keyHeight, binary.BigEndian.AppendUint32(nil, c.height)); err != nil {
		return fmt.Errorf("snapshot height: %w", err)
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("snapshot commit: %w", err)
	}

	log.Chain.Info().
		Uint32("height", c.height).
		Int("graphNodes", c.graph.Len()).
		Int("utxos", c.utxos.Stats().Confirmed).
		Msg("Snapshot written")
	return nil
}

// Restore replaces the chain state with the snapshot in db. The validator
// and ledger are rebuilt by replaying the stored graph. It reports false
// without changing anything when db holds no snapshot.
func (c *Chain) Restore(db storage.DB) (bool, error) {
	hb, err := db.Get(keyHeight)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("restore height: %w", err)
	}
	if len(hb) != 4 {
		return false, fmt.Errorf("restore height: bad length %d", len(hb))
	}
	height := binary.BigEndian.Uint32(hb)

	var recent []types.Hash
	if tb, err := db.Get(keyTip); err == nil && len(tb) == types.HashSize {
		tip, _ := types.BytesToHash(tb)
		if !tip.IsZero() {
			recent = []types.Hash{tip}
		}
	}

	graph := txgraph.New()
	if _, err := graph.LoadAll(db); err != nil {
		return false, fmt.Errorf("restore graph: %w", err)
	}

	var txs []*tx.Transaction
	for _, id := range graph.Tokens() {
		for _, e := range graph.Entries(id) {
			t, _, err := tx.Hydrate(e.Raw, 0)
			if err != nil {
				return false, fmt.Errorf("restore tx %s: %w", e.TxID, err)
			}
			if t.TxID != e.TxID {
				return false, fmt.Errorf("restore tx %s: stored bytes hash to %s", e.TxID, t.TxID)
			}
			txs = append(txs, t)
		}
	}

	v := validator.New()
	ledger := slpdb.New()
	sorted := toposort.Sort(txs)
	for _, t := range sorted {
		v.Add(t)
	}
	for _, t := range sorted {
		if ok, _ := v.Validate(t.TxID); ok {
			ledger.Apply(t)
		}
	}

	utxos := utxodb.New()
	if _, err := utxos.Load(db); err != nil {
		return false, fmt.Errorf("restore utxos: %w", err)
	}
	ledger.Prune(utxos.HasConfirmed)

	if stored, err := slpdb.NewStore(db).List(); err == nil && len(stored) != ledger.Len() {
		log.Chain.Warn().
			Int("stored", len(stored)).
			Int("rebuilt", ledger.Len()).
			Msg("Token count differs from snapshot metadata")
	}

	c.mu.Lock()
	c.height = height
	c.recent = recent
	c.undo = nil
	c.validator = v
	c.ledger = ledger
	c.graph = graph
	c.utxos = utxos
	c.mu.Unlock()

	log.Chain.Info().
		Uint32("height", height).
		Int("graphNodes", graph.Len()).
		Int("tokens", ledger.Len()).
		Int("validTxs", v.ValidCount()).
		Msg("Snapshot restored")
	return true, nil
}
