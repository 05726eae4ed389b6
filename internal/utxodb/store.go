package utxodb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

var prefixUTXO = []byte("u/") // u/<txid><index> -> Output JSON

const utxoKeySize = 2 + types.HashSize + 4

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, utxoKeySize)
	copy(key, prefixUTXO)
	copy(key[len(prefixUTXO):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixUTXO)+types.HashSize:], op.Index)
	return key
}

// Save replaces the confirmed set stored in db with the current one. The
// mempool overlay and rollback history are not persisted.
func (idx *Index) Save(db storage.DB) error {
	b := storage.NewBatch(db)

	err := db.ForEach(prefixUTXO, func(key, _ []byte) error {
		if len(key) != utxoKeySize {
			return b.Delete(key)
		}
		var op types.Outpoint
		copy(op.TxID[:], key[len(prefixUTXO):])
		op.Index = binary.BigEndian.Uint32(key[len(prefixUTXO)+types.HashSize:])
		if _, ok := idx.confirmed[op]; !ok {
			return b.Delete(key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("utxo scan: %w", err)
	}

	for op, out := range idx.confirmed {
		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("utxo marshal: %w", err)
		}
		if err := b.Put(utxoKey(op), data); err != nil {
			return fmt.Errorf("utxo put: %w", err)
		}
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("utxo commit: %w", err)
	}
	return nil
}

// Load replaces the index contents with the confirmed set stored in db. It
// returns the number of outputs loaded.
func (idx *Index) Load(db storage.DB) (int, error) {
	idx.reset()
	err := db.ForEach(prefixUTXO, func(key, value []byte) error {
		if len(key) != utxoKeySize {
			return nil // Malformed key, skip.
		}
		var out tx.Output
		if err := json.Unmarshal(value, &out); err != nil {
			return fmt.Errorf("utxo unmarshal %x: %w", key, err)
		}
		idx.addConfirmed(out)
		return nil
	})
	if err != nil {
		idx.reset()
		return 0, err
	}
	return len(idx.confirmed), nil
}
