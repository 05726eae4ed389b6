package txgraph

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/pkg/types"
	"github.com/Klingon-tech/slpgraph/pkg/wire"
)

var prefixNode = []byte("g/") // g/<tokenID(32)><handle(4 BE)> -> node

const maxStoredInputs = 1 << 16

func nodeKey(id types.TokenID, handle int) []byte {
	key := make([]byte, 0, len(prefixNode)+types.HashSize+4)
	key = append(key, prefixNode...)
	key = append(key, id[:]...)
	return binary.BigEndian.AppendUint32(key, uint32(handle))
}

func encodeEntry(e Entry) []byte {
	buf := wire.AppendHash(nil, e.TxID)
	buf = wire.AppendVarBytes(buf, e.Raw)
	buf = wire.AppendVarInt(buf, uint64(len(e.Inputs)))
	for _, in := range e.Inputs {
		buf = wire.AppendHash(buf, in)
	}
	return buf
}

func decodeEntry(data []byte) (Entry, error) {
	r := wire.NewReader(data)
	var e Entry
	var err error
	if e.TxID, err = r.ReadHash(); err != nil {
		return e, fmt.Errorf("txid: %w", err)
	}
	raw, err := r.ReadVarBytes(uint64(len(data)))
	if err != nil {
		return e, fmt.Errorf("raw: %w", err)
	}
	e.Raw = append([]byte(nil), raw...)
	n, err := r.ReadVarInt()
	if err != nil {
		return e, fmt.Errorf("input count: %w", err)
	}
	if n > maxStoredInputs {
		return e, fmt.Errorf("input count %d: %w", n, wire.ErrMalformed)
	}
	e.Inputs = make([]types.Hash, 0, n)
	for i := uint64(0); i < n; i++ {
		h, err := r.ReadHash()
		if err != nil {
			return e, fmt.Errorf("input %d: %w", i, err)
		}
		e.Inputs = append(e.Inputs, h)
	}
	if r.Remaining() != 0 {
		return e, fmt.Errorf("%d trailing bytes: %w", r.Remaining(), wire.ErrMalformed)
	}
	return e, nil
}

// SaveToken writes every node of tokenID to db in one batch.
func (g *Graph) SaveToken(db storage.DB, tokenID types.TokenID) error {
	entries := g.Entries(tokenID)
	b := storage.NewBatch(db)
	for i, e := range entries {
		if err := b.Put(nodeKey(tokenID, i), encodeEntry(e)); err != nil {
			return fmt.Errorf("graph %s node %d: %w", tokenID, i, err)
		}
	}
	return b.Commit()
}

// SaveAll writes every token graph to db.
func (g *Graph) SaveAll(db storage.DB) error {
	for _, id := range g.Tokens() {
		if err := g.SaveToken(db, id); err != nil {
			return err
		}
	}
	return nil
}

// LoadAll inserts every stored node into g, token by token in stored order.
// It returns the number of nodes created.
func (g *Graph) LoadAll(db storage.DB) (int, error) {
	var (
		cur     types.TokenID
		batch   []Entry
		started bool
		total   int
	)
	flush := func() {
		if started && len(batch) > 0 {
			total += g.Insert(cur, batch)
		}
		batch = batch[:0]
	}

	err := db.ForEach(prefixNode, func(key, value []byte) error {
		if len(key) != len(prefixNode)+types.HashSize+4 {
			return fmt.Errorf("graph key %x: %w", key, wire.ErrMalformed)
		}
		var id types.TokenID
		copy(id[:], key[len(prefixNode):])
		if !started || id != cur {
			flush()
			cur, started = id, true
		}
		e, err := decodeEntry(value)
		if err != nil {
			return fmt.Errorf("graph %s: %w", id, err)
		}
		batch = append(batch, e)
		return nil
	})
	if err != nil {
		return total, err
	}
	flush()
	return total, nil
}
