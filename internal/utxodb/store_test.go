package utxodb

import (
	"testing"

	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

func TestSaveLoad(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 100, alice), out(1, 1, 200, bob)}, true)
	idx.ApplyMempoolTx(nil, []tx.Output{out(2, 0, 5, alice)})

	db := storage.NewMemory()
	if err := idx.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := New()
	n, err := loaded.Load(db)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("loaded %d outputs, want 2", n)
	}
	if got := loaded.Balance(alice); got != 100 {
		t.Errorf("alice balance = %d, want 100 (mempool not persisted)", got)
	}
	res := loaded.ByOutpoints([]types.Outpoint{op(1, 1)})
	if res[0] == nil || res[0].Value != 200 || string(res[0].Script) != string(bob) {
		t.Errorf("loaded output = %+v", res[0])
	}
	if loaded.RollbackAvailable() != 0 {
		t.Error("rollback history should not be persisted")
	}
}

func TestSave_RemovesStale(t *testing.T) {
	idx := New()
	idx.ApplyBlock(nil, []tx.Output{out(1, 0, 100, alice), out(1, 1, 200, bob)}, false)
	db := storage.NewMemory()
	idx.Save(db)

	idx.ApplyBlock([]types.Outpoint{op(1, 0)}, nil, false)
	if err := idx.Save(db); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if db.Len() != 1 {
		t.Fatalf("stored outputs = %d, want 1", db.Len())
	}
	if ok, _ := db.Has(utxoKey(op(1, 0))); ok {
		t.Error("spent output still stored")
	}
}

func TestLoad_Corrupt(t *testing.T) {
	db := storage.NewMemory()
	db.Put(utxoKey(op(1, 0)), []byte("{not json"))
	idx := New()
	if _, err := idx.Load(db); err == nil {
		t.Fatal("Load of corrupt value should fail")
	}
	if idx.Stats().Confirmed != 0 {
		t.Error("failed Load should leave the index empty")
	}
}
