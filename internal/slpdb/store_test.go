package slpdb

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/slpgraph/internal/slptest"
	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

func TestStore_PutGetHas(t *testing.T) {
	db := storage.NewMemory()
	store := NewStore(db)

	id := types.TokenID{0x01, 0x02, 0x03}
	meta := &Metadata{
		TokenID:  id,
		Type:     fungible,
		Ticker:   "TST",
		Name:     "Test Token",
		Decimals: 8,
	}

	has, err := store.Has(id)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if has {
		t.Fatal("expected Has=false before Put")
	}

	if err := store.Put(meta); err != nil {
		t.Fatalf("Put: %v", err)
	}

	has, err = store.Has(id)
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !has {
		t.Fatal("expected Has=true after Put")
	}

	got, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != meta.Name || got.Ticker != meta.Ticker || got.Decimals != meta.Decimals {
		t.Errorf("Get = %+v, want %+v", got, meta)
	}
	if got.TokenID != id {
		t.Errorf("TokenID = %s, want %s", got.TokenID, id)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(storage.NewMemory())
	_, err := store.Get(types.TokenID{0xff})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get missing error = %v, want ErrNotFound", err)
	}
}

func TestStore_SaveAllAndList(t *testing.T) {
	l := New()
	g1 := slptest.Genesis(t, fungible, slptest.Funding(1), 10, 2)
	g2 := slptest.Genesis(t, types.TokenTypeNFT1Group, slptest.Funding(2), 20, 0)
	l.Apply(g1)
	l.Apply(g2)

	store := NewStore(storage.NewMemory())
	if err := store.SaveAll(l); err != nil {
		t.Fatalf("SaveAll: %v", err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List len = %d, want 2", len(list))
	}
	byID := map[types.TokenID]Metadata{}
	for _, m := range list {
		byID[m.TokenID] = m
	}
	m1 := byID[slptest.ID(g1)]
	if m1.InitialQty != 10 || m1.MintBaton == nil || *m1.MintBaton != slptest.Out(g1, 2) {
		t.Errorf("g1 metadata = %+v", m1)
	}
	if byID[slptest.ID(g2)].Type != types.TokenTypeNFT1Group {
		t.Errorf("g2 type = %v", byID[slptest.ID(g2)].Type)
	}
}

func TestStore_ListEmpty(t *testing.T) {
	list, err := NewStore(storage.NewMemory()).List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("List = %v, want empty non-nil", list)
	}
}
