package syncer

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/slpgraph/internal/bch"
	"github.com/Klingon-tech/slpgraph/internal/blockcache"
	"github.com/Klingon-tech/slpgraph/internal/slptest"
	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/pkg/block"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
	"github.com/Klingon-tech/slpgraph/pkg/wire"
)

const base = 100

type fakeSource struct {
	mu       sync.Mutex
	blocks   [][]byte // blocks[i] is at height base+1+i
	failures int      // RawBlock calls left to fail
	calls    int
}

func (f *fakeSource) BlockCount() (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return base + uint32(len(f.blocks)), nil
}

func (f *fakeSource) RawBlock(height uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return nil, errors.New("node unavailable")
	}
	i := int(height) - base - 1
	if i < 0 || i >= len(f.blocks) {
		return nil, errors.New("no such block")
	}
	return f.blocks[i], nil
}

func (f *fakeSource) set(height uint32, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[int(height)-base-1] = raw
}

// mkBlock encodes a block on top of prev and returns it with its hash.
func mkBlock(prev types.Hash, nonce uint32, txs ...*tx.Transaction) ([]byte, types.Hash) {
	ids := make([]types.Hash, len(txs))
	for i, t := range txs {
		ids[i] = t.TxID
	}
	h := block.Header{Version: 1, PrevBlock: prev, MerkleRoot: block.ComputeMerkleRoot(ids), Nonce: nonce}
	return block.Encode(h, txs), h.Hash()
}

type fixture struct {
	src    *fakeSource
	hashes []types.Hash
	send   *tx.Transaction
}

// newFixture builds three blocks: a genesis, a send and an empty block.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := slptest.Genesis(t, types.TokenTypeFungible, slptest.Funding(1), 1000, 0)
	s := slptest.Send(t, types.TokenTypeFungible, slptest.ID(g), []types.Outpoint{slptest.Out(g, 1)}, 700, 300)

	f := &fixture{src: &fakeSource{}, send: s}
	var prev types.Hash
	for i, txs := range [][]*tx.Transaction{{g}, {s}, nil} {
		raw, h := mkBlock(prev, uint32(i+1), txs...)
		f.src.blocks = append(f.src.blocks, raw)
		f.hashes = append(f.hashes, h)
		prev = h
	}
	return f
}

func newChain() *bch.Chain {
	return bch.New(bch.DefaultConfig(), base)
}

func newCache(t *testing.T, db storage.DB) *blockcache.Cache {
	t.Helper()
	c, err := blockcache.New(db, 8)
	if err != nil {
		t.Fatalf("blockcache.New: %v", err)
	}
	return c
}

func TestCatchUp(t *testing.T) {
	f := newFixture(t)
	chain := newChain()
	cache := newCache(t, storage.NewMemory())
	s := New(chain, f.src, Options{Cache: cache})

	if err := s.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if chain.Height() != base+3 {
		t.Fatalf("Height = %d, want %d", chain.Height(), base+3)
	}
	if chain.TipHash() != f.hashes[2] {
		t.Errorf("TipHash = %s, want %s", chain.TipHash(), f.hashes[2])
	}
	if ok, err := chain.Validate(f.send.TxID); err != nil || !ok {
		t.Errorf("Validate(send) = %v, %v", ok, err)
	}
	for h := uint32(base + 1); h <= base+3; h++ {
		if ok, _ := cache.Has(h); !ok {
			t.Errorf("block %d not cached", h)
		}
	}

	// Already at the tip: nothing to do.
	calls := f.src.calls
	if err := s.CatchUp(context.Background()); err != nil {
		t.Fatalf("second CatchUp: %v", err)
	}
	if f.src.calls != calls {
		t.Errorf("RawBlock called %d more times at tip", f.src.calls-calls)
	}
}

func TestCatchUp_FromCache(t *testing.T) {
	f := newFixture(t)
	db := storage.NewMemory()
	if err := New(newChain(), f.src, Options{Cache: newCache(t, db)}).CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}

	f.src.calls = 0
	chain := newChain()
	s := New(chain, f.src, Options{Cache: newCache(t, db)})
	if err := s.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp from cache: %v", err)
	}
	if f.src.calls != 0 {
		t.Errorf("RawBlock called %d times, want 0", f.src.calls)
	}
	if chain.Height() != base+3 || chain.TipHash() != f.hashes[2] {
		t.Errorf("Height = %d tip = %s", chain.Height(), chain.TipHash())
	}
	if ok, _ := chain.Validate(f.send.TxID); !ok {
		t.Error("send not valid after replay from cache")
	}
}

func TestCatchUp_Reorg(t *testing.T) {
	f := newFixture(t)
	chain := newChain()
	cache := newCache(t, storage.NewMemory())
	s := New(chain, f.src, Options{Cache: cache})
	if err := s.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}

	// Replace the tip, then extend the new branch by one.
	alt, altHash := mkBlock(f.hashes[1], 99)
	f.src.set(base+3, alt)
	next, nextHash := mkBlock(altHash, 100)
	f.src.mu.Lock()
	f.src.blocks = append(f.src.blocks, next)
	f.src.mu.Unlock()

	if err := s.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp after reorg: %v", err)
	}
	if chain.Height() != base+4 {
		t.Errorf("Height = %d, want %d", chain.Height(), base+4)
	}
	if chain.TipHash() != nextHash {
		t.Errorf("TipHash = %s, want %s", chain.TipHash(), nextHash)
	}
	if ok, _ := chain.Validate(f.send.TxID); !ok {
		t.Error("send below the fork should stay valid")
	}
}

func TestCatchUp_ReorgTooDeep(t *testing.T) {
	f := newFixture(t)
	chain := newChain()
	for _, raw := range f.src.blocks {
		if err := chain.ProcessBlock(raw, false); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}
	}

	alt, _ := mkBlock(types.Hash{0xee}, 7)
	f.src.mu.Lock()
	f.src.blocks = append(f.src.blocks, alt)
	f.src.mu.Unlock()

	err := New(chain, f.src, Options{}).CatchUp(context.Background())
	if !errors.Is(err, ErrReorgTooDeep) {
		t.Fatalf("err = %v, want ErrReorgTooDeep", err)
	}
	if chain.Height() != base+3 {
		t.Errorf("Height = %d, want %d", chain.Height(), base+3)
	}
}

func TestCatchUp_RetriesNode(t *testing.T) {
	f := newFixture(t)
	f.src.failures = 2
	chain := newChain()
	s := New(chain, f.src, Options{RetryDelay: time.Millisecond})
	if err := s.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if chain.Height() != base+3 {
		t.Errorf("Height = %d", chain.Height())
	}
	if f.src.calls != 5 {
		t.Errorf("RawBlock calls = %d, want 5", f.src.calls)
	}
}

func TestCatchUp_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.src.failures = -1
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	chain := newChain()
	err := New(chain, f.src, Options{RetryDelay: time.Millisecond}).CatchUp(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if chain.Height() != base {
		t.Errorf("Height = %d, want %d", chain.Height(), base)
	}
}

func TestCatchUp_BadBlock(t *testing.T) {
	f := newFixture(t)
	f.src.set(base+2, []byte{0x01, 0x02})
	chain := newChain()
	err := New(chain, f.src, Options{}).CatchUp(context.Background())
	if !errors.Is(err, wire.ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if chain.Height() != base+1 {
		t.Errorf("Height = %d, want %d", chain.Height(), base+1)
	}
}

func TestHandleRawBlock(t *testing.T) {
	f := newFixture(t)
	chain := newChain()
	s := New(chain, f.src, Options{})

	// Fresh chain has no tip hash; the pushed block is deferred to catch-up.
	if err := s.HandleRawBlock(context.Background(), f.src.blocks[0]); err != nil {
		t.Fatalf("HandleRawBlock: %v", err)
	}
	if chain.Height() != base {
		t.Fatalf("Height = %d, want %d", chain.Height(), base)
	}
	if len(s.kick) != 1 {
		t.Error("catch-up not requested")
	}

	if err := chain.ProcessBlock(f.src.blocks[0], true); err != nil {
		t.Fatal(err)
	}
	if err := s.HandleRawBlock(context.Background(), f.src.blocks[1]); err != nil {
		t.Fatalf("HandleRawBlock: %v", err)
	}
	if chain.Height() != base+2 || chain.TipHash() != f.hashes[1] {
		t.Errorf("Height = %d tip = %s", chain.Height(), chain.TipHash())
	}

	if err := s.HandleRawBlock(context.Background(), []byte{0xff}); err == nil {
		t.Error("expected error for malformed block")
	}
}

func TestHandleRawTx(t *testing.T) {
	f := newFixture(t)
	chain := newChain()
	s := New(chain, f.src, Options{})
	if err := chain.ProcessBlock(f.src.blocks[0], true); err != nil {
		t.Fatal(err)
	}

	if err := s.HandleRawTx(context.Background(), f.send.Raw); err != nil {
		t.Fatalf("HandleRawTx: %v", err)
	}
	if ok, _ := chain.Validate(f.send.TxID); !ok {
		t.Error("mempool send not valid")
	}
	outs := chain.UtxosByOutpoints([]types.Outpoint{slptest.Out(f.send, 1)})
	if len(outs) != 1 || outs[0] == nil {
		t.Error("mempool output not indexed")
	}

	if err := s.HandleRawTx(context.Background(), append(append([]byte{}, f.send.Raw...), 0)); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func storedHeight(t *testing.T, db storage.DB) uint32 {
	t.Helper()
	v, err := db.Get([]byte("s/height"))
	if err != nil {
		t.Fatalf("snapshot height: %v", err)
	}
	return binary.BigEndian.Uint32(v)
}

func TestSnapshotInterval(t *testing.T) {
	f := newFixture(t)
	db := storage.NewMemory()
	s := New(newChain(), f.src, Options{DB: db, SnapshotInterval: 2})
	if err := s.CatchUp(context.Background()); err != nil {
		t.Fatalf("CatchUp: %v", err)
	}
	if got := storedHeight(t, db); got != base+2 {
		t.Errorf("snapshot height = %d, want %d", got, base+2)
	}

	restored := newChain()
	ok, err := restored.Restore(db)
	if err != nil || !ok {
		t.Fatalf("Restore = %v, %v", ok, err)
	}
	if ok, _ := restored.Validate(f.send.TxID); !ok {
		t.Error("send not valid after restore")
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	db := storage.NewMemory()
	chain := newChain()
	s := New(chain, f.src, Options{DB: db, PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for chain.Height() != base+3 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not catch up")
		}
		time.Sleep(time.Millisecond)
	}

	next, _ := mkBlock(f.hashes[2], 50)
	f.src.mu.Lock()
	f.src.blocks = append(f.src.blocks, next)
	f.src.mu.Unlock()
	s.Kick()
	for chain.Height() != base+4 {
		if time.Now().After(deadline) {
			t.Fatal("Run did not follow the new block")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := storedHeight(t, db); got != base+4 {
		t.Errorf("final snapshot height = %d, want %d", got, base+4)
	}
}
