package node

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/slpgraph/config"
	"github.com/Klingon-tech/slpgraph/internal/rpcclient"
	"github.com/Klingon-tech/slpgraph/internal/slptest"
	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/pkg/block"
	"github.com/Klingon-tech/slpgraph/pkg/tx"
	"github.com/Klingon-tech/slpgraph/pkg/types"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir")
	}
	tests := []struct {
		input, want string
	}{
		{"~/foo/bar", filepath.Join(home, "foo/bar")},
		{"~/.slpgraph/slpgraph.log", filepath.Join(home, ".slpgraph/slpgraph.log")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}
	for _, tt := range tests {
		got := expandHome(tt.input)
		if got != tt.want {
			t.Errorf("expandHome(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// fakeChain serves blocks 1..n over the node JSON-RPC calls the indexer
// makes. Block 1 holds a genesis, block 2 a send, block 3 nothing.
type fakeChain struct {
	mu     sync.Mutex
	blocks map[uint32][]byte
	hashes map[uint32]types.Hash
	byHash map[string][]byte
	tip    uint32

	genesis *tx.Transaction
	send    *tx.Transaction
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	g := slptest.Genesis(t, types.TokenTypeFungible, slptest.Funding(9), 100, 0)
	s := slptest.Send(t, types.TokenTypeFungible, slptest.ID(g), []types.Outpoint{slptest.Out(g, 1)}, 60, 40)

	fc := &fakeChain{
		blocks:  make(map[uint32][]byte),
		hashes:  make(map[uint32]types.Hash),
		byHash:  make(map[string][]byte),
		genesis: g,
		send:    s,
	}
	var prev types.Hash
	for i, txs := range [][]*tx.Transaction{{g}, {s}, nil} {
		h := block.Header{Version: 1, PrevBlock: prev, Nonce: uint32(i)}
		height := uint32(i + 1)
		raw := block.Encode(h, txs)
		fc.blocks[height] = raw
		fc.hashes[height] = h.Hash()
		fc.byHash[h.Hash().String()] = raw
		prev = h.Hash()
		fc.tip = height
	}
	return fc
}

func (fc *fakeChain) serve(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		fc.mu.Lock()
		defer fc.mu.Unlock()
		result := "null"
		switch req.Method {
		case "getblockcount":
			result = fmt.Sprint(fc.tip)
		case "getblockhash":
			var h uint32
			json.Unmarshal(req.Params[0], &h)
			result = `"` + fc.hashes[h].String() + `"`
		case "getblock":
			var hash string
			json.Unmarshal(req.Params[0], &hash)
			result = `"` + hex.EncodeToString(fc.byHash[hash]) + `"`
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"result":`+result+`,"error":null,"id":`+string(req.ID)+`}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, nodeURL, backend string) *config.Config {
	t.Helper()
	cfg := config.DefaultRegtest()
	cfg.DataDir = t.TempDir()
	cfg.Node.RPCHost = strings.TrimPrefix(nodeURL, "http://")
	cfg.Node.ZMQAddr = ""
	cfg.Node.PollInterval = 20 * time.Millisecond
	cfg.Index.SnapshotInterval = 0
	cfg.Storage.Backend = backend
	cfg.RPC.Addr = "127.0.0.1"
	cfg.RPC.Port = 0
	cfg.REST.Enabled = true
	cfg.REST.Addr = "127.0.0.1"
	cfg.REST.Port = 0
	cfg.Log.Level = "error"
	return cfg
}

func waitHeight(t *testing.T, n *Node, want uint32) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for n.Height() < want {
		if time.Now().After(deadline) {
			t.Fatalf("height = %d, want %d", n.Height(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNode_SyncAndServe(t *testing.T) {
	fc := newFakeChain(t)
	srv := fc.serve(t)

	n, err := New(testConfig(t, srv.URL, storage.BackendMemory))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer n.Stop()

	waitHeight(t, n, 3)

	client := rpcclient.New("http://" + n.RPCAddr() + "/")
	info, err := client.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Height != 3 || info.TipHash != fc.hashes[3] {
		t.Errorf("info = height %d tip %s", info.Height, info.TipHash)
	}

	valid, err := client.Validate(fc.send.TxID)
	if err != nil || !valid {
		t.Errorf("Validate(send) = %v, %v", valid, err)
	}

	resp, err := http.Get("http://" + n.RESTAddr() + "/validate/" + fc.send.TxID.String())
	if err != nil {
		t.Fatalf("rest get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rest status = %d", resp.StatusCode)
	}

	mresp, err := http.Get("http://" + n.RPCAddr() + "/metrics")
	if err != nil {
		t.Fatalf("metrics get: %v", err)
	}
	body, _ := io.ReadAll(mresp.Body)
	mresp.Body.Close()
	if !strings.Contains(string(body), "slpgraph_tokens 1") {
		t.Errorf("metrics missing token gauge")
	}
}

func TestNode_RestoreAfterRestart(t *testing.T) {
	fc := newFakeChain(t)
	srv := fc.serve(t)
	cfg := testConfig(t, srv.URL, storage.BackendBadger)

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitHeight(t, n, 3)
	n.Stop()

	// The final snapshot is restored without contacting the node.
	n2, err := New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer n2.Stop()
	if n2.Height() != 3 {
		t.Errorf("restored height = %d, want 3", n2.Height())
	}
	if n2.Chain().TipHash() != fc.hashes[3] {
		t.Errorf("restored tip = %s", n2.Chain().TipHash())
	}
	if _, ok := n2.Chain().Token(slptest.ID(fc.genesis)); !ok {
		t.Error("token missing after restore")
	}
}

func TestNode_Reindex(t *testing.T) {
	fc := newFakeChain(t)
	srv := fc.serve(t)
	cfg := testConfig(t, srv.URL, storage.BackendBadger)

	n, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitHeight(t, n, 3)
	n.Stop()

	cfg.Reindex = true
	cfg.Index.StartHeight = 2
	n2, err := New(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer n2.Stop()
	if n2.Height() != 1 {
		t.Errorf("height after reindex = %d, want 1", n2.Height())
	}
}

func TestNode_StopIdempotent(t *testing.T) {
	fc := newFakeChain(t)
	srv := fc.serve(t)

	n, err := New(testConfig(t, srv.URL, storage.BackendMemory))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.Stop()
	n.Stop()
	if err := n.Start(); err != ErrStopped {
		t.Errorf("Start after Stop = %v, want ErrStopped", err)
	}
}
