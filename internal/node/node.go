// Package node assembles the indexer services so they can be embedded in
// any binary.
package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Klingon-tech/slpgraph/config"
	"github.com/Klingon-tech/slpgraph/internal/bch"
	"github.com/Klingon-tech/slpgraph/internal/blockcache"
	"github.com/Klingon-tech/slpgraph/internal/feed"
	klog "github.com/Klingon-tech/slpgraph/internal/log"
	"github.com/Klingon-tech/slpgraph/internal/metrics"
	"github.com/Klingon-tech/slpgraph/internal/nodeclient"
	"github.com/Klingon-tech/slpgraph/internal/rpc"
	"github.com/Klingon-tech/slpgraph/internal/storage"
	"github.com/Klingon-tech/slpgraph/internal/syncer"
)

// Key prefixes separating the snapshot from the block cache in the shared
// database.
var (
	snapshotPrefix = []byte("snap/")
	cachePrefix    = []byte("cache/")
)

// ErrStopped is returned by Start on a node that was already stopped.
var ErrStopped = errors.New("node stopped")

// Node is a fully-initialized indexer.
type Node struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Core
	db      storage.DB
	snapDB  *storage.PrefixDB
	chain   *bch.Chain
	cache   *blockcache.Cache
	client  *nodeclient.Client
	syncer  *syncer.Syncer
	feed    *feed.Subscriber
	metrics *metrics.Metrics

	// Serving
	rpcServer  *rpc.Server
	restServer *rpc.REST

	// Lifecycle
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	stopped bool
}

// New creates and initializes a Node: logger, storage, chain state, block
// cache, node client, syncer, feed, RPC and REST. It does NOT start any
// background goroutine. Call Start for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := expandHome(cfg.Log.File)
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "slpgraph.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("node", cfg.Node.RPCHost).
		Bool("token_only", cfg.Index.TokenOnly).
		Msg("Starting slpgraph indexer")

	// ── 2. Open storage ─────────────────────────────────────────────
	db, err := storage.Open(cfg.Storage.Backend, cfg.DBDir())
	if err != nil {
		return nil, fmt.Errorf("open %s database at %s: %w", cfg.Storage.Backend, cfg.DBDir(), err)
	}
	snapDB := storage.NewPrefixDB(db, snapshotPrefix)
	cacheDB := storage.NewPrefixDB(db, cachePrefix)
	logger.Info().Str("backend", cfg.Storage.Backend).Str("path", cfg.DBDir()).Msg("Database opened")

	// ── 3. Chain state ──────────────────────────────────────────────
	ch, err := loadChain(cfg, snapDB, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	// ── 4. Metrics ──────────────────────────────────────────────────
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		m.SetHeight(ch.Height())
	}

	// ── 5. Block cache ──────────────────────────────────────────────
	var cache *blockcache.Cache
	if cfg.BlockCache.Enabled {
		if cfg.Reindex {
			if err := cacheDB.DeleteAll(); err != nil {
				db.Close()
				return nil, fmt.Errorf("clear block cache: %w", err)
			}
		}
		cache, err = blockcache.New(cacheDB, cfg.BlockCache.Size)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create block cache: %w", err)
		}
	}

	// ── 6. Node client and syncer ───────────────────────────────────
	client, err := nodeclient.New(nodeclient.Config{
		Host: cfg.Node.RPCHost,
		User: cfg.Node.RPCUser,
		Pass: cfg.Node.RPCPass,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create node client: %w", err)
	}

	sy := syncer.New(ch, client, syncer.Options{
		PollInterval:     cfg.Node.PollInterval,
		SnapshotInterval: cfg.Index.SnapshotInterval,
		Progress:         true,
		Cache:            cache,
		DB:               snapDB,
		Metrics:          m,
	})

	// ── 7. Push feed ────────────────────────────────────────────────
	var sub *feed.Subscriber
	if cfg.Node.ZMQAddr != "" {
		sub = feed.New(cfg.Node.ZMQAddr)
		sub.Handle(feed.TopicRawTx, sy.HandleRawTx)
		sub.Handle(feed.TopicRawBlock, sy.HandleRawBlock)
		sub.OnGap(sy.OnGap)
	} else {
		logger.Warn().Msg("ZMQ feed disabled, polling only")
	}

	// ── 8. RPC and REST ─────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled || cfg.REST.Enabled {
		rpcServer = rpc.New(fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port), ch, m, cfg.RPC)
	}
	var restServer *rpc.REST
	if cfg.REST.Enabled {
		restServer = rpc.NewREST(fmt.Sprintf("%s:%d", cfg.REST.Addr, cfg.REST.Port), rpcServer)
	}
	if !cfg.RPC.Enabled {
		logger.Warn().Msg("RPC disabled by config")
	}

	n := &Node{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		snapDB:     snapDB,
		chain:      ch,
		cache:      cache,
		client:     client,
		syncer:     sy,
		feed:       sub,
		metrics:    m,
		rpcServer:  rpcServer,
		restServer: restServer,
		done:       make(chan struct{}),
	}
	n.registerGauges()
	return n, nil
}

// loadChain restores the chain from the snapshot or creates an empty one
// positioned just before the configured start height.
func loadChain(cfg *config.Config, snapDB *storage.PrefixDB, logger zerolog.Logger) (*bch.Chain, error) {
	start := cfg.Index.StartHeight
	if start > 0 {
		start--
	}
	ch := bch.New(bch.Config{
		TokenOnly:    cfg.Index.TokenOnly,
		VerifyMerkle: cfg.Index.VerifyMerkle,
	}, start)

	if cfg.Reindex {
		if err := snapDB.DeleteAll(); err != nil {
			return nil, fmt.Errorf("clear snapshot: %w", err)
		}
		logger.Info().Uint32("from", start+1).Msg("Reindexing from scratch")
		return ch, nil
	}

	ok, err := ch.Restore(snapDB)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot: %w", err)
	}
	if ok {
		logger.Info().
			Uint32("height", ch.Height()).
			Str("tip", ch.TipHash().String()).
			Msg("Snapshot restored")
	} else {
		logger.Info().Uint32("from", start+1).Msg("No snapshot, indexing from start height")
	}
	return ch, nil
}

func (n *Node) registerGauges() {
	n.metrics.GaugeFunc("graph_nodes", "Transactions in the provenance graph.", func() float64 {
		return float64(n.chain.Info().GraphNodes)
	})
	n.metrics.GaugeFunc("tokens", "Tokens with a valid genesis.", func() float64 {
		return float64(n.chain.Info().Tokens)
	})
	n.metrics.GaugeFunc("utxos", "Confirmed unspent outputs.", func() float64 {
		return float64(n.chain.Info().Utxos.Confirmed)
	})
	if n.feed != nil {
		n.metrics.GaugeFunc("feed_connected", "Whether the ZMQ feed is connected.", func() float64 {
			if n.feed.Stats().Connected {
				return 1
			}
			return 0
		})
	}
}

// Start opens the listeners and launches the syncer and feed. A fatal
// service error stops the node and is reported by Err once Done closes.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return ErrStopped
	}

	if n.rpcServer != nil && n.cfg.RPC.Enabled {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
	}
	if n.restServer != nil {
		if err := n.restServer.Start(); err != nil {
			return fmt.Errorf("start rest: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return n.syncer.Run(gctx)
	})
	if n.feed != nil {
		g.Go(func() error {
			return n.feed.Run(gctx)
		})
	}
	go func() {
		err := g.Wait()
		n.mu.Lock()
		n.err = err
		n.mu.Unlock()
		close(n.done)
	}()

	n.logger.Info().
		Uint32("height", n.chain.Height()).
		Str("tip", n.chain.TipHash().String()).
		Str("rpc", n.RPCAddr()).
		Str("rest", n.RESTAddr()).
		Msg("Indexer started")
	return nil
}

// Done is closed when the background services have exited.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Err returns the error that stopped the background services, if any.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Stop performs graceful shutdown in reverse order. The syncer writes a
// final snapshot before the database closes.
func (n *Node) Stop() {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return
	}
	n.stopped = true
	cancel := n.cancel
	n.mu.Unlock()

	if cancel != nil {
		cancel()
		<-n.done
	}

	if n.restServer != nil {
		n.restServer.Stop()
	}
	if n.rpcServer != nil && n.cfg.RPC.Enabled {
		n.rpcServer.Stop()
	}
	n.client.Shutdown()
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil || !n.cfg.RPC.Enabled {
		return ""
	}
	return n.rpcServer.Addr()
}

// RESTAddr returns the address the REST gateway is listening on.
func (n *Node) RESTAddr() string {
	if n.restServer == nil {
		return ""
	}
	return n.restServer.Addr()
}

// Chain returns the indexed chain.
func (n *Node) Chain() *bch.Chain {
	return n.chain
}

// Height returns the current indexed height.
func (n *Node) Height() uint32 {
	return n.chain.Height()
}
