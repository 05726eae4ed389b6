// Package config handles slpgraphd configuration.
//
// Settings come from built-in per-network defaults, then a config file
// (key = value, or YAML when the file ends in .yaml/.yml), then command-line
// flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies the Bitcoin Cash network being indexed.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// Config holds the indexer configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Full node connection
	Node NodeConfig

	// Indexing behaviour
	Index IndexConfig

	// Storage backend for snapshots and the block cache
	Storage StorageConfig

	// Raw block cache
	BlockCache BlockCacheConfig

	// JSON-RPC server
	RPC RPCConfig

	// REST gateway
	REST RESTConfig

	// Prometheus metrics
	Metrics MetricsConfig

	// Logging
	Log LogConfig

	// Maintenance (not persisted in config file)
	Reindex bool
}

// NodeConfig holds the full node connection settings.
type NodeConfig struct {
	RPCHost      string        `conf:"node.rpchost"` // host:port of the node's JSON-RPC
	RPCUser      string        `conf:"node.rpcuser"`
	RPCPass      string        `conf:"node.rpcpass"`
	ZMQAddr      string        `conf:"node.zmq"` // empty disables the push feed
	PollInterval time.Duration `conf:"node.poll"`
}

// IndexConfig holds indexing settings.
type IndexConfig struct {
	StartHeight      uint32 `conf:"index.start"`        // first block to index
	TokenOnly        bool   `conf:"index.tokenonly"`    // index only token transactions
	SnapshotInterval uint32 `conf:"index.snapshot"`     // blocks between snapshots (0 = only at shutdown)
	VerifyMerkle     bool   `conf:"index.verifymerkle"` // check block merkle roots
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend string `conf:"storage.backend"` // badger, pebble or memory
}

// BlockCacheConfig holds raw block cache settings.
type BlockCacheConfig struct {
	Enabled bool `conf:"blockcache.enabled"`
	Size    int  `conf:"blockcache.size"` // in-memory LRU entries
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// RESTConfig holds REST gateway settings.
type RESTConfig struct {
	Enabled bool   `conf:"rest.enabled"`
	Addr    string `conf:"rest.addr"`
	Port    int    `conf:"rest.port"`
}

// MetricsConfig holds metrics settings. Metrics are served on the RPC
// listener at /metrics.
type MetricsConfig struct {
	Enabled bool `conf:"metrics.enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.slpgraph
//	macOS:   ~/Library/Application Support/Slpgraph
//	Windows: %APPDATA%\Slpgraph
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".slpgraph"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Slpgraph")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Slpgraph")
		}
		return filepath.Join(home, "AppData", "Roaming", "Slpgraph")
	default:
		return filepath.Join(home, ".slpgraph")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the database directory holding snapshots and cached blocks.
func (c *Config) DBDir() string {
	return filepath.Join(c.ChainDataDir(), "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "slpgraph.conf")
}
