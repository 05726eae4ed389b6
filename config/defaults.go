package config

import "time"

// SLPStartHeight is the mainnet block holding the first SLP transaction.
const SLPStartHeight = 543375

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Node: NodeConfig{
			RPCHost:      "127.0.0.1:8332",
			RPCUser:      "user",
			RPCPass:      "password",
			ZMQAddr:      "tcp://127.0.0.1:28332",
			PollInterval: 10 * time.Second,
		},
		Index: IndexConfig{
			StartHeight:      SLPStartHeight,
			TokenOnly:        true,
			SnapshotInterval: 1000,
		},
		Storage: StorageConfig{
			Backend: "badger",
		},
		BlockCache: BlockCacheConfig{
			Enabled: true,
			Size:    256,
		},
		RPC: RPCConfig{
			Enabled:    true,
			Addr:       "127.0.0.1",
			Port:       8545,
			AllowedIPs: []string{"127.0.0.1"},
		},
		REST: RESTConfig{
			Enabled: false,
			Addr:    "127.0.0.1",
			Port:    8547,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Node.RPCHost = "127.0.0.1:18332"
	cfg.Node.ZMQAddr = "tcp://127.0.0.1:28333"
	cfg.Index.StartHeight = 0
	cfg.RPC.Port = 8645
	cfg.REST.Port = 8647
	return cfg
}

// DefaultRegtest returns the default configuration for regtest.
func DefaultRegtest() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Regtest
	cfg.Node.RPCHost = "127.0.0.1:18443"
	cfg.Node.ZMQAddr = "tcp://127.0.0.1:28334"
	cfg.Node.PollInterval = time.Second
	cfg.Index.StartHeight = 0
	cfg.Index.SnapshotInterval = 100
	cfg.RPC.Port = 8745
	cfg.REST.Port = 8747
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}
