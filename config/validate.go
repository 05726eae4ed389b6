package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks the configuration for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir must not be empty")
	}

	if _, _, err := net.SplitHostPort(cfg.Node.RPCHost); err != nil {
		return fmt.Errorf("node.rpchost must be host:port: %w", err)
	}
	if cfg.Node.ZMQAddr != "" && !strings.Contains(cfg.Node.ZMQAddr, "://") {
		return fmt.Errorf("node.zmq must be an endpoint like tcp://host:port")
	}
	if cfg.Node.PollInterval <= 0 {
		return fmt.Errorf("node.poll must be positive")
	}

	switch cfg.Storage.Backend {
	case "badger", "pebble", "memory":
	default:
		return fmt.Errorf("storage.backend must be badger, pebble or memory")
	}
	if cfg.BlockCache.Enabled && cfg.BlockCache.Size <= 0 {
		return fmt.Errorf("blockcache.size must be positive when the cache is enabled")
	}

	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.REST.Port < 0 || cfg.REST.Port > 65535 {
		return fmt.Errorf("rest.port must be in range [0, 65535]")
	}
	if cfg.RPC.Enabled && cfg.REST.Enabled && cfg.RPC.Addr == cfg.REST.Addr && cfg.RPC.Port == cfg.REST.Port && cfg.RPC.Port != 0 {
		return fmt.Errorf("rpc and rest must listen on different ports")
	}

	switch cfg.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be trace, debug, info, warn or error")
	}
	return nil
}
