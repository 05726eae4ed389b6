package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFile loads indexer configuration from a config file.
// Files ending in .yaml or .yml are parsed as YAML with nested sections;
// anything else uses the key = value format (one per line, # for comments).
func LoadFile(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// loadYAML flattens a YAML document into the same dotted keys the
// key = value format uses. Lists become comma-separated strings.
func loadYAML(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	values := make(map[string]string)
	flattenYAML("", doc, values)
	return values, nil
}

func flattenYAML(prefix string, node map[string]interface{}, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flattenYAML(key, val, out)
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case nil:
			out[key] = ""
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key. Unknown keys are ignored.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Node
	case "node.rpchost", "rpchost":
		cfg.Node.RPCHost = value
	case "node.rpcuser", "rpcuser":
		cfg.Node.RPCUser = value
	case "node.rpcpass", "rpcpassword":
		cfg.Node.RPCPass = value
	case "node.zmq", "zmq":
		cfg.Node.ZMQAddr = value
	case "node.poll":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Node.PollInterval = d

	// Index
	case "index.start":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Index.StartHeight = uint32(n)
	case "index.tokenonly":
		cfg.Index.TokenOnly = parseBool(value)
	case "index.snapshot":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Index.SnapshotInterval = uint32(n)
	case "index.verifymerkle":
		cfg.Index.VerifyMerkle = parseBool(value)

	// Storage
	case "storage.backend":
		cfg.Storage.Backend = strings.ToLower(value)

	// Block cache
	case "blockcache.enabled", "blockcache":
		cfg.BlockCache.Enabled = parseBool(value)
	case "blockcache.size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.BlockCache.Size = n

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// REST
	case "rest.enabled", "rest":
		cfg.REST.Enabled = parseBool(value)
	case "rest.addr":
		cfg.REST.Addr = value
	case "rest.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.REST.Port = port

	// Metrics
	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)

	// Logging
	case "log.level":
		cfg.Log.Level = strings.ToLower(value)
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file for network.
func WriteDefaultConfig(path string, network NetworkType) error {
	d := Default(network)
	content := `# slpgraph indexer configuration
#
# Commented values show the defaults for the network this file was
# created for; other networks use their own defaults unless set here.

# Network: mainnet, testnet or regtest
network = ` + string(network) + `

# Data directory (default: ~/.slpgraph)
# datadir = ~/.slpgraph

# ============================================================================
# Full node
# ============================================================================

# node.rpchost = ` + d.Node.RPCHost + `
node.rpcuser = ` + d.Node.RPCUser + `
node.rpcpass = ` + d.Node.RPCPass + `
# ZMQ endpoint publishing rawtx and rawblock (empty disables)
# node.zmq = ` + d.Node.ZMQAddr + `
# node.poll = ` + d.Node.PollInterval.String() + `

# ============================================================================
# Indexing
# ============================================================================

# First block to index
# index.start = ` + strconv.FormatUint(uint64(d.Index.StartHeight), 10) + `
# Only keep token transactions in memory
index.tokenonly = true
# Blocks between snapshots (0 = only at shutdown)
# index.snapshot = ` + strconv.FormatUint(uint64(d.Index.SnapshotInterval), 10) + `
index.verifymerkle = false

# ============================================================================
# Storage
# ============================================================================

# badger, pebble or memory
storage.backend = badger
blockcache.enabled = true
blockcache.size = ` + strconv.Itoa(d.BlockCache.Size) + `

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
# rpc.port = ` + strconv.Itoa(d.RPC.Port) + `
rpc.allowed = 127.0.0.1
# CORS allowed origins ("*" for all)
# rpc.cors = http://localhost:3000

rest.enabled = false
rest.addr = 127.0.0.1
# rest.port = ` + strconv.Itoa(d.REST.Port) + `

metrics.enabled = true

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
