package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Version is reported by --version.
const Version = "0.1.0"

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string
	Reindex bool

	// Node
	NodeRPC  string
	NodeUser string
	NodePass string
	ZMQ      string
	NoZMQ    bool

	// Index
	StartHeight uint
	TokenOnly   bool
	Snapshot    uint
	Backend     string

	// RPC
	RPC        bool
	RPCAddr    string
	RPCPort    int
	RPCAllowed string
	RPCCORS    string

	// REST
	REST     bool
	RESTPort int

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set flags (for true/false and zero overrides).
	SetStart     bool
	SetTokenOnly bool
	SetSnapshot  bool
	SetRPC       bool
	SetREST      bool
	SetLogJSON   bool
}

// ParseFlags parses os.Args, exiting on error.
func ParseFlags() *Flags {
	f, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return f
}

func parseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("slpgraphd", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet, testnet or regtest)")
	testnet := fs.Bool("testnet", false, "Shorthand for --network=testnet")
	regtest := fs.Bool("regtest", false, "Shorthand for --network=regtest")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")
	fs.BoolVar(&f.Reindex, "reindex", false, "Ignore the saved snapshot and index from the start height")

	// Node
	fs.StringVar(&f.NodeRPC, "node-rpc", "", "Full node RPC host:port")
	fs.StringVar(&f.NodeUser, "node-user", "", "Full node RPC user")
	fs.StringVar(&f.NodePass, "node-pass", "", "Full node RPC password")
	fs.StringVar(&f.ZMQ, "zmq", "", "Full node ZMQ endpoint")
	fs.BoolVar(&f.NoZMQ, "no-zmq", false, "Disable the ZMQ feed and poll only")

	// Index
	fs.UintVar(&f.StartHeight, "start", 0, "First block to index")
	fs.BoolVar(&f.TokenOnly, "token-only", true, "Only index token transactions")
	fs.UintVar(&f.Snapshot, "snapshot", 0, "Blocks between snapshots")
	fs.StringVar(&f.Backend, "backend", "", "Storage backend (badger, pebble or memory)")

	// RPC
	fs.BoolVar(&f.RPC, "rpc", true, "Enable RPC server")
	fs.StringVar(&f.RPCAddr, "rpc-addr", "", "RPC listen address")
	fs.IntVar(&f.RPCPort, "rpc-port", 0, "RPC listen port")
	fs.StringVar(&f.RPCAllowed, "rpc-allowed", "", "Allowed IPs for RPC")
	fs.StringVar(&f.RPCCORS, "rpc-cors", "", "Allowed CORS origins for RPC (comma-separated)")

	// REST
	fs.BoolVar(&f.REST, "rest", false, "Enable REST gateway")
	fs.IntVar(&f.RESTPort, "rest-port", 0, "REST listen port")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = printUsage

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *testnet {
		f.Network = string(Testnet)
	}
	if *regtest {
		f.Network = string(Regtest)
	}
	f.SetStart = isFlagSet(fs, "start")
	f.SetTokenOnly = isFlagSet(fs, "token-only")
	f.SetSnapshot = isFlagSet(fs, "snapshot")
	f.SetRPC = isFlagSet(fs, "rpc")
	f.SetREST = isFlagSet(fs, "rest")
	f.SetLogJSON = isFlagSet(fs, "log-json")

	f.Args = fs.Args()

	// A positional argument stops the parser; catch flags that were skipped.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}

	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(f.Network)
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.Reindex {
		cfg.Reindex = true
	}

	// Node
	if f.NodeRPC != "" {
		cfg.Node.RPCHost = f.NodeRPC
	}
	if f.NodeUser != "" {
		cfg.Node.RPCUser = f.NodeUser
	}
	if f.NodePass != "" {
		cfg.Node.RPCPass = f.NodePass
	}
	if f.ZMQ != "" {
		cfg.Node.ZMQAddr = f.ZMQ
	}
	if f.NoZMQ {
		cfg.Node.ZMQAddr = ""
	}

	// Index
	if f.SetStart {
		cfg.Index.StartHeight = uint32(f.StartHeight)
	}
	if f.SetTokenOnly {
		cfg.Index.TokenOnly = f.TokenOnly
	}
	if f.SetSnapshot {
		cfg.Index.SnapshotInterval = uint32(f.Snapshot)
	}
	if f.Backend != "" {
		cfg.Storage.Backend = strings.ToLower(f.Backend)
	}

	// RPC
	if f.SetRPC {
		cfg.RPC.Enabled = f.RPC
	}
	if f.RPCAddr != "" {
		cfg.RPC.Addr = f.RPCAddr
	}
	if f.RPCPort != 0 {
		cfg.RPC.Port = f.RPCPort
	}
	if f.RPCAllowed != "" {
		cfg.RPC.AllowedIPs = parseStringList(f.RPCAllowed)
	}
	if f.RPCCORS != "" {
		cfg.RPC.CORSOrigins = parseStringList(f.RPCCORS)
	}

	// REST
	if f.SetREST {
		cfg.REST.Enabled = f.REST
	}
	if f.RESTPort != 0 {
		cfg.REST.Port = f.RESTPort
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = strings.ToLower(f.LogLevel)
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `slpgraphd - SLP token graph indexer for Bitcoin Cash

Usage:
  slpgraphd [options]
  slpgraphd --help

Commands:
  --help, -h      Show this help message
  --version, -v   Show version information

Core Options:
  --network       Network type: mainnet (default), testnet or regtest
  --testnet       Shorthand for --network=testnet
  --regtest       Shorthand for --network=regtest
  --datadir       Data directory (default: ~/.slpgraph)
  --config, -c    Config file path (default: <datadir>/slpgraph.conf)
  --reindex       Ignore the saved snapshot and index from the start height

Full Node Options:
  --node-rpc      Node RPC host:port (mainnet: 127.0.0.1:8332)
  --node-user     Node RPC user
  --node-pass     Node RPC password
  --zmq           Node ZMQ endpoint (mainnet: tcp://127.0.0.1:28332)
  --no-zmq        Disable the ZMQ feed and rely on polling

Index Options:
  --start         First block to index (mainnet: 543375)
  --token-only    Only index token transactions (default: true)
  --snapshot      Blocks between snapshots (default: 1000)
  --backend       Storage backend: badger (default), pebble or memory

RPC Options:
  --rpc           Enable RPC server (default: true)
  --rpc-addr      RPC listen address (default: 127.0.0.1)
  --rpc-port      RPC port (mainnet: 8545, testnet: 8645)
  --rpc-allowed   Allowed IPs for RPC (comma-separated)
  --rpc-cors      Allowed CORS origins for RPC (comma-separated)
  --rest          Enable the REST gateway
  --rest-port     REST port (mainnet: 8547)

Logging Options:
  --log-level     Log level: trace, debug, info, warn, error (default: info)
  --log-file      Log file path (default: stdout)
  --log-json      Output logs as JSON

Examples:
  # Index mainnet against a local node
  slpgraphd --node-user=rpc --node-pass=secret

  # Regtest without ZMQ
  slpgraphd --regtest --no-zmq
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load() (*Config, *Flags, error) {
	flags := ParseFlags()

	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("slpgraphd version " + Version)
		os.Exit(0)
	}

	cfg, err := loadWithFlags(flags)
	if err != nil {
		return nil, nil, err
	}
	return cfg, flags, nil
}

func loadWithFlags(flags *Flags) (*Config, error) {
	network := NetworkType(strings.ToLower(flags.Network))
	if network == "" {
		network = Mainnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	// A network chosen only by the file still gets that network's defaults.
	if fileNet, ok := fileValues["network"]; ok && flags.Network == "" && NetworkType(fileNet) != network {
		cfg = Default(NetworkType(fileNet))
		if flags.DataDir != "" {
			cfg.DataDir = flags.DataDir
		}
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags take precedence over the file, including network and datadir.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.ChainDataDir(),
		cfg.DBDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
