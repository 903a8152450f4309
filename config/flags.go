package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
)

// Flags holds parsed command-line flags. Zero values mean "not set" so the
// config file value survives; booleans are phrased as overrides of the
// enabled-by-default settings.
type Flags struct {
	Version bool `short:"v" long:"version" description:"Show version information"`

	// Core
	Network string `long:"network" env:"KLINGNET_LEDGER_NETWORK" description:"Network type (mainnet or testnet)"`
	Testnet bool   `long:"testnet" description:"Shorthand for --network=testnet"`
	DataDir string `long:"datadir" env:"KLINGNET_LEDGER_DATADIR" description:"Data directory path (default: ~/.klingnet-ledger)"`
	Config  string `short:"c" long:"config" env:"KLINGNET_LEDGER_CONFIG" description:"Config file path (default: <datadir>/klingnet-ledger.conf)"`

	// Storage
	DBBackend string `long:"db-backend" env:"KLINGNET_LEDGER_DB_BACKEND" description:"UTXO store backend (badger or memory)"`
	Genesis   string `long:"genesis" env:"KLINGNET_LEDGER_GENESIS" description:"Genesis allocation file (default: built-in for the network)"`

	// RPC
	NoRPC      bool   `long:"no-rpc" description:"Disable the RPC server"`
	RPCAddr    string `long:"rpc-addr" env:"KLINGNET_LEDGER_RPC_ADDR" description:"RPC listen address"`
	RPCPort    int    `long:"rpc-port" env:"KLINGNET_LEDGER_RPC_PORT" description:"RPC listen port (mainnet: 8545, testnet: 8645)"`
	RPCAllowed string `long:"rpc-allowed" env:"KLINGNET_LEDGER_RPC_ALLOWED" description:"Allowed IPs or CIDRs for RPC (comma-separated)"`
	RPCCORS    string `long:"rpc-cors" env:"KLINGNET_LEDGER_RPC_CORS" description:"Allowed CORS origins for RPC (comma-separated)"`

	// Metrics
	NoMetrics bool `long:"no-metrics" description:"Disable the /metrics endpoint"`

	// Logging
	LogLevel string `long:"log-level" env:"KLINGNET_LEDGER_LOG_LEVEL" description:"Log level (trace, debug, info, warn, error)"`
	LogFile  string `long:"log-file" env:"KLINGNET_LEDGER_LOG_FILE" description:"Log file path (default: stdout)"`
	LogJSON  bool   `long:"log-json" description:"Output logs as JSON"`

	// Remaining args
	Args []string `no-flag:"true"`
}

// ParseFlags parses command-line arguments (without the program name).
// A --help request is reported as a *flags.Error of type flags.ErrHelp.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	rest, err := flags.ParseArgs(f, args)
	if err != nil {
		return nil, err
	}
	if f.Testnet {
		f.Network = string(Testnet)
	}
	f.Args = rest
	return f, nil
}

// IsHelp reports whether err came from a --help request.
func IsHelp(err error) bool {
	var ferr *flags.Error
	return errors.As(err, &ferr) && ferr.Type == flags.ErrHelp
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Storage
	if f.DBBackend != "" {
		cfg.DB.Backend = strings.ToLower(f.DBBackend)
	}
	if f.Genesis != "" {
		cfg.Genesis.File = f.Genesis
	}

	// RPC
	if f.NoRPC {
		cfg.RPC.Enabled = false
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

	// Metrics
	if f.NoMetrics {
		cfg.Metrics.Enabled = false
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.LogJSON {
		cfg.Log.JSON = true
	}
}

// Load builds the configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(f *Flags) (*Config, error) {
	if f == nil {
		f = &Flags{}
	}

	// Determine network first (needed for defaults)
	network := Mainnet
	if strings.EqualFold(f.Network, string(Testnet)) {
		network = Testnet
	}

	cfg := Default(network)
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := f.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, fmt.Errorf("applying config file: %w", err)
	}

	// Apply flags (highest precedence)
	ApplyFlags(cfg, f)
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
		cfg.UTXODir(),
		cfg.KeystoreDir(),
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
