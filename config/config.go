// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Ledger identity: defined in genesis, must match across every replica
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Storage backends accepted by db.backend.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Storage
	DB DBConfig

	// RPC server
	RPC RPCConfig

	// Prometheus exposition on the RPC listener
	Metrics MetricsConfig

	// Genesis override
	Genesis GenesisConfig

	// Logging
	Log LogConfig
}

// DBConfig holds UTXO storage settings.
type DBConfig struct {
	Backend string `conf:"db.backend"` // badger or memory
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `conf:"metrics.enabled"`
}

// GenesisConfig selects the genesis allocation file.
// An empty File uses the built-in genesis of the network.
type GenesisConfig struct {
	File string `conf:"genesis.file"`
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
//	Linux:   ~/.klingnet-ledger
//	macOS:   ~/Library/Application Support/KlingnetLedger
//	Windows: %APPDATA%\KlingnetLedger
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-ledger"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetLedger")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetLedger")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetLedger")
	default:
		return filepath.Join(home, ".klingnet-ledger")
	}
}

// ChainDataDir returns the network-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// UTXODir returns the UTXO database directory.
func (c *Config) UTXODir() string {
	return filepath.Join(c.ChainDataDir(), "utxo")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "klingnet-ledger.conf")
}

// RPCListenAddr returns the host:port the RPC server binds to.
func (c *Config) RPCListenAddr() string {
	return net.JoinHostPort(c.RPC.Addr, strconv.Itoa(c.RPC.Port))
}
