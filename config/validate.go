package config

import (
	"fmt"
	"net"

	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}

	switch cfg.DB.Backend {
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("db.backend must be %q or %q, got %q", BackendBadger, BackendMemory, cfg.DB.Backend)
	}

	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	for i, entry := range cfg.RPC.AllowedIPs {
		if _, _, err := net.ParseCIDR(entry); err == nil {
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("rpc.allowed[%d] %q is not an IP or CIDR", i, entry)
		}
	}

	if !klog.ValidLevel(cfg.Log.Level) {
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}

	return nil
}
