// Package node wires storage, the ledger driver and the RPC server into a
// runnable ledger node that can be embedded in any binary.
package node

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/chain"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/rs/zerolog"
)

// Node is a fully-initialized ledger node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db        storage.DB
	ch        *chain.Chain
	rpcServer *rpc.Server
}

// New opens storage, recovers or seeds the ledger and prepares the RPC
// server. Nothing listens until Start.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Logger ───────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(cfg.LogsDir(), "klingnet-ledger.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(logFile)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := loadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Int("allocations", len(genesis.Alloc)).
		Msg("Starting Klingnet ledger node")

	// ── 3. Storage ──────────────────────────────────────────────────
	db, err := storage.Open(cfg.DB.Backend, cfg.UTXODir())
	if err != nil {
		return nil, fmt.Errorf("open %s database at %s: %w", cfg.DB.Backend, cfg.UTXODir(), err)
	}
	logger.Info().Str("backend", cfg.DB.Backend).Str("path", cfg.UTXODir()).Msg("Database opened")

	// ── 4. Ledger ───────────────────────────────────────────────────
	// Each chain id gets its own key namespace in the database.
	ns := storage.NewPrefixDB(db, []byte(genesis.ChainID+"/"))
	ch, err := chain.New(utxo.NewStore(ns), chain.Options{Network: string(cfg.Network)})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger: %w", err)
	}
	resumed := ch.Initialized()
	if err := ch.InitGenesis(genesis); err != nil {
		db.Close()
		return nil, fmt.Errorf("init genesis: %w", err)
	}
	if err := ch.Verify(); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify ledger: %w", err)
	}

	info := ch.Info()
	if resumed {
		logger.Info().
			Uint64("applied", info.Applied).
			Int("utxos", info.UTXOCount).
			Str("commitment", info.Commitment.String()).
			Msg("Ledger resumed from database")
	} else {
		logger.Info().Int("utxos", info.UTXOCount).Msg("Ledger initialized from genesis")
	}

	n := &Node{
		cfg:     cfg,
		genesis: genesis,
		logger:  logger,
		db:      db,
		ch:      ch,
	}

	// ── 5. RPC ──────────────────────────────────────────────────────
	if cfg.RPC.Enabled {
		n.rpcServer = rpc.New(ch, genesis, cfg)
	}
	return n, nil
}

// Start begins serving RPC if enabled.
func (n *Node) Start() error {
	if n.rpcServer != nil {
		if err := n.rpcServer.Start(); err != nil {
			return fmt.Errorf("start rpc: %w", err)
		}
	}
	n.logger.Info().
		Bool("rpc", n.rpcServer != nil).
		Bool("metrics", n.cfg.Metrics.Enabled).
		Msg("Node started successfully")
	return nil
}

// Stop shuts the RPC server down and closes storage.
func (n *Node) Stop(ctx context.Context) {
	if n.rpcServer != nil {
		if err := n.rpcServer.Stop(ctx); err != nil {
			n.logger.Warn().Err(err).Msg("RPC shutdown")
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("Close database")
		}
	}
	n.logger.Info().Msg("Goodbye!")
}

// Chain returns the ledger driver.
func (n *Node) Chain() *chain.Chain {
	return n.ch
}

// Genesis returns the genesis the ledger was seeded with.
func (n *Node) Genesis() *config.Genesis {
	return n.genesis
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// loadGenesis reads cfg.Genesis.File or falls back to the built-in genesis
// of the configured network.
func loadGenesis(cfg *config.Config) (*config.Genesis, error) {
	if cfg.Genesis.File == "" {
		return config.GenesisFor(cfg.Network), nil
	}
	gen, err := config.LoadGenesis(expandHome(cfg.Genesis.File))
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	return gen, nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
