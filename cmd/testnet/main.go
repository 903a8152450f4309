// Command testnet runs a throwaway local ledger node and drives it over RPC.
//
// Usage: go run ./cmd/testnet/
//
// It seeds a genesis for the well-known testnet identity, boots a node on a
// temporary Badger store, submits a chain of transfers, shows how each kind
// of invalid transaction is rejected, then restarts the node and checks the
// ledger commitment survived. Ctrl+C for early shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/config"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/node"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

const (
	numTransfers = 10
	pause        = 200 * time.Millisecond
)

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== Klingnet Ledger Local Testnet ===")

	// ── Phase 1: Identity + genesis ─────────────────────────────────────

	key, err := crypto.PrivateKeyFromHex(config.TestnetPrivKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("load testnet key")
	}
	defer key.Zero()

	dir, err := os.MkdirTemp("", "klingnet-ledger-testnet-")
	if err != nil {
		logger.Fatal().Err(err).Msg("create data dir")
	}
	defer os.RemoveAll(dir)

	gen := config.TestnetGenesis()
	gen.ChainID = "klingnet-ledger-testnet-local"
	gen.ChainName = "Local Testnet"
	gen.Timestamp = uint64(time.Now().Unix())
	gen.Alloc = map[string]uint64{key.Address().String(): 1_000 * config.Coin}

	cfg := config.DefaultTestnet()
	cfg.DataDir = dir
	cfg.RPC.Port = 0
	cfg.Log.File = dir + "/testnet.log"
	cfg.Genesis.File = dir + "/genesis.json"
	if err := gen.Save(cfg.Genesis.File); err != nil {
		logger.Fatal().Err(err).Msg("write genesis")
	}

	// ── Phase 2: Boot ───────────────────────────────────────────────────

	n, client := boot(cfg)
	logger.Info().Str("rpc", n.RPCAddr()).Str("datadir", dir).Msg("Node running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Phase 3: Transfers ──────────────────────────────────────────────

	entries, err := gen.Entries()
	if err != nil {
		logger.Fatal().Err(err).Msg("genesis entries")
	}
	funding := entries[0]

	for i := 0; i < numTransfers; i++ {
		select {
		case <-ctx.Done():
			shutdown(n)
			return
		case <-time.After(pause):
		}

		recipient := types.Address{byte(i + 1)}
		t := transfer(key, funding, recipient, config.Coin)
		res, err := client.SubmitTx(t)
		if err != nil {
			logger.Fatal().Err(err).Int("transfer", i).Msg("submit")
		}
		for _, e := range res.Created {
			if e.Output.Address == key.Address() {
				funding = e
			}
		}
		logger.Info().
			Int("transfer", i+1).
			Str("txid", res.TxID.String()[:16]+"...").
			Uint64("remaining", funding.Output.Value/config.Coin).
			Msg("Transfer applied")
	}

	// ── Phase 4: Rejections ─────────────────────────────────────────────

	stale := transfer(key, entries[0], types.Address{0xee}, config.Coin)
	unbalanced := tx.NewBuilder().AddInput(funding.Pointer).AddOutput(key.Address(), funding.Output.Value-1)
	unsigned := &tx.Transaction{
		Inputs:  []types.UtxoPointer{funding.Pointer},
		Outputs: []tx.Output{{Address: key.Address(), Value: funding.Output.Value}},
	}
	zero := tx.NewBuilder().AddInput(funding.Pointer).
		AddOutput(key.Address(), funding.Output.Value).
		AddOutput(types.Address{0xee}, 0)
	double := tx.NewBuilder().AddInput(funding.Pointer).AddInput(funding.Pointer).
		AddOutput(key.Address(), 2*funding.Output.Value)

	cases := []struct {
		name string
		tx   *tx.Transaction
	}{
		{"replay of a spent input", stale},
		{"unbalanced sums", signed(key, unbalanced)},
		{"missing witnesses", unsigned},
		{"zero-value output", signed(key, zero)},
		{"double spend", signed(key, double)},
	}
	for _, c := range cases {
		res, err := client.ValidateTx(c.tx)
		if err != nil {
			logger.Fatal().Err(err).Str("case", c.name).Msg("validate")
		}
		if res.Valid {
			logger.Fatal().Str("case", c.name).Msg("Invalid transaction accepted")
		}
		logger.Info().
			Str("case", c.name).
			Str("kind", res.Rejection.Kind).
			Msg("Rejected as expected")
	}

	// ── Phase 5: Restart ────────────────────────────────────────────────

	before, err := client.LedgerInfo()
	if err != nil {
		logger.Fatal().Err(err).Msg("ledger info")
	}
	shutdown(n)

	n, client = boot(cfg)
	defer shutdown(n)

	after, err := client.LedgerInfo()
	if err != nil {
		logger.Fatal().Err(err).Msg("ledger info after restart")
	}
	if after.Commitment != before.Commitment || after.Applied != before.Applied {
		logger.Fatal().
			Str("before", before.Commitment.String()).
			Str("after", after.Commitment.String()).
			Msg("Ledger diverged across restart")
	}

	logger.Info().
		Uint64("applied", after.Applied).
		Int("utxos", after.UTXOCount).
		Str("commitment", after.Commitment.String()[:16]+"...").
		Msg("=== SUCCESS: ledger consistent across restart ===")
}

func boot(cfg *config.Config) (*node.Node, *rpcclient.Client) {
	n, err := node.New(cfg)
	if err != nil {
		klog.Fatal().Err(err).Msg("create node")
	}
	if err := n.Start(); err != nil {
		klog.Fatal().Err(err).Msg("start node")
	}
	return n, rpcclient.New("http://" + n.RPCAddr())
}

func shutdown(n *node.Node) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n.Stop(ctx)
}

// transfer pays amount to recipient from funding and returns the rest to
// the funding address.
func transfer(key *crypto.PrivateKey, funding ledger.Entry, recipient types.Address, amount uint64) *tx.Transaction {
	b := tx.NewBuilder().
		AddInput(funding.Pointer).
		AddOutput(recipient, amount).
		AddOutput(funding.Output.Address, funding.Output.Value-amount)
	return signed(key, b)
}

func signed(key *crypto.PrivateKey, b *tx.Builder) *tx.Transaction {
	if err := b.Sign(key); err != nil {
		klog.Fatal().Err(err).Msg("sign")
	}
	return b.Build()
}
