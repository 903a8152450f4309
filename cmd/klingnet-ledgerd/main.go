// Klingnet ledger node daemon.
//
// Usage:
//
//	klingnet-ledgerd [--testnet] [--datadir=...]   Run node
//	klingnet-ledgerd --help                        Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/node"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	f, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		if config.IsHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}
	if f.Version {
		fmt.Printf("klingnet-ledgerd %s\n", version)
		return
	}

	cfg, err := config.Load(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop(context.Background())
		os.Exit(1)
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n.Stop(shutdownCtx)
}
