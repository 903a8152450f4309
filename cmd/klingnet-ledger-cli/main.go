// klingnet-ledger-cli is a command-line client for a klingnet-ledgerd node
// and the local wallet keystore.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-ledger/internal/wallet"
	"github.com/jessevdk/go-flags"
	"golang.org/x/term"
)

// globalOptions apply to every command.
type globalOptions struct {
	RPC     string `long:"rpc" env:"KLINGNET_LEDGER_RPC" description:"RPC endpoint (default: local node of the selected network)"`
	DataDir string `long:"datadir" env:"KLINGNET_LEDGER_DATADIR" description:"Data directory (default: ~/.klingnet-ledger)"`
	Network string `long:"network" env:"KLINGNET_LEDGER_NETWORK" default:"mainnet" choice:"mainnet" choice:"testnet" description:"Network"`
}

var opts globalOptions

func main() {
	parser := newParser()
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Println(ferr.Message)
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newParser() *flags.Parser {
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "klingnet-ledger-cli"

	parser.AddCommand("status", "Show ledger status", "Show the ledger summary reported by the node.", &statusCommand{})
	parser.AddCommand("balance", "Show address balance", "Show the spendable balance of an address.", &balanceCommand{})
	parser.AddCommand("utxos", "List address UTXOs", "List the unspent outputs locked to an address.", &utxosCommand{})
	parser.AddCommand("tx", "Show an applied transaction", "Show the spent and created entries of an applied transaction.", &txCommand{})
	parser.AddCommand("send", "Send coins from a wallet", "Build, sign and submit a transfer from a local wallet.", &sendCommand{})

	w, _ := parser.AddCommand("wallet", "Manage local wallets", "Create, import and inspect wallets in the local keystore.", &struct{}{})
	w.AddCommand("create", "Create a new wallet", "Generate a mnemonic and seal it in the keystore.", &walletCreateCommand{})
	w.AddCommand("import", "Import a wallet from a mnemonic", "Seal an existing BIP-39 mnemonic in the keystore.", &walletImportCommand{})
	w.AddCommand("list", "List wallets", "List the wallets in the keystore.", &walletListCommand{})
	w.AddCommand("address", "List wallet addresses", "List the addresses derived by a wallet.", &walletAddressCommand{})
	w.AddCommand("new-address", "Derive a new receiving address", "Derive the next receiving address of a wallet.", &walletNewAddressCommand{})
	w.AddCommand("balance", "Show wallet balance", "Sum the balances of every wallet address.", &walletBalanceCommand{})

	return parser
}

func network() config.NetworkType {
	return config.NetworkType(strings.ToLower(opts.Network))
}

// nodeConfig returns the default node configuration for the selected
// network with the --datadir override applied.
func nodeConfig() *config.Config {
	cfg := config.Default(network())
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	return cfg
}

func rpcClient() *rpcclient.Client {
	if opts.RPC != "" {
		return rpcclient.New(opts.RPC)
	}
	return rpcclient.New("http://" + nodeConfig().RPCListenAddr())
}

func keystore() (*wallet.Keystore, error) {
	return wallet.NewKeystore(nodeConfig().KeystoreDir())
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// readNewPassword prompts twice and requires both entries to match.
func readNewPassword() ([]byte, error) {
	password, err := readPassword("Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if string(password) != string(confirm) {
		return nil, errors.New("passwords do not match")
	}
	return password, nil
}
