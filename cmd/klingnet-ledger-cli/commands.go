package main

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/rpc"
	"github.com/Klingon-tech/klingnet-ledger/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-ledger/internal/wallet"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// ── status ──────────────────────────────────────────────────────────────

type statusCommand struct{}

func (c *statusCommand) Execute([]string) error {
	info, err := rpcClient().LedgerInfo()
	if err != nil {
		return err
	}
	fmt.Printf("Chain ID:     %s\n", info.ChainID)
	if info.ChainName != "" {
		fmt.Printf("Chain name:   %s\n", info.ChainName)
	}
	fmt.Printf("Network:      %s\n", info.Network)
	fmt.Printf("Genesis:      %s\n", info.GenesisHash)
	fmt.Printf("Applied txs:  %d\n", info.Applied)
	if !info.LastTx.IsZero() {
		fmt.Printf("Last tx:      %s\n", info.LastTx)
	}
	fmt.Printf("UTXOs:        %d\n", info.UTXOCount)
	fmt.Printf("Total value:  %s %s\n", formatAmount(info.TotalValue), info.Symbol)
	fmt.Printf("Commitment:   %s\n", info.Commitment)
	return nil
}

// ── balance / utxos ─────────────────────────────────────────────────────

type addressArgs struct {
	Address string `positional-arg-name:"address" required:"yes"`
}

type balanceCommand struct {
	Args addressArgs `positional-args:"yes"`
}

func (c *balanceCommand) Execute([]string) error {
	addr, err := types.ParseAddress(c.Args.Address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	bal, err := rpcClient().Balance(addr)
	if err != nil {
		return err
	}
	fmt.Printf("Address: %s\n", bal.Address)
	fmt.Printf("Balance: %s (%d utxos)\n", formatAmount(bal.Balance), bal.Count)
	return nil
}

type utxosCommand struct {
	Args addressArgs `positional-args:"yes"`
}

func (c *utxosCommand) Execute([]string) error {
	addr, err := types.ParseAddress(c.Args.Address)
	if err != nil {
		return fmt.Errorf("invalid address: %w", err)
	}
	list, err := rpcClient().UTXOs(addr)
	if err != nil {
		return err
	}
	if len(list.UTXOs) == 0 {
		fmt.Println("No UTXOs.")
		return nil
	}
	printEntries("", list.UTXOs)
	return nil
}

// ── tx ──────────────────────────────────────────────────────────────────

type txCommand struct {
	Args struct {
		TxID string `positional-arg-name:"txid" required:"yes"`
	} `positional-args:"yes"`
}

func (c *txCommand) Execute([]string) error {
	id, err := types.HexToHash(c.Args.TxID)
	if err != nil {
		return fmt.Errorf("invalid txid: %w", err)
	}
	res, err := rpcClient().Tx(id)
	if err != nil {
		return err
	}
	fmt.Printf("Transaction: %s\n", res.TxID)
	fmt.Printf("Sequence:    %d\n", res.Sequence)
	fmt.Println("Spent:")
	printEntries("  ", res.Spent)
	fmt.Println("Created:")
	printEntries("  ", res.Created)
	return nil
}

// ── send ────────────────────────────────────────────────────────────────

type sendCommand struct {
	Wallet string `long:"wallet" required:"yes" description:"Wallet name"`
	To     string `long:"to" required:"yes" description:"Recipient address"`
	Amount string `long:"amount" required:"yes" description:"Amount to send (e.g. 1.5)"`
	DryRun bool   `long:"dry-run" description:"Validate against the ledger without applying"`
}

func (c *sendCommand) Execute([]string) error {
	amount, err := parseAmount(c.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	to, err := types.ParseAddress(c.To)
	if err != nil {
		return fmt.Errorf("invalid recipient address: %w", err)
	}

	ks, err := keystore()
	if err != nil {
		return err
	}
	password, err := readPassword("Enter password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	kc, err := ks.Unlock(c.Wallet, password)
	if err != nil {
		return err
	}
	signers, err := ks.Signers(c.Wallet, kc)
	if err != nil {
		return err
	}

	client := rpcClient()
	var entries []ledger.Entry
	for addr := range signers {
		list, err := client.UTXOs(addr)
		if err != nil {
			return err
		}
		entries = append(entries, list.UTXOs...)
	}

	sel, err := wallet.SelectEntries(entries, amount)
	if err != nil {
		return err
	}
	var change types.Address
	if sel.Change > 0 {
		entry, err := ks.NewAddress(c.Wallet, kc, wallet.ChangeInternal, "change")
		if err != nil {
			return fmt.Errorf("derive change address: %w", err)
		}
		change = entry.Address
	}

	transfer := &wallet.Transfer{
		To:      to,
		Amount:  amount,
		Change:  change,
		Entries: entries,
		Signers: signers,
	}
	transaction, _, err := transfer.Build()
	if err != nil {
		return err
	}

	if c.DryRun {
		res, err := client.ValidateTx(transaction)
		if err != nil {
			return err
		}
		if !res.Valid {
			return rejection(res.Rejection)
		}
		fmt.Printf("Valid: %s (%d inputs, change %s)\n", res.TxID, len(transaction.Inputs), formatAmount(sel.Change))
		return nil
	}

	res, err := client.SubmitTx(transaction)
	if err != nil {
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) {
			if rej, ok := rpcErr.Rejection(); ok {
				return rejection(rej)
			}
		}
		return err
	}
	fmt.Printf("Submitted: %s\n", res.TxID)
	return nil
}

func rejection(r *rpc.RejectionData) error {
	return fmt.Errorf("rejected (%s): %s", r.Kind, r.Message)
}

func printEntries(indent string, entries []ledger.Entry) {
	for _, e := range entries {
		fmt.Printf("%s%s:%d  %s  %s\n", indent, e.Pointer.TxID, e.Pointer.Index, e.Output.Address, formatAmount(e.Output.Value))
	}
}
