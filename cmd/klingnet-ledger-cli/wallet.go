package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Klingon-tech/klingnet-ledger/internal/wallet"
)

type walletCreateCommand struct {
	Name string `long:"name" required:"yes" description:"Wallet name"`
}

func (c *walletCreateCommand) Execute([]string) error {
	mnemonic, err := wallet.NewMnemonic()
	if err != nil {
		return err
	}
	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)
	return createWallet(c.Name, mnemonic)
}

type walletImportCommand struct {
	Name     string `long:"name" required:"yes" description:"Wallet name"`
	Mnemonic string `long:"mnemonic" description:"BIP-39 mnemonic (prompted for when omitted)"`
}

func (c *walletImportCommand) Execute([]string) error {
	mnemonic := c.Mnemonic
	if mnemonic == "" {
		fmt.Fprint(os.Stderr, "Enter mnemonic: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read mnemonic: %w", err)
		}
		mnemonic = line
	}
	if !wallet.ValidMnemonic(mnemonic) {
		return wallet.ErrInvalidMnemonic
	}
	return createWallet(c.Name, mnemonic)
}

func createWallet(name, mnemonic string) error {
	password, err := readNewPassword()
	if err != nil {
		return err
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return err
	}
	defer func() {
		for i := range seed {
			seed[i] = 0
		}
	}()

	ks, err := keystore()
	if err != nil {
		return err
	}
	entry, err := ks.Create(name, seed, password, wallet.DefaultKDFParams())
	if err != nil {
		return err
	}
	fmt.Printf("Wallet created: %s\n", name)
	fmt.Printf("Address: %s\n", entry.Address)
	return nil
}

type walletListCommand struct{}

func (c *walletListCommand) Execute([]string) error {
	ks, err := keystore()
	if err != nil {
		return err
	}
	names, err := ks.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No wallets.")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

type walletAddressCommand struct {
	Wallet string `long:"wallet" required:"yes" description:"Wallet name"`
}

func (c *walletAddressCommand) Execute([]string) error {
	ks, err := keystore()
	if err != nil {
		return err
	}
	entries, err := ks.Addresses(c.Wallet)
	if err != nil {
		return err
	}
	for _, e := range entries {
		branch := "receive"
		if e.Change == wallet.ChangeInternal {
			branch = "change"
		}
		line := fmt.Sprintf("%s  %s/%d", e.Address, branch, e.Index)
		if e.Label != "" {
			line += "  " + e.Label
		}
		fmt.Println(line)
	}
	return nil
}

type walletNewAddressCommand struct {
	Wallet string `long:"wallet" required:"yes" description:"Wallet name"`
	Label  string `long:"label" description:"Address label"`
}

func (c *walletNewAddressCommand) Execute([]string) error {
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
	entry, err := ks.NewAddress(c.Wallet, kc, wallet.ChangeExternal, strings.TrimSpace(c.Label))
	if err != nil {
		return err
	}
	fmt.Printf("Address: %s\n", entry.Address)
	return nil
}

type walletBalanceCommand struct {
	Wallet string `long:"wallet" required:"yes" description:"Wallet name"`
}

func (c *walletBalanceCommand) Execute([]string) error {
	ks, err := keystore()
	if err != nil {
		return err
	}
	entries, err := ks.Addresses(c.Wallet)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("wallet has no addresses")
	}

	client := rpcClient()
	var total uint64
	var count int
	for _, e := range entries {
		bal, err := client.Balance(e.Address)
		if err != nil {
			return err
		}
		if bal.Count > 0 {
			fmt.Printf("%s  %s\n", e.Address, formatAmount(bal.Balance))
		}
		total += bal.Balance
		count += bal.Count
	}
	fmt.Printf("Total: %s (%d utxos)\n", formatAmount(total), count)
	return nil
}
