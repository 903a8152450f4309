// derive_key.go prints the BIP-44 key and address a mnemonic yields, for
// filling genesis allocations.
// Usage: go run scripts/derive_key.go "<mnemonic>" [index]
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/Klingon-tech/klingnet-ledger/internal/wallet"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, `usage: derive_key "<mnemonic>" [index]`)
		os.Exit(1)
	}
	var index uint32
	if len(os.Args) > 2 {
		n, err := strconv.ParseUint(os.Args[2], 10, 32)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		index = uint32(n)
	}

	seed, err := wallet.SeedFromMnemonic(os.Args[1], "")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	kc, err := wallet.NewKeychain(seed, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	key, err := kc.Key(wallet.ChangeExternal, index)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer key.Zero()

	fmt.Printf("path=m/44'/8888'/0'/0/%d\n", index)
	fmt.Printf("privkey=%s\n", hex.EncodeToString(key.Serialize()))
	fmt.Printf("pubkey=%s\n", hex.EncodeToString(key.PublicKey()))
	fmt.Printf("address=%s\n", key.Address())
}
