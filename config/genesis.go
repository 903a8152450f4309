package config

import (
	"encoding/json"
	"fmt"
	"math/bits"
	"os"
	"sort"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Denomination constants.
// 1 coin = 10^12 base units. All ledger values are in base units.
const (
	Decimals  = 12
	Coin      = 1_000_000_000_000 // 10^12 base units per coin
	MilliCoin = 1_000_000_000     // 10^9
	MicroCoin = 1_000_000         // 10^6
)

// Genesis holds the initial allocation of the ledger.
// It is immutable after launch: every replica must seed the same set.
type Genesis struct {
	// Ledger identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	Timestamp uint64 `json:"timestamp"`
	ExtraData string `json:"extra_data,omitempty"`

	// Initial allocations (hex address -> balance in base units)
	Alloc map[string]uint64 `json:"alloc"`
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/8888'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase for the testnet faucet.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetPubKey is the compressed public key (hex) derived from TestnetMnemonic.
	TestnetPubKey = "030bef68f8657df88098a0546da1712c88b459788bea1a6bbe964004166a25144f"

	// TestnetPrivKey is the private key (hex) derived from TestnetMnemonic.
	TestnetPrivKey = "1f0717e6e34acc6721021f4dfed54558ec8452452b6195545d06dd348b220091"

	// TestnetAddress is the hex address derived from TestnetMnemonic.
	// Address = BLAKE3(pubkey)[:20]
	TestnetAddress = "8f3a44b8056cafec368dea0cbe0ad1d9bc3f4305"
)

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:   "klingnet-ledger-mainnet-1",
		ChainName: "Klingnet Ledger Mainnet",
		Symbol:    "KGX",
		Timestamp: 1770734103, // 2026-02-10
		ExtraData: "Klingnet Ledger Genesis",
		Alloc: map[string]uint64{
			"e9d69ff8b240f30f2caf5ad76c788b96ef0a7c2d": 100_000 * Coin,
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "klingnet-ledger-testnet-1"
	g.ChainName = "Klingnet Ledger Testnet"
	g.ExtraData = "Klingnet Ledger Testnet Genesis"

	// Testnet allocation: 200,000 KGX to the well-known testnet address.
	g.Alloc = map[string]uint64{
		TestnetAddress: 200_000 * Coin,
	}
	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// MaxChainIDLen bounds the chain id, which also names the ledger's key
// namespace in a shared database.
const MaxChainIDLen = 64

// chainIDChar reports whether c may appear in a chain id. The namespace
// separator '/' is excluded so no chain's keys fall inside another's.
func chainIDChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	if len(g.ChainID) > MaxChainIDLen {
		return fmt.Errorf("chain_id is %d bytes, max is %d", len(g.ChainID), MaxChainIDLen)
	}
	for i := 0; i < len(g.ChainID); i++ {
		if !chainIDChar(g.ChainID[i]) {
			return fmt.Errorf("chain_id %q: invalid character %q (allowed: A-Z a-z 0-9 . _ -)", g.ChainID, g.ChainID[i])
		}
	}
	if len(g.Alloc) > tx.MaxOutputs {
		return fmt.Errorf("genesis has %d allocations, max is %d", len(g.Alloc), tx.MaxOutputs)
	}

	var total uint64
	for addrStr, v := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		if v == 0 {
			return fmt.Errorf("alloc for %s is zero", addrStr)
		}
		var carry uint64
		total, carry = bits.Add64(total, v, 0)
		if carry != 0 {
			return fmt.Errorf("genesis allocations: %w", ledger.ErrValueOverflow)
		}
	}

	return nil
}

// Hash returns a BLAKE3 hash of the genesis configuration.
// Used to identify the ledger and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}

// TxID returns the identifier the genesis outputs are keyed under.
func (g *Genesis) TxID() (types.Hash, error) {
	h, err := g.Hash()
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.TaggedHash("klingnet-ledger/genesis", h[:]), nil
}

// Entries returns the genesis UTXOs ordered by address. Output i of the
// genesis pseudo-transaction is the i-th allocation in that order.
func (g *Genesis) Entries() ([]ledger.Entry, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	txID, err := g.TxID()
	if err != nil {
		return nil, fmt.Errorf("genesis id: %w", err)
	}

	addrs := make([]types.Address, 0, len(g.Alloc))
	values := make(map[types.Address]uint64, len(g.Alloc))
	for addrStr, v := range g.Alloc {
		addr, _ := types.ParseAddress(addrStr)
		if _, dup := values[addr]; dup {
			return nil, fmt.Errorf("alloc address %s listed twice", addr)
		}
		addrs = append(addrs, addr)
		values[addr] = v
	}
	sort.Slice(addrs, func(i, j int) bool {
		return string(addrs[i][:]) < string(addrs[j][:])
	})

	entries := make([]ledger.Entry, len(addrs))
	for i, addr := range addrs {
		v := values[addr]
		entries[i] = ledger.Entry{
			Pointer: types.UtxoPointer{TxID: txID, Index: uint32(i), Value: v},
			Output:  tx.Output{Address: addr, Value: v},
		}
	}
	return entries, nil
}
