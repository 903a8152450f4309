package config

import (
	"encoding/hex"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

func TestGenesis_Validate_MainnetValid(t *testing.T) {
	g := MainnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("mainnet genesis should be valid: %v", err)
	}
}

func TestGenesis_Validate_TestnetValid(t *testing.T) {
	g := TestnetGenesis()
	if err := g.Validate(); err != nil {
		t.Errorf("testnet genesis should be valid: %v", err)
	}
}

func TestTestnetIdentity_Consistent(t *testing.T) {
	key, err := crypto.PrivateKeyFromHex(TestnetPrivKey)
	if err != nil {
		t.Fatalf("PrivateKeyFromHex: %v", err)
	}
	if got := hex.EncodeToString(key.PublicKey()); got != TestnetPubKey {
		t.Errorf("pubkey = %s, want %s", got, TestnetPubKey)
	}
	if got := key.Address().String(); got != TestnetAddress {
		t.Errorf("address = %s, want %s", got, TestnetAddress)
	}
}

func TestGenesis_Validate_Rejects(t *testing.T) {
	addr := strings.Repeat("11", types.AddressSize)
	other := strings.Repeat("22", types.AddressSize)

	tests := []struct {
		name string
		g    Genesis
	}{
		{name: "missing chain id", g: Genesis{Alloc: map[string]uint64{addr: 1}}},
		{name: "chain id with separator", g: Genesis{ChainID: "a/u", Alloc: map[string]uint64{addr: 1}}},
		{name: "chain id with space", g: Genesis{ChainID: "a u", Alloc: map[string]uint64{addr: 1}}},
		{name: "chain id too long", g: Genesis{ChainID: strings.Repeat("x", MaxChainIDLen+1), Alloc: map[string]uint64{addr: 1}}},
		{name: "bad address", g: Genesis{ChainID: "x", Alloc: map[string]uint64{"nope": 1}}},
		{name: "zero alloc", g: Genesis{ChainID: "x", Alloc: map[string]uint64{addr: 0}}},
		{name: "overflow", g: Genesis{ChainID: "x", Alloc: map[string]uint64{addr: math.MaxUint64, other: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.g.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestGenesis_Validate_ChainIDCharset(t *testing.T) {
	addr := strings.Repeat("11", types.AddressSize)
	for _, id := range []string{"a", "klingnet-ledger-testnet-1", "Net_2.b", strings.Repeat("z", MaxChainIDLen)} {
		g := Genesis{ChainID: id, Alloc: map[string]uint64{addr: 1}}
		if err := g.Validate(); err != nil {
			t.Errorf("Validate(%q): %v", id, err)
		}
	}
}

func TestGenesis_Validate_OverflowWrapsLedgerError(t *testing.T) {
	g := Genesis{ChainID: "x", Alloc: map[string]uint64{
		strings.Repeat("11", types.AddressSize): math.MaxUint64,
		strings.Repeat("22", types.AddressSize): math.MaxUint64,
	}}
	if err := g.Validate(); !errors.Is(err, ledger.ErrValueOverflow) {
		t.Errorf("Validate() = %v, want ErrValueOverflow", err)
	}
}

func TestGenesis_Entries_Deterministic(t *testing.T) {
	g := &Genesis{
		ChainID: "test",
		Alloc: map[string]uint64{
			strings.Repeat("cc", types.AddressSize): 30,
			strings.Repeat("aa", types.AddressSize): 10,
			strings.Repeat("bb", types.AddressSize): 20,
		},
	}

	entries, err := g.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len = %d, want 3", len(entries))
	}

	txID, err := g.TxID()
	if err != nil {
		t.Fatalf("TxID: %v", err)
	}
	wantValues := []uint64{10, 20, 30}
	for i, e := range entries {
		if e.Pointer.TxID != txID {
			t.Errorf("entry %d txid = %s, want %s", i, e.Pointer.TxID, txID)
		}
		if e.Pointer.Index != uint32(i) {
			t.Errorf("entry %d index = %d", i, e.Pointer.Index)
		}
		if e.Pointer.Value != wantValues[i] || e.Output.Value != wantValues[i] {
			t.Errorf("entry %d value = %d/%d, want %d", i, e.Pointer.Value, e.Output.Value, wantValues[i])
		}
	}

	again, err := g.Entries()
	if err != nil {
		t.Fatalf("Entries again: %v", err)
	}
	for i := range entries {
		if entries[i] != again[i] {
			t.Errorf("entry %d differs between calls", i)
		}
	}

	set, err := ledger.NewSetFrom(entries)
	if err != nil {
		t.Fatalf("NewSetFrom: %v", err)
	}
	total, err := set.Total()
	if err != nil || total != 60 {
		t.Errorf("Total = %d, %v; want 60", total, err)
	}
}

func TestGenesis_TxID_DiffersPerNetwork(t *testing.T) {
	a, err := MainnetGenesis().TxID()
	if err != nil {
		t.Fatal(err)
	}
	b, err := TestnetGenesis().TxID()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("mainnet and testnet genesis ids should differ")
	}
}

func TestGenesis_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.json")
	g := TestnetGenesis()
	if err := g.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadGenesis(path)
	if err != nil {
		t.Fatalf("LoadGenesis: %v", err)
	}
	h1, _ := g.Hash()
	h2, _ := loaded.Hash()
	if h1 != h2 {
		t.Errorf("hash after reload = %s, want %s", h2, h1)
	}
}

func TestLoadGenesis_Missing(t *testing.T) {
	if _, err := LoadGenesis(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
