package wallet

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// BIP-44 path: m/44'/8888'/account'/change/index.
const (
	PurposeBIP44 = bip32.FirstHardenedChild + 44
	CoinType     = bip32.FirstHardenedChild + 8888

	ChangeExternal uint32 = 0 // receiving addresses
	ChangeInternal uint32 = 1 // change outputs
)

// Keychain derives ledger signing keys for one BIP-44 account.
type Keychain struct {
	account *bip32.Key
}

// NewKeychain opens account of the HD tree rooted at seed.
func NewKeychain(seed []byte, account uint32) (*Keychain, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	if account >= bip32.FirstHardenedChild {
		return nil, fmt.Errorf("account index %d out of range", account)
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}

	k := master
	for _, idx := range []uint32{PurposeBIP44, CoinType, bip32.FirstHardenedChild + account} {
		if k, err = k.NewChildKey(idx); err != nil {
			return nil, fmt.Errorf("derive account: %w", err)
		}
	}
	return &Keychain{account: k}, nil
}

// Key returns the signing key at change/index.
func (kc *Keychain) Key(change, index uint32) (*crypto.PrivateKey, error) {
	branch, err := kc.account.NewChildKey(change)
	if err != nil {
		return nil, fmt.Errorf("derive change %d: %w", change, err)
	}
	leaf, err := branch.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive index %d: %w", index, err)
	}

	// bip32 private keys are 33 bytes with a leading zero.
	raw := leaf.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// Address returns the address at change/index.
func (kc *Keychain) Address(change, index uint32) (types.Address, error) {
	key, err := kc.Key(change, index)
	if err != nil {
		return types.Address{}, err
	}
	defer key.Zero()
	return key.Address(), nil
}
