// Package wallet holds ledger keys: BIP-39 seeds sealed on disk, BIP-44
// derivation of signing keys and construction of signed transfers.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	// MnemonicEntropyBits yields a 24-word mnemonic.
	MnemonicEntropyBits = 256

	// SeedSize is the length of a BIP-39 seed (512 bits).
	SeedSize = 64
)

// ErrInvalidMnemonic is returned for a phrase that fails the BIP-39 checksum.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// NewMnemonic creates a fresh 24-word BIP-39 mnemonic.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic collapses whitespace and lowercases the phrase.
func NormalizeMnemonic(mnemonic string) string {
	return strings.ToLower(strings.Join(strings.Fields(mnemonic), " "))
}

// ValidMnemonic reports whether mnemonic passes BIP-39 validation.
func ValidMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(mnemonic))
}

// SeedFromMnemonic derives the 64-byte seed for mnemonic and an optional
// BIP-39 passphrase.
func SeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return seed, nil
}
