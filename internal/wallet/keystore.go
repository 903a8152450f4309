package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

const (
	walletExt     = ".wallet"
	walletVersion = 1
)

// Keystore errors.
var (
	ErrWalletExists   = errors.New("wallet already exists")
	ErrWalletNotFound = errors.New("wallet not found")
)

// AddressEntry records one derived address.
type AddressEntry struct {
	Change  uint32        `json:"change"`
	Index   uint32        `json:"index"`
	Address types.Address `json:"address"`
	Label   string        `json:"label,omitempty"`
}

type walletFile struct {
	Version      int            `json:"version"`
	CreatedAt    time.Time      `json:"created_at"`
	Seed         *sealed        `json:"seed"`
	Addresses    []AddressEntry `json:"addresses"`
	NextExternal uint32         `json:"next_external"`
	NextChange   uint32         `json:"next_change"`
}

// Keystore keeps sealed wallets as one JSON file each in a directory.
type Keystore struct {
	dir string
}

// NewKeystore opens dir, creating it if needed.
func NewKeystore(dir string) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &Keystore{dir: dir}, nil
}

func (ks *Keystore) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid wallet name %q", name)
	}
	return filepath.Join(ks.dir, name+walletExt), nil
}

// Create seals seed under passphrase as wallet name and derives its first
// receiving address.
func (ks *Keystore) Create(name string, seed, passphrase []byte, params KDFParams) (AddressEntry, error) {
	path, err := ks.path(name)
	if err != nil {
		return AddressEntry{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return AddressEntry{}, fmt.Errorf("%w: %s", ErrWalletExists, name)
	}

	kc, err := NewKeychain(seed, 0)
	if err != nil {
		return AddressEntry{}, err
	}
	s, err := seal(seed, passphrase, name, params)
	if err != nil {
		return AddressEntry{}, fmt.Errorf("seal seed: %w", err)
	}

	wf := &walletFile{
		Version:   walletVersion,
		CreatedAt: time.Now().UTC(),
		Seed:      s,
	}
	entry, err := wf.derive(kc, ChangeExternal, "default")
	if err != nil {
		return AddressEntry{}, err
	}
	return entry, ks.write(path, wf)
}

// Unlock opens wallet name and returns its account-0 keychain.
func (ks *Keystore) Unlock(name string, passphrase []byte) (*Keychain, error) {
	_, wf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	seed, err := wf.Seed.open(passphrase, name)
	if err != nil {
		return nil, err
	}
	defer zero(seed)
	return NewKeychain(seed, 0)
}

// NewAddress derives and records the next address on the given branch.
func (ks *Keystore) NewAddress(name string, kc *Keychain, change uint32, label string) (AddressEntry, error) {
	path, wf, err := ks.read(name)
	if err != nil {
		return AddressEntry{}, err
	}
	entry, err := wf.derive(kc, change, label)
	if err != nil {
		return AddressEntry{}, err
	}
	return entry, ks.write(path, wf)
}

// Addresses lists the recorded addresses of wallet name.
func (ks *Keystore) Addresses(name string) ([]AddressEntry, error) {
	_, wf, err := ks.read(name)
	if err != nil {
		return nil, err
	}
	return wf.Addresses, nil
}

// Signers derives the signing key of every recorded address.
func (ks *Keystore) Signers(name string, kc *Keychain) (map[types.Address]crypto.Signer, error) {
	entries, err := ks.Addresses(name)
	if err != nil {
		return nil, err
	}
	signers := make(map[types.Address]crypto.Signer, len(entries))
	for _, e := range entries {
		key, err := kc.Key(e.Change, e.Index)
		if err != nil {
			return nil, err
		}
		if key.Address() != e.Address {
			return nil, fmt.Errorf("address %s does not match keychain at %d/%d", e.Address, e.Change, e.Index)
		}
		signers[e.Address] = key
	}
	return signers, nil
}

// List returns the wallet names in the keystore, sorted.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.dir)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == walletExt {
			names = append(names, strings.TrimSuffix(e.Name(), walletExt))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes wallet name.
func (ks *Keystore) Delete(name string) error {
	path, err := ks.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrWalletNotFound, name)
		}
		return err
	}
	return nil
}

func (wf *walletFile) derive(kc *Keychain, change uint32, label string) (AddressEntry, error) {
	var next *uint32
	switch change {
	case ChangeExternal:
		next = &wf.NextExternal
	case ChangeInternal:
		next = &wf.NextChange
	default:
		return AddressEntry{}, fmt.Errorf("invalid change branch %d", change)
	}

	addr, err := kc.Address(change, *next)
	if err != nil {
		return AddressEntry{}, err
	}
	entry := AddressEntry{Change: change, Index: *next, Address: addr, Label: label}
	wf.Addresses = append(wf.Addresses, entry)
	*next++
	return entry, nil
}

func (ks *Keystore) read(name string) (string, *walletFile, error) {
	path, err := ks.path(name)
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, fmt.Errorf("%w: %s", ErrWalletNotFound, name)
		}
		return "", nil, fmt.Errorf("read wallet: %w", err)
	}
	var wf walletFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return "", nil, fmt.Errorf("parse wallet: %w", err)
	}
	if wf.Version != walletVersion {
		return "", nil, fmt.Errorf("unsupported wallet version: %d", wf.Version)
	}
	if wf.Seed == nil {
		return "", nil, fmt.Errorf("wallet %s has no seed", name)
	}
	return path, &wf, nil
}

func (ks *Keystore) write(path string, wf *walletFile) error {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	return os.Rename(tmp, path)
}
