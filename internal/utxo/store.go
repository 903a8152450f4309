// Package utxo persists the ledger's unspent outputs with an address index.
package utxo

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO = []byte("u/") // u/<pointer(44)> -> Output JSON
	prefixAddr = []byte("a/") // a/<address(20)><pointer(44)> -> empty (index)
)

// ErrNotFound is returned when a pointer is not in the store.
var ErrNotFound = errors.New("utxo not found")

// Store is the persistent mirror of a ledger.Set.
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database.
func (s *Store) DB() storage.DB {
	return s.db
}

// utxoKey builds a storage key for a pointer: "u/" + pointer(44).
func utxoKey(p types.UtxoPointer) []byte {
	key := make([]byte, 0, len(prefixUTXO)+types.PointerSize)
	key = append(key, prefixUTXO...)
	return p.AppendBytes(key)
}

// addrKey builds an address index key: "a/" + addr(20) + pointer(44).
func addrKey(addr types.Address, p types.UtxoPointer) []byte {
	key := make([]byte, 0, len(prefixAddr)+types.AddressSize+types.PointerSize)
	key = append(key, prefixAddr...)
	key = append(key, addr[:]...)
	return p.AppendBytes(key)
}

func addrPrefix(addr types.Address) []byte {
	prefix := make([]byte, 0, len(prefixAddr)+types.AddressSize)
	prefix = append(prefix, prefixAddr...)
	return append(prefix, addr[:]...)
}

// Get retrieves the output stored under p.
func (s *Store) Get(p types.UtxoPointer) (tx.Output, error) {
	data, err := s.db.Get(utxoKey(p))
	if errors.Is(err, storage.ErrNotFound) {
		return tx.Output{}, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return tx.Output{}, fmt.Errorf("utxo get: %w", err)
	}
	var out tx.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return tx.Output{}, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return out, nil
}

// Has checks if a pointer is unspent.
func (s *Store) Has(p types.UtxoPointer) (bool, error) {
	return s.db.Has(utxoKey(p))
}

// ForEach iterates over all entries in pointer order.
func (s *Store) ForEach(fn func(ledger.Entry) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		p, err := types.PointerFromBytes(key[len(prefixUTXO):])
		if err != nil {
			return fmt.Errorf("utxo key: %w", err)
		}
		var out tx.Output
		if err := json.Unmarshal(value, &out); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(ledger.Entry{Pointer: p, Output: out})
	})
}

// Load reads the whole store into a ledger.Set.
func (s *Store) Load() (*ledger.Set, error) {
	set := ledger.NewSet()
	err := s.ForEach(func(e ledger.Entry) error {
		return set.Insert(e.Pointer, e.Output)
	})
	if err != nil {
		return nil, fmt.Errorf("load utxo set: %w", err)
	}
	return set, nil
}

// GetByAddress returns the entries locked to addr in pointer order.
func (s *Store) GetByAddress(addr types.Address) ([]ledger.Entry, error) {
	prefix := addrPrefix(addr)
	var entries []ledger.Entry
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		p, err := types.PointerFromBytes(key[len(prefix):])
		if err != nil {
			return nil // Malformed key, skip.
		}
		out, err := s.Get(p)
		if err != nil {
			return nil // Index ahead of data, skip.
		}
		entries = append(entries, ledger.Entry{Pointer: p, Output: out})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}
	return entries, nil
}

// Balance returns the total unspent value locked to addr.
func (s *Store) Balance(addr types.Address) (uint64, error) {
	entries, err := s.GetByAddress(addr)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, e := range entries {
		total += e.Output.Value
	}
	return total, nil
}

// StageEntries adds writes creating entries to b.
func (s *Store) StageEntries(b storage.Batch, entries []ledger.Entry) error {
	for _, e := range entries {
		data, err := json.Marshal(e.Output)
		if err != nil {
			return fmt.Errorf("utxo marshal: %w", err)
		}
		if err := b.Put(utxoKey(e.Pointer), data); err != nil {
			return fmt.Errorf("utxo put: %w", err)
		}
		if err := b.Put(addrKey(e.Output.Address, e.Pointer), []byte{}); err != nil {
			return fmt.Errorf("utxo index put: %w", err)
		}
	}
	return nil
}

// StageDiff adds the writes of d to b: spent entries and their index
// keys are deleted, created entries are written.
func (s *Store) StageDiff(b storage.Batch, d *ledger.Diff) error {
	for _, e := range d.Spent {
		if err := b.Delete(utxoKey(e.Pointer)); err != nil {
			return fmt.Errorf("utxo delete: %w", err)
		}
		if err := b.Delete(addrKey(e.Output.Address, e.Pointer)); err != nil {
			return fmt.Errorf("utxo index delete: %w", err)
		}
	}
	return s.StageEntries(b, d.Created)
}

// Commit writes d in one batch.
func (s *Store) Commit(d *ledger.Diff) error {
	b := storage.NewBatch(s.db)
	if err := s.StageDiff(b, d); err != nil {
		return err
	}
	return b.Commit()
}

// ClearAll removes all entries and their address index.
func (s *Store) ClearAll() error {
	b := storage.NewBatch(s.db)
	for _, prefix := range [][]byte{prefixUTXO, prefixAddr} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			return b.Delete(key)
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	return b.Commit()
}
