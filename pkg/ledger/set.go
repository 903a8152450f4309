// Package ledger implements UTXO transaction validation as a pure state
// transition: given a UTXO set and a transaction it either rejects the
// transaction with an *Error or produces the next set.
package ledger

import (
	"math"
	"sort"

	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Entry is one unspent output and the pointer it lives under.
type Entry struct {
	Pointer types.UtxoPointer `json:"pointer"`
	Output  tx.Output         `json:"output"`
}

// View is read-only access to a UTXO set.
type View interface {
	Resolve(p types.UtxoPointer) (tx.Output, bool)
}

// Set maps pointers to unspent outputs. It is not safe for concurrent
// mutation; the owner serializes access.
type Set struct {
	utxos map[types.UtxoPointer]tx.Output
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{utxos: make(map[types.UtxoPointer]tx.Output)}
}

// NewSetFrom builds a set from entries. Duplicate pointers are rejected.
func NewSetFrom(entries []Entry) (*Set, error) {
	s := &Set{utxos: make(map[types.UtxoPointer]tx.Output, len(entries))}
	for _, e := range entries {
		if err := s.Insert(e.Pointer, e.Output); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Resolve looks up the output a pointer refers to.
func (s *Set) Resolve(p types.UtxoPointer) (tx.Output, bool) {
	out, ok := s.utxos[p]
	return out, ok
}

// Insert adds an output. A pointer that is already present is never
// overwritten.
func (s *Set) Insert(p types.UtxoPointer, out tx.Output) error {
	if existing, ok := s.utxos[p]; ok {
		return InputWasAlreadySet(p, existing, out)
	}
	s.utxos[p] = out
	return nil
}

// Remove deletes a pointer and returns the output it held.
func (s *Set) Remove(p types.UtxoPointer) (tx.Output, bool) {
	out, ok := s.utxos[p]
	if ok {
		delete(s.utxos, p)
	}
	return out, ok
}

// Len returns the number of unspent outputs.
func (s *Set) Len() int {
	return len(s.utxos)
}

// Clone returns an independent copy of the set.
func (s *Set) Clone() *Set {
	c := &Set{utxos: make(map[types.UtxoPointer]tx.Output, len(s.utxos))}
	for p, out := range s.utxos {
		c.utxos[p] = out
	}
	return c
}

// Entries returns every entry ordered by pointer.
func (s *Set) Entries() []Entry {
	entries := make([]Entry, 0, len(s.utxos))
	for p, out := range s.utxos {
		entries = append(entries, Entry{Pointer: p, Output: out})
	}
	sortEntries(entries)
	return entries
}

// Total returns the sum of all unspent values.
func (s *Set) Total() (uint64, error) {
	var total uint64
	for _, out := range s.utxos {
		if total > math.MaxUint64-out.Value {
			return 0, ErrValueOverflow
		}
		total += out.Value
	}
	return total, nil
}

// Equal reports whether both sets hold exactly the same entries.
func (s *Set) Equal(other *Set) bool {
	if len(s.utxos) != len(other.utxos) {
		return false
	}
	for p, out := range s.utxos {
		if o, ok := other.utxos[p]; !ok || o != out {
			return false
		}
	}
	return true
}

// Commit applies a diff in place. Every removal and insertion is checked
// before the set is touched, so a failed commit leaves it unchanged.
func (s *Set) Commit(d *Diff) error {
	spent := make(map[types.UtxoPointer]struct{}, len(d.Spent))
	for _, e := range d.Spent {
		out, ok := s.utxos[e.Pointer]
		if !ok {
			return InputDoesNotResolve(e.Pointer)
		}
		if _, dup := spent[e.Pointer]; dup {
			return DoubleSpend(e.Pointer, out)
		}
		if out != e.Output {
			return InputWasAlreadySet(e.Pointer, out, e.Output)
		}
		spent[e.Pointer] = struct{}{}
	}
	created := make(map[types.UtxoPointer]struct{}, len(d.Created))
	for _, e := range d.Created {
		if existing, ok := s.utxos[e.Pointer]; ok {
			if _, freed := spent[e.Pointer]; !freed {
				return InputWasAlreadySet(e.Pointer, existing, e.Output)
			}
		}
		if _, dup := created[e.Pointer]; dup {
			return InputWasAlreadySet(e.Pointer, e.Output, e.Output)
		}
		created[e.Pointer] = struct{}{}
	}

	for _, e := range d.Spent {
		delete(s.utxos, e.Pointer)
	}
	for _, e := range d.Created {
		s.utxos[e.Pointer] = e.Output
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Pointer.Compare(entries[j].Pointer) < 0
	})
}
