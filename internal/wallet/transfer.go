package wallet

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoUTXOs           = errors.New("no UTXOs available")
)

// Selection is the set of entries chosen to fund a payment.
type Selection struct {
	Entries []ledger.Entry
	Total   uint64 // sum of selected values
	Change  uint64 // Total - target
}

// SelectEntries picks unspent entries covering target. It compares the
// smallest single entry that covers target with largest-first
// accumulation and keeps whichever leaves less change.
func SelectEntries(entries []ledger.Entry, target uint64) (*Selection, error) {
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]ledger.Entry, 0, len(entries))
	var available uint64
	for _, e := range entries {
		if e.Output.Value == 0 {
			continue
		}
		candidates = append(candidates, e)
		available = saturatingAdd(available, e.Output.Value)
	}
	if len(candidates) == 0 {
		return nil, ErrNoUTXOs
	}
	if available < target {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, available, target)
	}

	// Ascending by value, ties by pointer for a deterministic result.
	sort.Slice(candidates, func(i, j int) bool {
		vi, vj := candidates[i].Output.Value, candidates[j].Output.Value
		if vi != vj {
			return vi < vj
		}
		return candidates[i].Pointer.Compare(candidates[j].Pointer) < 0
	})

	var single *Selection
	for _, e := range candidates {
		if e.Output.Value >= target {
			single = &Selection{
				Entries: []ledger.Entry{e},
				Total:   e.Output.Value,
				Change:  e.Output.Value - target,
			}
			break
		}
	}

	var accum *Selection
	var picked []ledger.Entry
	var total uint64
	for i := len(candidates) - 1; i >= 0; i-- {
		picked = append(picked, candidates[i])
		total += candidates[i].Output.Value
		if total >= target {
			accum = &Selection{Entries: picked, Total: total, Change: total - target}
			break
		}
	}

	if single != nil && single.Change <= accum.Change {
		return single, nil
	}
	return accum, nil
}

// Transfer describes a payment from wallet-owned entries.
type Transfer struct {
	To      types.Address
	Amount  uint64
	Change  types.Address // receives Selection.Change when non-zero
	Entries []ledger.Entry
	Signers map[types.Address]crypto.Signer
}

// Build selects inputs, adds the payment and change outputs and signs every
// input with the key owning it. Input and output sums are equal, as the
// ledger requires.
func (t *Transfer) Build() (*tx.Transaction, *Selection, error) {
	if t.To.IsZero() {
		return nil, nil, fmt.Errorf("recipient address is required")
	}

	sel, err := SelectEntries(t.Entries, t.Amount)
	if err != nil {
		return nil, nil, err
	}
	if len(sel.Entries) > tx.MaxInputs {
		return nil, nil, fmt.Errorf("%w: payment needs %d inputs", tx.ErrTooManyInputs, len(sel.Entries))
	}

	b := tx.NewBuilder()
	owners := make(map[types.UtxoPointer]types.Address, len(sel.Entries))
	for _, e := range sel.Entries {
		b.AddInput(e.Pointer)
		owners[e.Pointer] = e.Output.Address
	}
	b.AddOutput(t.To, t.Amount)
	if sel.Change > 0 {
		if t.Change.IsZero() {
			return nil, nil, fmt.Errorf("change of %d needs a change address", sel.Change)
		}
		b.AddOutput(t.Change, sel.Change)
	}

	if err := b.SignMulti(t.Signers, owners); err != nil {
		return nil, nil, fmt.Errorf("sign transfer: %w", err)
	}
	return b.Build(), sel, nil
}

func saturatingAdd(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return ^uint64(0)
	}
	return sum
}
