package ledger

import (
	"math"

	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// DefaultAuthorizer is used by Apply.
var DefaultAuthorizer Authorizer = P2PKH{}

// Apply validates t against set and returns the resulting set.
// The input set is never modified; on rejection the error is an *Error.
func Apply(set *Set, t *tx.Transaction) (*Set, error) {
	return ApplyWith(set, t, DefaultAuthorizer)
}

// ApplyWith is Apply with an explicit Authorizer.
func ApplyWith(set *Set, t *tx.Transaction, auth Authorizer) (*Set, error) {
	d, err := Validate(set, t, auth)
	if err != nil {
		return nil, err
	}
	next := set.Clone()
	if err := next.Commit(d); err != nil {
		return nil, err
	}
	return next, nil
}

// Validate checks t against view and returns the diff that applying it
// would produce. Checks run in a fixed order and the first failure is
// returned:
//
//  1. inputs are resolved in order; the first one that does not resolve
//     fails, and the second occurrence of a repeated input fails with
//     InputWasAlreadySet if it resolved differently, else DoubleSpend
//  2. there is exactly one witness per input
//  3. each witness authorizes its input
//  4. each witness co-signs the transaction id
//  5. no output has zero value
//  6. input and output sums are equal and do not overflow
//
// A new output whose pointer is already unspent in view is rejected with
// InputWasAlreadySet.
func Validate(view View, t *tx.Transaction, auth Authorizer) (*Diff, error) {
	resolved := make(map[types.UtxoPointer]tx.Output, len(t.Inputs))
	spent := make([]Entry, 0, len(t.Inputs))
	for _, p := range t.Inputs {
		out, ok := view.Resolve(p)
		if !ok {
			return nil, InputDoesNotResolve(p)
		}
		if first, seen := resolved[p]; seen {
			if first != out {
				return nil, InputWasAlreadySet(p, first, out)
			}
			return nil, DoubleSpend(p, first)
		}
		resolved[p] = out
		spent = append(spent, Entry{Pointer: p, Output: out})
	}

	pairs, err := t.Pairs()
	if err != nil {
		return nil, NotEnoughSignatures(len(t.Inputs), len(t.Witnesses))
	}

	id := t.ID()
	msgs := t.InputMessages()
	for _, pw := range pairs {
		out := resolved[pw.Pointer]
		if !auth.Authorize(out, pw.Witness, msgs[pw.Index][:]) {
			return nil, InvalidSignature(pw.Pointer, out, pw.Witness)
		}
	}
	for _, pw := range pairs {
		if !auth.Cosigns(pw.Witness, id) {
			return nil, InvalidTxSignature(pw.Witness)
		}
	}

	for _, out := range t.Outputs {
		if out.Value == 0 {
			return nil, ZeroOutput(out)
		}
	}

	if err := checkSums(spent, t.Outputs); err != nil {
		return nil, err
	}

	created := make([]Entry, len(t.Outputs))
	for i, out := range t.Outputs {
		p := types.UtxoPointer{TxID: id, Index: uint32(i), Value: out.Value}
		if existing, ok := view.Resolve(p); ok {
			if _, consumed := resolved[p]; !consumed {
				return nil, InputWasAlreadySet(p, existing, out)
			}
		}
		created[i] = Entry{Pointer: p, Output: out}
	}

	return &Diff{TxID: id, Spent: spent, Created: created}, nil
}

// checkSums verifies conservation of value with overflow detection.
func checkSums(spent []Entry, outputs []tx.Output) error {
	var in, out uint64
	overflow := false
	for _, e := range spent {
		if in > math.MaxUint64-e.Output.Value {
			overflow = true
			break
		}
		in += e.Output.Value
	}
	if !overflow {
		for _, o := range outputs {
			if out > math.MaxUint64-o.Value {
				overflow = true
				break
			}
			out += o.Value
		}
	}
	if overflow {
		e := TransactionSumIsNonZero(in, out)
		e.Err = ErrValueOverflow
		return e
	}
	if in != out {
		return TransactionSumIsNonZero(in, out)
	}
	return nil
}
