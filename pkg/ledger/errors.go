package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Kind identifies the rule a rejected transaction violated.
type Kind uint8

// Rejection kinds. The set is closed.
const (
	KindInputDoesNotResolve Kind = iota + 1
	KindDoubleSpend
	KindInputWasAlreadySet
	KindInvalidSignature
	KindInvalidTxSignature
	KindTransactionSumIsNonZero
	KindNotEnoughSignatures
	KindZeroOutput
)

var kindNames = [...]string{
	KindInputDoesNotResolve:     "input_does_not_resolve",
	KindDoubleSpend:             "double_spend",
	KindInputWasAlreadySet:      "input_was_already_set",
	KindInvalidSignature:        "invalid_signature",
	KindInvalidTxSignature:      "invalid_tx_signature",
	KindTransactionSumIsNonZero: "transaction_sum_is_non_zero",
	KindNotEnoughSignatures:     "not_enough_signatures",
	KindZeroOutput:              "zero_output",
}

// Kinds lists every rejection kind in declaration order.
var Kinds = []Kind{
	KindInputDoesNotResolve,
	KindDoubleSpend,
	KindInputWasAlreadySet,
	KindInvalidSignature,
	KindInvalidTxSignature,
	KindTransactionSumIsNonZero,
	KindNotEnoughSignatures,
	KindZeroOutput,
}

// String returns a stable snake_case label for the kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrInputDoesNotResolve     = &Error{Kind: KindInputDoesNotResolve}
	ErrDoubleSpend             = &Error{Kind: KindDoubleSpend}
	ErrInputWasAlreadySet      = &Error{Kind: KindInputWasAlreadySet}
	ErrInvalidSignature        = &Error{Kind: KindInvalidSignature}
	ErrInvalidTxSignature      = &Error{Kind: KindInvalidTxSignature}
	ErrTransactionSumIsNonZero = &Error{Kind: KindTransactionSumIsNonZero}
	ErrNotEnoughSignatures     = &Error{Kind: KindNotEnoughSignatures}
	ErrZeroOutput              = &Error{Kind: KindZeroOutput}

	// ErrValueOverflow is wrapped by a TransactionSumIsNonZero rejection
	// when a value sum does not fit in 64 bits.
	ErrValueOverflow = errors.New("value sum overflows uint64")
)

// Error is a transaction rejection. Which context fields are set depends on
// Kind:
//
//	InputDoesNotResolve      Pointer
//	DoubleSpend              Pointer, Output (first resolution)
//	InputWasAlreadySet       Pointer, Original, Output (replacement)
//	InvalidSignature         Pointer, Output, Witness
//	InvalidTxSignature       Witness
//	TransactionSumIsNonZero  InputSum, OutputSum, Err (on overflow)
//	NotEnoughSignatures      Required, Actual
//	ZeroOutput               Output
type Error struct {
	Kind      Kind
	Pointer   types.UtxoPointer
	Output    tx.Output
	Original  tx.Output
	Witness   tx.Witness
	InputSum  uint64
	OutputSum uint64
	Required  int
	Actual    int
	Err       error
}

// Error returns the stable human-readable message of the rejection.
func (e *Error) Error() string {
	switch e.Kind {
	case KindInputDoesNotResolve:
		return "input does not resolve to an utxo"
	case KindDoubleSpend:
		return "utxo spent twice in the same transaction"
	case KindInputWasAlreadySet:
		return "input was already present in the ledger"
	case KindInvalidSignature:
		return "input is not signed properly"
	case KindInvalidTxSignature:
		return "transaction was not signed"
	case KindTransactionSumIsNonZero:
		msg := fmt.Sprintf("transaction values do not match: input is %d, output is %d", e.InputSum, e.OutputSum)
		if e.Err != nil {
			msg += ": " + e.Err.Error()
		}
		return msg
	case KindNotEnoughSignatures:
		return fmt.Sprintf("transaction has not enough signatures: %d out of %d", e.Actual, e.Required)
	case KindZeroOutput:
		return "transaction output has a value of zero"
	}
	return "unknown ledger error: " + e.Kind.String()
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Detail renders the rejection together with its context for logs.
func (e *Error) Detail() string {
	var b strings.Builder
	b.WriteString(e.Error())
	switch e.Kind {
	case KindInputDoesNotResolve:
		fmt.Fprintf(&b, " (pointer %s)", e.Pointer)
	case KindDoubleSpend:
		fmt.Fprintf(&b, " (pointer %s, output %s)", e.Pointer, formatOutput(e.Output))
	case KindInputWasAlreadySet:
		fmt.Fprintf(&b, " (pointer %s, original %s, new %s)", e.Pointer, formatOutput(e.Original), formatOutput(e.Output))
	case KindInvalidSignature:
		fmt.Fprintf(&b, " (pointer %s, output %s, pubkey %x)", e.Pointer, formatOutput(e.Output), e.Witness.PubKey)
	case KindInvalidTxSignature:
		fmt.Fprintf(&b, " (pubkey %x)", e.Witness.PubKey)
	case KindZeroOutput:
		fmt.Fprintf(&b, " (address %s)", e.Output.Address)
	}
	return b.String()
}

func formatOutput(o tx.Output) string {
	return fmt.Sprintf("%s:%d", o.Address, o.Value)
}

// InputDoesNotResolve reports an input absent from the UTXO set.
func InputDoesNotResolve(p types.UtxoPointer) *Error {
	return &Error{Kind: KindInputDoesNotResolve, Pointer: p}
}

// DoubleSpend reports a pointer consumed twice in one transaction.
func DoubleSpend(p types.UtxoPointer, first tx.Output) *Error {
	return &Error{Kind: KindDoubleSpend, Pointer: p, Output: first}
}

// InputWasAlreadySet reports a pointer that already maps to original
// being given a second, different output.
func InputWasAlreadySet(p types.UtxoPointer, original, replacement tx.Output) *Error {
	return &Error{Kind: KindInputWasAlreadySet, Pointer: p, Original: original, Output: replacement}
}

// InvalidSignature reports a witness that does not authorize its input.
func InvalidSignature(p types.UtxoPointer, out tx.Output, w tx.Witness) *Error {
	return &Error{Kind: KindInvalidSignature, Pointer: p, Output: out, Witness: w}
}

// InvalidTxSignature reports a witness whose co-signature over the
// transaction id does not verify.
func InvalidTxSignature(w tx.Witness) *Error {
	return &Error{Kind: KindInvalidTxSignature, Witness: w}
}

// TransactionSumIsNonZero reports unequal input and output sums.
func TransactionSumIsNonZero(in, out uint64) *Error {
	return &Error{Kind: KindTransactionSumIsNonZero, InputSum: in, OutputSum: out}
}

// NotEnoughSignatures reports a witness count different from the input count.
func NotEnoughSignatures(required, actual int) *Error {
	return &Error{Kind: KindNotEnoughSignatures, Required: required, Actual: actual}
}

// ZeroOutput reports an output carrying no value.
func ZeroOutput(out tx.Output) *Error {
	return &Error{Kind: KindZeroOutput, Output: out}
}

// AsError extracts the rejection from err, if there is one.
func AsError(err error) (*Error, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}
