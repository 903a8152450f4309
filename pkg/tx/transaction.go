// Package tx defines the transaction model and its canonical encoding.
package tx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Structural limits enforced by Transaction.CheckLimits.
const (
	MaxInputs  = 2048
	MaxOutputs = 2048
)

// Domain tag for per-input signature messages.
const inputTag = "klingnet-ledger/input"

// Structural errors.
var (
	ErrWitnessCount   = errors.New("witness count does not match input count")
	ErrIndexRange     = errors.New("index out of range")
	ErrTooManyInputs  = errors.New("too many inputs")
	ErrTooManyOutputs = errors.New("too many outputs")
)

// Output is a value locked to an address.
type Output struct {
	Address types.Address `json:"address"`
	Value   uint64        `json:"value"`
}

// Transaction consumes existing UTXOs and creates new outputs.
// Witnesses are positional: Witnesses[i] authorizes Inputs[i].
type Transaction struct {
	Inputs    []types.UtxoPointer `json:"inputs"`
	Outputs   []Output            `json:"outputs"`
	Witnesses []Witness           `json:"witnesses"`
}

// InputWitness pairs an input pointer with the witness that authorizes it.
type InputWitness struct {
	Index   int
	Pointer types.UtxoPointer
	Witness Witness
}

// SigningBytes returns the canonical byte representation used for signing.
// Witnesses are excluded.
// Format: input_count(4) | [txid(32) + index(4) + value(8)]... | output_count(4) | [address(20) + value(8)]...
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 8+len(t.Inputs)*types.PointerSize+len(t.Outputs)*(types.AddressSize+8))

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.TxID[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.Index)
		buf = binary.LittleEndian.AppendUint64(buf, in.Value)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf = append(buf, out.Address[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, out.Value)
	}
	return buf
}

// ID returns the transaction identifier: BLAKE3 of the signing bytes.
func (t *Transaction) ID() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// InputMessage returns the 32-byte message a witness signs to authorize
// input i. It commits to the transaction id, the input position and the
// pointer, so a signature cannot be moved to another input or transaction.
func (t *Transaction) InputMessage(i int) types.Hash {
	id := t.ID()
	return inputMessage(id, i, t.Inputs[i])
}

func inputMessage(id types.Hash, i int, p types.UtxoPointer) types.Hash {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], uint32(i))
	return crypto.TaggedHash(inputTag, id[:], idx[:], p.Bytes())
}

// InputMessages computes the message of every input with a single id hash.
func (t *Transaction) InputMessages() []types.Hash {
	id := t.ID()
	msgs := make([]types.Hash, len(t.Inputs))
	for i, p := range t.Inputs {
		msgs[i] = inputMessage(id, i, p)
	}
	return msgs
}

// OutputPointer returns the pointer output i is stored under once the
// transaction is applied.
func (t *Transaction) OutputPointer(i int) (types.UtxoPointer, error) {
	if i < 0 || i >= len(t.Outputs) {
		return types.UtxoPointer{}, fmt.Errorf("output %d: %w", i, ErrIndexRange)
	}
	return types.UtxoPointer{TxID: t.ID(), Index: uint32(i), Value: t.Outputs[i].Value}, nil
}

// Pairs zips inputs with their witnesses. The lengths must match.
func (t *Transaction) Pairs() ([]InputWitness, error) {
	if len(t.Inputs) != len(t.Witnesses) {
		return nil, fmt.Errorf("%w: %d inputs, %d witnesses", ErrWitnessCount, len(t.Inputs), len(t.Witnesses))
	}
	pairs := make([]InputWitness, len(t.Inputs))
	for i := range t.Inputs {
		pairs[i] = InputWitness{Index: i, Pointer: t.Inputs[i], Witness: t.Witnesses[i]}
	}
	return pairs, nil
}

// CheckLimits rejects transactions too large to process.
func (t *Transaction) CheckLimits() error {
	if len(t.Inputs) > MaxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(t.Inputs), MaxInputs)
	}
	if len(t.Outputs) > MaxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(t.Outputs), MaxOutputs)
	}
	return nil
}
