package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{tx: &Transaction{}}
}

// AddInput adds an input spending the given pointer.
func (b *Builder) AddInput(p types.UtxoPointer) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, p)
	return b
}

// AddOutput adds an output paying value to addr.
func (b *Builder) AddOutput(addr types.Address, value uint64) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Address: addr, Value: value})
	return b
}

// Sign attaches a witness for every input using a single key.
func (b *Builder) Sign(key crypto.Signer) error {
	signers := make([]crypto.Signer, len(b.tx.Inputs))
	for i := range signers {
		signers[i] = key
	}
	return b.SignInputs(signers)
}

// SignInputs attaches one witness per input, signed by signers[i].
// Any previously attached witnesses are replaced.
func (b *Builder) SignInputs(signers []crypto.Signer) error {
	if len(signers) != len(b.tx.Inputs) {
		return fmt.Errorf("%w: %d inputs, %d signers", ErrWitnessCount, len(b.tx.Inputs), len(signers))
	}
	id := b.tx.ID()
	msgs := b.tx.InputMessages()

	// Same key over the same id always yields the same co-signature.
	txSigs := make(map[string][]byte)

	witnesses := make([]Witness, len(signers))
	for i, s := range signers {
		pub := s.PublicKey()
		inSig, err := s.Sign(msgs[i][:])
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}
		txSig, ok := txSigs[string(pub)]
		if !ok {
			txSig, err = s.Sign(id[:])
			if err != nil {
				return fmt.Errorf("sign tx for input %d: %w", i, err)
			}
			txSigs[string(pub)] = txSig
		}
		witnesses[i] = Witness{PubKey: pub, InputSig: inSig, TxSig: txSig}
	}
	b.tx.Witnesses = witnesses
	return nil
}

// SignMulti signs each input with the key owning the address it spends from.
// owners maps each input pointer to its owning address.
func (b *Builder) SignMulti(
	signers map[types.Address]crypto.Signer,
	owners map[types.UtxoPointer]types.Address,
) error {
	ordered := make([]crypto.Signer, len(b.tx.Inputs))
	for i, p := range b.tx.Inputs {
		addr, ok := owners[p]
		if !ok {
			return fmt.Errorf("no address mapping for input %d (%s)", i, p)
		}
		key, ok := signers[addr]
		if !ok {
			return fmt.Errorf("no signer for address %s (input %d)", addr, i)
		}
		ordered[i] = key
	}
	return b.SignInputs(ordered)
}

// Build returns the constructed transaction.
// It is not validated; use the ledger to check it against a UTXO set.
func (b *Builder) Build() *Transaction {
	return b.tx
}
