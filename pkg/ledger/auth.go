package ledger

import (
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Authorizer decides whether a witness may spend an output.
type Authorizer interface {
	// Authorize reports whether w proves ownership of out and signs msg,
	// the per-input message of the spending transaction.
	Authorize(out tx.Output, w tx.Witness, msg []byte) bool
	// Cosigns reports whether w signs the transaction id.
	Cosigns(w tx.Witness, txID types.Hash) bool
}

// P2PKH authorizes spends when the witness public key hashes to the
// output address and the Schnorr signatures verify.
type P2PKH struct{}

// Authorize implements Authorizer.
func (P2PKH) Authorize(out tx.Output, w tx.Witness, msg []byte) bool {
	if len(w.PubKey) != crypto.PubKeySize {
		return false
	}
	if crypto.AddressFromPubKey(w.PubKey) != out.Address {
		return false
	}
	return crypto.VerifySignature(msg, w.InputSig, w.PubKey)
}

// Cosigns implements Authorizer.
func (P2PKH) Cosigns(w tx.Witness, txID types.Hash) bool {
	return crypto.VerifySignature(txID[:], w.TxSig, w.PubKey)
}
