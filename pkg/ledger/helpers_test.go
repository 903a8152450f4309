package ledger

import (
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

type testKey struct {
	priv *crypto.PrivateKey
	addr types.Address
}

func newTestKey(t *testing.T) testKey {
	t.Helper()
	k, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return testKey{priv: k, addr: k.Address()}
}

// fund inserts an output of value owned by k under a fresh pointer.
func fund(t *testing.T, s *Set, k testKey, seed byte, value uint64) types.UtxoPointer {
	t.Helper()
	p := types.UtxoPointer{TxID: types.Hash{0xf0, seed}, Index: 0, Value: value}
	if err := s.Insert(p, tx.Output{Address: k.addr, Value: value}); err != nil {
		t.Fatalf("fund: %v", err)
	}
	return p
}

type spend struct {
	ptr types.UtxoPointer
	key testKey
}

// buildTx builds and signs a transaction; each input is signed by its key.
func buildTx(t *testing.T, inputs []spend, outputs []tx.Output) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder()
	signers := make([]crypto.Signer, len(inputs))
	for i, in := range inputs {
		b.AddInput(in.ptr)
		signers[i] = in.key.priv
	}
	for _, out := range outputs {
		b.AddOutput(out.Address, out.Value)
	}
	if err := b.SignInputs(signers); err != nil {
		t.Fatalf("SignInputs: %v", err)
	}
	return b.Build()
}

func requireKind(t *testing.T, err error, want Kind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s rejection, got nil", want)
	}
	le, ok := AsError(err)
	if !ok {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if le.Kind != want {
		t.Fatalf("kind = %s, want %s (%v)", le.Kind, want, err)
	}
	return le
}

// fakeView resolves pointers from a map, letting tests present states a
// Set can never hold.
type fakeView struct {
	resolve func(p types.UtxoPointer) (tx.Output, bool)
}

func (f fakeView) Resolve(p types.UtxoPointer) (tx.Output, bool) { return f.resolve(p) }

// allowAll accepts every witness.
type allowAll struct{}

func (allowAll) Authorize(tx.Output, tx.Witness, []byte) bool { return true }
func (allowAll) Cosigns(tx.Witness, types.Hash) bool           { return true }

func contains(s *Set, p types.UtxoPointer) bool {
	_, ok := s.Resolve(p)
	return ok
}

// byAddress returns the entries of s locked to addr, ordered by pointer.
func byAddress(s *Set, addr types.Address) []Entry {
	var entries []Entry
	for _, e := range s.Entries() {
		if e.Output.Address == addr {
			entries = append(entries, e)
		}
	}
	return entries
}
