package chain

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingnet-ledger/config"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/crypto"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

type fixture struct {
	chain   *Chain
	store   *utxo.Store
	key     *crypto.PrivateKey
	genesis *config.Genesis
	funding ledger.Entry
}

func testGenesis(t *testing.T, key *crypto.PrivateKey, value uint64) *config.Genesis {
	t.Helper()
	return &config.Genesis{
		ChainID:   "klingnet-ledger-test",
		ChainName: "Test",
		Timestamp: 1,
		Alloc:     map[string]uint64{key.Address().String(): value},
	}
}

func newFixture(t *testing.T, db storage.DB) *fixture {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	store := utxo.NewStore(db)
	c, err := New(store, Options{Network: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	gen := testGenesis(t, key, 1000)
	if err := c.InitGenesis(gen); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}

	entries, err := gen.Entries()
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("genesis entries = %d, want 1", len(entries))
	}

	return &fixture{chain: c, store: store, key: key, genesis: gen, funding: entries[0]}
}

func signedSpend(t *testing.T, key *crypto.PrivateKey, inputs []types.UtxoPointer, outputs ...tx.Output) *tx.Transaction {
	t.Helper()
	b := tx.NewBuilder()
	for _, p := range inputs {
		b.AddInput(p)
	}
	for _, o := range outputs {
		b.AddOutput(o.Address, o.Value)
	}
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return b.Build()
}

func mustSubmit(t *testing.T, c *Chain, transaction *tx.Transaction) *ledger.Diff {
	t.Helper()
	d, err := c.SubmitTx(transaction)
	if err != nil {
		t.Fatalf("SubmitTx: %v", err)
	}
	return d
}

func mustVerify(t *testing.T, c *Chain) {
	t.Helper()
	if err := c.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestNew_NilStore(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestInitGenesis(t *testing.T) {
	f := newFixture(t, storage.NewMemory())

	info := f.chain.Info()
	if info.UTXOCount != 1 || info.TotalValue != 1000 || info.Applied != 0 {
		t.Errorf("info = %+v", info)
	}
	if info.GenesisHash.IsZero() {
		t.Error("genesis hash not recorded")
	}
	if !f.chain.Initialized() {
		t.Error("chain should be initialized")
	}

	out, ok := f.chain.Resolve(f.funding.Pointer)
	if !ok {
		t.Fatal("genesis output missing")
	}
	if out.Address != f.key.Address() {
		t.Errorf("address = %s, want %s", out.Address, f.key.Address())
	}

	// Same genesis again is a no-op.
	if err := f.chain.InitGenesis(f.genesis); err != nil {
		t.Fatalf("InitGenesis again: %v", err)
	}

	// A different genesis is refused.
	other := testGenesis(t, f.key, 5)
	if err := f.chain.InitGenesis(other); !errors.Is(err, ErrGenesisMismatch) {
		t.Fatalf("expected ErrGenesisMismatch, got %v", err)
	}
}

func TestSubmitTx_BeforeGenesis(t *testing.T) {
	c, err := New(utxo.NewStore(storage.NewMemory()), Options{Network: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Initialized() {
		t.Error("fresh chain should not be initialized")
	}
	if _, err := c.SubmitTx(&tx.Transaction{}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestSubmitTx_Accepted(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	recipient, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	transaction := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: recipient.Address(), Value: 600},
		tx.Output{Address: f.key.Address(), Value: 400},
	)

	diff := mustSubmit(t, f.chain, transaction)
	if diff.TxID != transaction.ID() {
		t.Errorf("diff txid = %s, want %s", diff.TxID, transaction.ID())
	}
	if len(diff.Spent) != 1 || len(diff.Created) != 2 {
		t.Fatalf("diff spent %d created %d, want 1 and 2", len(diff.Spent), len(diff.Created))
	}

	if _, ok := f.chain.Resolve(f.funding.Pointer); ok {
		t.Error("spent input must be gone")
	}

	bal, err := f.chain.Balance(recipient.Address())
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if bal != 600 {
		t.Errorf("recipient balance = %d, want 600", bal)
	}

	entries, err := f.chain.GetByAddress(f.key.Address())
	if err != nil {
		t.Fatalf("GetByAddress: %v", err)
	}
	if len(entries) != 1 || entries[0].Output.Value != 400 {
		t.Fatalf("change entries = %+v, want one of 400", entries)
	}

	info := f.chain.Info()
	if info.Applied != 1 {
		t.Errorf("applied = %d, want 1", info.Applied)
	}
	if info.LastTx != transaction.ID() {
		t.Errorf("last tx = %s, want %s", info.LastTx, transaction.ID())
	}
	if info.TotalValue != 1000 || info.UTXOCount != 2 {
		t.Errorf("total %d utxos %d, want 1000 and 2", info.TotalValue, info.UTXOCount)
	}
	mustVerify(t, f.chain)

	got, seq, err := f.chain.GetTx(transaction.ID())
	if err != nil {
		t.Fatalf("GetTx: %v", err)
	}
	if seq != 1 {
		t.Errorf("sequence = %d, want 1", seq)
	}
	if got.TxID != diff.TxID || len(got.Created) != 2 {
		t.Errorf("journaled diff = %+v", got)
	}
}

func TestSubmitTx_RejectedLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	before := f.chain.Info()

	// Outputs exceed inputs by one unit.
	transaction := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: f.key.Address(), Value: 1001},
	)
	_, err := f.chain.SubmitTx(transaction)
	lerr, ok := ledger.AsError(err)
	if !ok {
		t.Fatalf("expected *ledger.Error, got %v", err)
	}
	if lerr.Kind != ledger.KindTransactionSumIsNonZero {
		t.Errorf("kind = %s, want %s", lerr.Kind, ledger.KindTransactionSumIsNonZero)
	}

	if after := f.chain.Info(); after != before {
		t.Errorf("info changed: %+v -> %+v", before, after)
	}
	mustVerify(t, f.chain)

	if _, _, err := f.chain.GetTx(transaction.ID()); !errors.Is(err, ErrTxNotFound) {
		t.Fatalf("expected ErrTxNotFound, got %v", err)
	}
}

func TestSubmitTx_DoubleSpendAcrossTransactions(t *testing.T) {
	f := newFixture(t, storage.NewMemory())

	first := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: f.key.Address(), Value: 1000},
	)
	mustSubmit(t, f.chain, first)

	if _, err := f.chain.SubmitTx(first); !errors.Is(err, ledger.ErrInputDoesNotResolve) {
		t.Fatalf("replay: expected ErrInputDoesNotResolve, got %v", err)
	}
}

func TestSubmitTx_EmptyTransactionIsNoop(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	before := f.chain.Info()

	diff := mustSubmit(t, f.chain, &tx.Transaction{})
	if len(diff.Spent) != 0 || len(diff.Created) != 0 {
		t.Errorf("empty transaction diff = %+v", diff)
	}
	if after := f.chain.Info(); after != before {
		t.Errorf("info changed: %+v -> %+v", before, after)
	}
}

func TestSubmitTx_Limits(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	big := &tx.Transaction{Outputs: make([]tx.Output, tx.MaxOutputs+1)}
	_, err := f.chain.SubmitTx(big)
	if !errors.Is(err, tx.ErrTooManyOutputs) {
		t.Fatalf("expected ErrTooManyOutputs, got %v", err)
	}
	if got := resultOf(err); got != "limits" {
		t.Errorf("resultOf = %q, want limits", got)
	}
}

func TestValidateTx_DoesNotApply(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	transaction := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: f.key.Address(), Value: 1000},
	)

	if err := f.chain.ValidateTx(transaction); err != nil {
		t.Fatalf("ValidateTx: %v", err)
	}
	if _, ok := f.chain.Resolve(f.funding.Pointer); !ok {
		t.Error("validate must not consume inputs")
	}
	if got := f.chain.Info().Applied; got != 0 {
		t.Errorf("applied = %d, want 0", got)
	}

	bad := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: f.key.Address(), Value: 0},
	)
	if err := f.chain.ValidateTx(bad); !errors.Is(err, ledger.ErrZeroOutput) {
		t.Fatalf("expected ErrZeroOutput, got %v", err)
	}
}

func TestRevertLast(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	genesisInfo := f.chain.Info()

	if _, err := f.chain.RevertLast(); !errors.Is(err, ErrNothingToRevert) {
		t.Fatalf("expected ErrNothingToRevert, got %v", err)
	}

	t1 := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: f.key.Address(), Value: 700},
		tx.Output{Address: f.key.Address(), Value: 300},
	)
	d1 := mustSubmit(t, f.chain, t1)
	afterFirst := f.chain.Info()

	t2 := signedSpend(t, f.key, []types.UtxoPointer{d1.Created[0].Pointer},
		tx.Output{Address: f.key.Address(), Value: 700},
	)
	mustSubmit(t, f.chain, t2)

	reverted, err := f.chain.RevertLast()
	if err != nil {
		t.Fatalf("RevertLast: %v", err)
	}
	if reverted.TxID != t2.ID() {
		t.Errorf("reverted %s, want %s", reverted.TxID, t2.ID())
	}
	if got := f.chain.Info(); got != afterFirst {
		t.Errorf("info after revert = %+v, want %+v", got, afterFirst)
	}
	mustVerify(t, f.chain)

	if _, err := f.chain.RevertLast(); err != nil {
		t.Fatalf("RevertLast: %v", err)
	}
	if got := f.chain.Info(); got != genesisInfo {
		t.Errorf("info after second revert = %+v, want %+v", got, genesisInfo)
	}
	if _, ok := f.chain.Resolve(f.funding.Pointer); !ok {
		t.Error("genesis output not restored")
	}

	// The reverted transaction can be applied again.
	mustSubmit(t, f.chain, t1)
}

func TestVerify_DetectsDivergence(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	mustVerify(t, f.chain)

	// Drop the persisted entries behind the driver's back.
	if err := f.store.ClearAll(); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if err := f.chain.Verify(); !errors.Is(err, ErrStateInconsistent) {
		t.Fatalf("expected ErrStateInconsistent, got %v", err)
	}
}

func TestPersistence_BadgerReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "utxo")
	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}

	f := newFixture(t, db)
	transaction := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: f.key.Address(), Value: 250},
		tx.Output{Address: f.key.Address(), Value: 750},
	)
	mustSubmit(t, f.chain, transaction)
	want := f.chain.Info()
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen badger: %v", err)
	}
	defer db.Close()

	reopened, err := New(utxo.NewStore(db), Options{Network: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := reopened.Info(); got != want {
		t.Errorf("reopened info = %+v, want %+v", got, want)
	}
	mustVerify(t, reopened)

	// Genesis is recorded, so re-initializing is a no-op.
	if err := reopened.InitGenesis(f.genesis); err != nil {
		t.Fatalf("InitGenesis: %v", err)
	}
	if got := reopened.Info(); got != want {
		t.Errorf("info after InitGenesis = %+v, want %+v", got, want)
	}
}

type failingBatchDB struct {
	storage.DB
}

func (failingBatchDB) NewBatch() storage.Batch { return failingBatch{} }

type failingBatch struct{}

func (failingBatch) Put(key, value []byte) error { return nil }
func (failingBatch) Delete(key []byte) error     { return nil }
func (failingBatch) Commit() error               { return errors.New("disk full") }

func TestSubmitTx_PersistFailureKeepsMemory(t *testing.T) {
	mem := storage.NewMemory()
	f := newFixture(t, mem)

	// Swap in a store whose batches never commit.
	c, err := New(utxo.NewStore(failingBatchDB{DB: mem}), Options{Network: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	before := c.Info()

	transaction := signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
		tx.Output{Address: f.key.Address(), Value: 1000},
	)
	if _, err := c.SubmitTx(transaction); !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if after := c.Info(); after != before {
		t.Errorf("info changed: %+v -> %+v", before, after)
	}
	if _, ok := c.Resolve(f.funding.Pointer); !ok {
		t.Error("input consumed despite failed persist")
	}
}

func TestSnapshot_IsCopy(t *testing.T) {
	f := newFixture(t, storage.NewMemory())
	snap := f.chain.Snapshot()
	snap.Remove(f.funding.Pointer)

	if _, ok := f.chain.Resolve(f.funding.Pointer); !ok {
		t.Error("snapshot mutation leaked into the chain")
	}
}

func TestSubmitTx_ConcurrentDoubleSpend(t *testing.T) {
	f := newFixture(t, storage.NewMemory())

	var txs []*tx.Transaction
	for i := 0; i < 8; i++ {
		recipient := types.Address{byte(i + 1)}
		txs = append(txs, signedSpend(t, f.key, []types.UtxoPointer{f.funding.Pointer},
			tx.Output{Address: recipient, Value: 1000},
		))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(txs))
	for i := range txs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.chain.SubmitTx(txs[i])
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		if !errors.Is(err, ledger.ErrInputDoesNotResolve) {
			t.Errorf("loser error = %v, want ErrInputDoesNotResolve", err)
		}
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, exactly one spend of the same output wins", accepted)
	}
	mustVerify(t, f.chain)
}

func TestResultOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ledger.DoubleSpend(types.UtxoPointer{}, tx.Output{}), "double_spend"},
		{ErrPersist, "persist_error"},
		{ErrNotInitialized, "not_initialized"},
		{errors.New("x"), "invalid"},
	}
	for _, tt := range tests {
		if got := resultOf(tt.err); got != tt.want {
			t.Errorf("resultOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
