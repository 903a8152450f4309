// Package chain drives the ledger: it owns the UTXO set, serializes
// transaction application, and persists every accepted diff before the
// in-memory set moves forward.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-ledger/config"
	klog "github.com/Klingon-tech/klingnet-ledger/internal/log"
	"github.com/Klingon-tech/klingnet-ledger/internal/metrics"
	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/internal/utxo"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/tx"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
	"github.com/rs/zerolog"
)

// Operation labels for metrics.
const (
	opSubmit   = "submit"
	opValidate = "validate"
	opRevert   = "revert"
)

// Driver errors.
var (
	ErrPersist           = errors.New("persist ledger state")
	ErrNotInitialized    = errors.New("ledger has no genesis")
	ErrGenesisMismatch   = errors.New("stored genesis does not match")
	ErrNothingToRevert   = errors.New("no applied transaction to revert")
	ErrTxNotFound        = errors.New("transaction not found")
	ErrStateInconsistent = errors.New("persisted state does not match memory")
)

// Options configures a Chain.
type Options struct {
	Network    string
	Authorizer ledger.Authorizer // nil = ledger.DefaultAuthorizer
	Metrics    *metrics.Ledger   // nil = metrics for Network
}

// Chain owns one UTXO set and its persistent mirror.
type Chain struct {
	mu      sync.RWMutex // Protects all state below.
	set     *ledger.Set
	store   *utxo.Store
	journal *journal
	auth    ledger.Authorizer
	metrics *metrics.Ledger
	logger  zerolog.Logger

	network     string
	genesisHash types.Hash
	applied     uint64
	lastTx      types.Hash
	total       uint64
}

// Info summarizes the ledger state.
type Info struct {
	Network     string     `json:"network"`
	GenesisHash types.Hash `json:"genesis_hash"`
	Applied     uint64     `json:"applied"`
	LastTx      types.Hash `json:"last_tx"`
	UTXOCount   int        `json:"utxo_count"`
	TotalValue  uint64     `json:"total_value"`
	Commitment  types.Hash `json:"commitment"`
}

// New loads the ledger persisted in store.
func New(store *utxo.Store, opts Options) (*Chain, error) {
	if store == nil {
		return nil, fmt.Errorf("utxo store is nil")
	}

	auth := opts.Authorizer
	if auth == nil {
		auth = ledger.DefaultAuthorizer
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewLedger(opts.Network)
	}

	j := &journal{db: store.DB()}
	genesisHash, err := j.genesisHash()
	if err != nil {
		return nil, fmt.Errorf("recover genesis: %w", err)
	}
	applied, lastTx, err := j.applied()
	if err != nil {
		return nil, fmt.Errorf("recover journal: %w", err)
	}

	set, err := store.Load()
	if err != nil {
		return nil, err
	}
	total, err := set.Total()
	if err != nil {
		return nil, fmt.Errorf("recover utxo total: %w", err)
	}

	c := &Chain{
		set:         set,
		store:       store,
		journal:     j,
		auth:        auth,
		metrics:     m,
		logger:      klog.Ledger.With().Str("network", opts.Network).Logger(),
		network:     opts.Network,
		genesisHash: genesisHash,
		applied:     applied,
		lastTx:      lastTx,
		total:       total,
	}
	m.SetState(set.Len(), total)

	c.logger.Debug().
		Int("utxos", set.Len()).
		Uint64("applied", applied).
		Msg("Ledger loaded")
	return c, nil
}

// Initialized reports whether a genesis has been committed.
func (c *Chain) Initialized() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.genesisHash.IsZero()
}

// InitGenesis seeds an empty ledger with the genesis allocations. Calling
// it again with the same genesis is a no-op; a different genesis fails
// with ErrGenesisMismatch.
func (c *Chain) InitGenesis(gen *config.Genesis) error {
	hash, err := gen.Hash()
	if err != nil {
		return fmt.Errorf("genesis hash: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.genesisHash.IsZero() {
		if c.genesisHash != hash {
			return fmt.Errorf("%w: have %s, got %s", ErrGenesisMismatch, c.genesisHash, hash)
		}
		return nil
	}
	if c.set.Len() != 0 {
		return fmt.Errorf("ledger has %d utxos but no genesis", c.set.Len())
	}

	entries, err := gen.Entries()
	if err != nil {
		return fmt.Errorf("genesis entries: %w", err)
	}
	set, err := ledger.NewSetFrom(entries)
	if err != nil {
		return fmt.Errorf("genesis set: %w", err)
	}
	total, err := set.Total()
	if err != nil {
		return fmt.Errorf("genesis total: %w", err)
	}

	b := storage.NewBatch(c.store.DB())
	if err := c.store.StageEntries(b, entries); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := c.journal.stageGenesis(b, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := b.Commit(); err != nil {
		c.metrics.ObservePersistError()
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	c.set = set
	c.total = total
	c.genesisHash = hash
	c.metrics.SetState(set.Len(), total)

	c.logger.Info().
		Str("chain_id", gen.ChainID).
		Str("genesis", hash.String()).
		Int("allocations", len(entries)).
		Uint64("total", total).
		Msg("Genesis initialized")
	return nil
}

// SubmitTx validates t against the current set and, if accepted, persists
// and commits its diff. A rejected transaction leaves the ledger unchanged
// and returns a *ledger.Error.
func (c *Chain) SubmitTx(t *tx.Transaction) (*ledger.Diff, error) {
	started := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	diff, err := c.validateLocked(t)
	if err != nil {
		c.observe(opSubmit, t, err, started)
		return nil, err
	}

	// An empty transaction changes nothing and is not journaled.
	if len(diff.Spent) == 0 && len(diff.Created) == 0 {
		c.observe(opSubmit, t, nil, started)
		return diff, nil
	}

	seq := c.applied + 1
	b := storage.NewBatch(c.store.DB())
	if err := c.store.StageDiff(b, diff); err != nil {
		return nil, c.persistFailed(opSubmit, t, err, started)
	}
	if err := c.journal.stageApply(b, seq, diff); err != nil {
		return nil, c.persistFailed(opSubmit, t, err, started)
	}
	if err := b.Commit(); err != nil {
		return nil, c.persistFailed(opSubmit, t, err, started)
	}

	// Validate checked every spent entry and every created pointer
	// against this set under the same lock, so Commit cannot fail here.
	if err := c.set.Commit(diff); err != nil {
		c.logger.Error().Err(err).Str("txid", diff.TxID.String()).Msg("Commit after persist failed")
		return nil, fmt.Errorf("%w: %v", ErrStateInconsistent, err)
	}
	c.applied = seq
	c.lastTx = diff.TxID
	c.metrics.SetState(c.set.Len(), c.total)
	c.observe(opSubmit, t, nil, started)
	return diff, nil
}

// ValidateTx checks t against the current set without applying it.
func (c *Chain) ValidateTx(t *tx.Transaction) error {
	started := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, err := c.validateLocked(t)
	c.observe(opValidate, t, err, started)
	return err
}

func (c *Chain) validateLocked(t *tx.Transaction) (*ledger.Diff, error) {
	if t == nil {
		return nil, fmt.Errorf("transaction is nil")
	}
	if c.genesisHash.IsZero() {
		return nil, ErrNotInitialized
	}
	if err := t.CheckLimits(); err != nil {
		return nil, err
	}
	return ledger.Validate(c.set, t, c.auth)
}

// RevertLast undoes the most recently applied transaction and returns the
// diff that was reverted.
func (c *Chain) RevertLast() (*ledger.Diff, error) {
	started := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.applied == 0 {
		return nil, ErrNothingToRevert
	}
	seq := c.applied
	d, err := c.journal.diff(seq)
	if err != nil {
		return nil, fmt.Errorf("load diff %d: %w", seq, err)
	}
	var prev types.Hash
	if seq > 1 {
		pd, err := c.journal.diff(seq - 1)
		if err != nil {
			return nil, fmt.Errorf("load diff %d: %w", seq-1, err)
		}
		prev = pd.TxID
	}

	inv := d.Inverse()
	next := c.set.Clone()
	if err := next.Commit(inv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateInconsistent, err)
	}

	b := storage.NewBatch(c.store.DB())
	if err := c.store.StageDiff(b, inv); err != nil {
		return nil, c.persistFailed(opRevert, nil, err, started)
	}
	if err := c.journal.stageRevert(b, seq, d, prev); err != nil {
		return nil, c.persistFailed(opRevert, nil, err, started)
	}
	if err := b.Commit(); err != nil {
		return nil, c.persistFailed(opRevert, nil, err, started)
	}

	c.set = next
	c.applied = seq - 1
	c.lastTx = prev
	c.metrics.SetState(c.set.Len(), c.total)
	c.metrics.ObserveTx(opRevert, "", started)

	c.logger.Info().
		Str("txid", d.TxID.String()).
		Uint64("sequence", seq).
		Msg("Transaction reverted")
	return d, nil
}

// GetTx returns the diff recorded for an applied transaction and the
// sequence number it was applied at.
func (c *Chain) GetTx(id types.Hash) (*ledger.Diff, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seq, ok, err := c.journal.sequence(id)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", id, ErrTxNotFound)
	}
	d, err := c.journal.diff(seq)
	if err != nil {
		return nil, 0, err
	}
	return d, seq, nil
}

// Resolve returns the unspent output under p.
func (c *Chain) Resolve(p types.UtxoPointer) (tx.Output, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set.Resolve(p)
}

// Snapshot returns a copy of the current set.
func (c *Chain) Snapshot() *ledger.Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set.Clone()
}

// GetByAddress returns the unspent entries locked to addr in pointer order.
func (c *Chain) GetByAddress(addr types.Address) ([]ledger.Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.GetByAddress(addr)
}

// Balance returns the total unspent value locked to addr.
func (c *Chain) Balance(addr types.Address) (uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Balance(addr)
}

// Info returns a summary of the current state.
func (c *Chain) Info() Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Info{
		Network:     c.network,
		GenesisHash: c.genesisHash,
		Applied:     c.applied,
		LastTx:      c.lastTx,
		UTXOCount:   c.set.Len(),
		TotalValue:  c.total,
		Commitment:  ledger.Commitment(c.set),
	}
}

// Verify checks that the persisted entries match the in-memory set.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, err := c.store.Load()
	if err != nil {
		return err
	}
	if !stored.Equal(c.set) {
		return fmt.Errorf("%w: store %s (%d utxos), memory %s (%d utxos)", ErrStateInconsistent,
			ledger.Commitment(stored), stored.Len(), ledger.Commitment(c.set), c.set.Len())
	}
	return nil
}

func (c *Chain) persistFailed(op string, t *tx.Transaction, err error, started time.Time) error {
	err = fmt.Errorf("%w: %v", ErrPersist, err)
	c.metrics.ObservePersistError()
	c.observe(op, t, err, started)
	return err
}

// observe records metrics and logs the outcome of an operation.
func (c *Chain) observe(op string, t *tx.Transaction, err error, started time.Time) {
	var txid string
	var inputs, outputs int
	if t != nil {
		txid = t.ID().String()
		inputs, outputs = len(t.Inputs), len(t.Outputs)
	}

	if err == nil {
		c.metrics.ObserveTx(op, "", started)
		c.logger.Debug().
			Str("op", op).
			Str("txid", txid).
			Int("inputs", inputs).
			Int("outputs", outputs).
			Msg("Transaction accepted")
		return
	}

	result := resultOf(err)
	c.metrics.ObserveTx(op, result, started)

	ev := c.logger.Info()
	if errors.Is(err, ErrPersist) {
		ev = c.logger.Error()
	}
	ev.Str("op", op).
		Str("txid", txid).
		Str("kind", result).
		Err(err).
		Msg("Transaction rejected")
}

// resultOf maps an error to its metrics label.
func resultOf(err error) string {
	if lerr, ok := ledger.AsError(err); ok {
		return lerr.Kind.String()
	}
	switch {
	case errors.Is(err, ErrPersist):
		return "persist_error"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, tx.ErrTooManyInputs), errors.Is(err, tx.ErrTooManyOutputs):
		return "limits"
	}
	return "invalid"
}
