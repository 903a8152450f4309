package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-ledger/internal/storage"
	"github.com/Klingon-tech/klingnet-ledger/pkg/ledger"
	"github.com/Klingon-tech/klingnet-ledger/pkg/types"
)

// Key prefixes and state keys for the ledger journal.
var (
	prefixTx   = []byte("x/") // x/<txid(32)> -> sequence(8)
	prefixUndo = []byte("d/") // d/<sequence(8)> -> diff JSON
	keyGenesis = []byte("s/genesis")
	keyApplied = []byte("s/applied")
	keyLastTx  = []byte("s/lasttx")
)

var (
	errNoJournal  = errors.New("journal entry missing")
	errMetaLength = errors.New("malformed state value")
)

// journal reads and stages the per-transaction records kept next to the
// UTXO entries: the applied count, the last transaction id, and the diff
// of every applied transaction for lookup and revert.
type journal struct {
	db storage.DB
}

func txKey(id types.Hash) []byte {
	key := make([]byte, 0, len(prefixTx)+types.HashSize)
	key = append(key, prefixTx...)
	return append(key, id[:]...)
}

func undoKey(seq uint64) []byte {
	key := make([]byte, 0, len(prefixUndo)+8)
	key = append(key, prefixUndo...)
	return binary.BigEndian.AppendUint64(key, seq)
}

func encodeUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// genesisHash returns the stored genesis hash, or the zero hash when the
// ledger was never initialized.
func (j *journal) genesisHash() (types.Hash, error) {
	data, err := j.db.Get(keyGenesis)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, nil
	}
	if err != nil {
		return types.Hash{}, fmt.Errorf("get genesis hash: %w", err)
	}
	if len(data) != types.HashSize {
		return types.Hash{}, fmt.Errorf("genesis hash: %w", errMetaLength)
	}
	var h types.Hash
	copy(h[:], data)
	return h, nil
}

// applied returns the number of applied transactions and the last txid.
func (j *journal) applied() (uint64, types.Hash, error) {
	var last types.Hash
	data, err := j.db.Get(keyApplied)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, last, nil
	}
	if err != nil {
		return 0, last, fmt.Errorf("get applied count: %w", err)
	}
	if len(data) != 8 {
		return 0, last, fmt.Errorf("applied count: %w", errMetaLength)
	}
	n := binary.BigEndian.Uint64(data)

	data, err = j.db.Get(keyLastTx)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return 0, last, fmt.Errorf("get last tx: %w", err)
	case len(data) == types.HashSize:
		copy(last[:], data)
	default:
		return 0, last, fmt.Errorf("last tx: %w", errMetaLength)
	}
	return n, last, nil
}

// sequence returns the sequence number txid was applied at.
func (j *journal) sequence(id types.Hash) (uint64, bool, error) {
	data, err := j.db.Get(txKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get tx index: %w", err)
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("tx index: %w", errMetaLength)
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// diff returns the diff recorded at seq (1-based).
func (j *journal) diff(seq uint64) (*ledger.Diff, error) {
	data, err := j.db.Get(undoKey(seq))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("sequence %d: %w", seq, errNoJournal)
	}
	if err != nil {
		return nil, fmt.Errorf("get diff: %w", err)
	}
	var d ledger.Diff
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("diff unmarshal: %w", err)
	}
	return &d, nil
}

// stageGenesis records the genesis hash.
func (j *journal) stageGenesis(b storage.Batch, h types.Hash) error {
	return b.Put(keyGenesis, h[:])
}

// stageApply records d as transaction number seq.
func (j *journal) stageApply(b storage.Batch, seq uint64, d *ledger.Diff) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("diff marshal: %w", err)
	}
	if err := b.Put(undoKey(seq), data); err != nil {
		return fmt.Errorf("diff put: %w", err)
	}
	if err := b.Put(txKey(d.TxID), encodeUint64(seq)); err != nil {
		return fmt.Errorf("tx index put: %w", err)
	}
	if err := b.Put(keyApplied, encodeUint64(seq)); err != nil {
		return fmt.Errorf("applied put: %w", err)
	}
	return b.Put(keyLastTx, d.TxID[:])
}

// stageRevert removes the record of transaction number seq and rewinds the
// applied count to prev.
func (j *journal) stageRevert(b storage.Batch, seq uint64, d *ledger.Diff, prev types.Hash) error {
	if err := b.Delete(undoKey(seq)); err != nil {
		return fmt.Errorf("diff delete: %w", err)
	}
	if err := b.Delete(txKey(d.TxID)); err != nil {
		return fmt.Errorf("tx index delete: %w", err)
	}
	if err := b.Put(keyApplied, encodeUint64(seq-1)); err != nil {
		return fmt.Errorf("applied put: %w", err)
	}
	if prev.IsZero() {
		return b.Delete(keyLastTx)
	}
	return b.Put(keyLastTx, prev[:])
}
