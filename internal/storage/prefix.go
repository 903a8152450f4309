package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys.
// It isolates the state of one chain within a shared database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: copyBytes(prefix)}
}

func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, len(p.prefix)+len(key))
	copy(out, p.prefix)
	copy(out[len(p.prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over keys with the given prefix inside the namespace.
// Keys passed to fn have the namespace prefix stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return p.inner.ForEach(p.prefixed(prefix), func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// DeleteAll removes every key in the namespace.
func (p *PrefixDB) DeleteAll() error {
	b := p.NewBatch()
	err := p.ForEach(nil, func(key, _ []byte) error {
		return b.Delete(key)
	})
	if err != nil {
		return err
	}
	return b.Commit()
}

// Close is a no-op; the inner DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns a batch that namespaces its keys. It is atomic when
// the inner DB supports batches.
func (p *PrefixDB) NewBatch() Batch {
	if batcher, ok := p.inner.(Batcher); ok {
		return &prefixBatch{inner: batcher.NewBatch(), db: p}
	}
	return &fallbackBatch{db: p}
}

type prefixBatch struct {
	inner Batch
	db    *PrefixDB
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(pb.db.prefixed(key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(pb.db.prefixed(key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}

// fallbackBatch applies buffered writes one by one.
type fallbackBatch struct {
	db  DB
	ops []batchOp
}

// NewBatch returns an atomic batch for db if it supports one, otherwise
// a batch that applies writes one at a time.
func NewBatch(db DB) Batch {
	if batcher, ok := db.(Batcher); ok {
		return batcher.NewBatch()
	}
	return &fallbackBatch{db: db}
}

func (fb *fallbackBatch) Put(key, value []byte) error {
	fb.ops = append(fb.ops, batchOp{key: copyBytes(key), value: copyBytes(value)})
	return nil
}

func (fb *fallbackBatch) Delete(key []byte) error {
	fb.ops = append(fb.ops, batchOp{key: copyBytes(key), del: true})
	return nil
}

func (fb *fallbackBatch) Commit() error {
	for _, op := range fb.ops {
		var err error
		if op.del {
			err = fb.db.Delete(op.key)
		} else {
			err = fb.db.Put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	fb.ops = nil
	return nil
}
