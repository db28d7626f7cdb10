package storage

import (
	"errors"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/zeebo/errs"
)

// Error wraps errors coming from the storage layer.
var Error = errs.Class("storage")

// ErrStopScan can be returned from a scan callback to end the scan early.
var ErrStopScan = errors.New("stop scan")

// Reader is the read side shared by the store and an open batch.
type Reader interface {
	// Get returns a copy of the value at key; ok is false if absent.
	Get(key []byte) (value []byte, ok bool, err error)
	// Scan calls fn for every key with the given prefix, starting at from
	// (nil means the start of the prefix), in key order.
	Scan(prefix, from []byte, fn func(key, value []byte) error) error
}

// Writer is the write side of a batch.
type Writer interface {
	Set(key, value []byte) error
	Delete(key []byte) error
}

// ReadWriter reads its own uncommitted writes.
type ReadWriter interface {
	Reader
	Writer
}

// PebbleStore is the single persistence layer of the ledger.
// Writers are serialized: Update holds a store-wide lock for the duration of
// the callback and its commit, so every operation sees a consistent state.
type PebbleStore struct {
	mu sync.Mutex
	db *pebble.DB
}

// Open opens (or creates) a Pebble database at path.
func Open(path string) (*PebbleStore, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,                  // 32MB memtable
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10, // 512KB
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, Error.New("failed to open pebble db at %s: %v", path, err)
	}
	return &PebbleStore{db: db}, nil
}

// OpenInMemory opens a store backed by an in-memory filesystem (tests, devnet).
func OpenInMemory() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return Error.Wrap(s.db.Close())
}

// Get reads committed state.
func (s *PebbleStore) Get(key []byte) ([]byte, bool, error) {
	return get(s.db.Get, key)
}

// Scan iterates committed state.
func (s *PebbleStore) Scan(prefix, from []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return scan(iter, from, fn)
}

// Update runs fn inside one atomic batch. If fn returns an error nothing it
// wrote is applied; otherwise every write is committed together (synced).
func (s *PebbleStore) Update(fn func(tx *Batch) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Batch{b: s.db.NewIndexedBatch()}
	defer func() {
		err = errs.Combine(err, Error.Wrap(tx.b.Close()))
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.b.Commit(pebble.Sync); err != nil {
		return Error.New("commit: %v", err)
	}
	return nil
}

// Batch is an indexed Pebble batch: reads see the batch's own writes layered
// over committed state.
type Batch struct {
	b *pebble.Batch
}

func (tx *Batch) Get(key []byte) ([]byte, bool, error) {
	return get(tx.b.Get, key)
}

func (tx *Batch) Scan(prefix, from []byte, fn func(key, value []byte) error) error {
	iter, err := tx.b.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return Error.Wrap(err)
	}
	return scan(iter, from, fn)
}

func (tx *Batch) Set(key, value []byte) error {
	return Error.Wrap(tx.b.Set(key, value, nil))
}

func (tx *Batch) Delete(key []byte) error {
	return Error.Wrap(tx.b.Delete(key, nil))
}

func get(getter func([]byte) ([]byte, io.Closer, error), key []byte) ([]byte, bool, error) {
	data, closer, err := getter(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, Error.New("get %q: %v", key, err)
	}
	defer closer.Close()

	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

func scan(iter *pebble.Iterator, from []byte, fn func(key, value []byte) error) (err error) {
	defer func() {
		err = errs.Combine(err, Error.Wrap(iter.Close()))
	}()

	var valid bool
	if from != nil {
		valid = iter.SeekGE(from)
	} else {
		valid = iter.First()
	}
	for ; valid; valid = iter.Next() {
		key := append([]byte(nil), iter.Key()...)
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	if err := iter.Error(); err != nil {
		return Error.New("iterate: %v", err)
	}
	return nil
}

var (
	_ ReadWriter = (*Batch)(nil)
	_ Reader     = (*PebbleStore)(nil)
)
