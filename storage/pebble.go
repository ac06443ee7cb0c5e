package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/tolelom/tolmarket/core"
)

// PebbleDB implements DB using Pebble. It is selected with db_backend=pebble.
type PebbleDB struct {
	db *pebble.DB
}

// NewPebbleDB opens (or creates) a Pebble database at path.
func NewPebbleDB(path string) (*PebbleDB, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %q: %w", path, err)
	}
	return &PebbleDB{db: db}, nil
}

func (p *PebbleDB) Get(key []byte) ([]byte, error) {
	val, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

func (p *PebbleDB) Set(key, value []byte) error {
	return p.db.Set(key, value, pebble.Sync)
}

func (p *PebbleDB) Delete(key []byte) error {
	return p.db.Delete(key, pebble.Sync)
}

func (p *PebbleDB) NewIterator(prefix []byte) Iterator {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	return &pebbleIterator{iter: iter, err: err}
}

func (p *PebbleDB) NewBatch() Batch {
	return &pebbleBatch{batch: p.db.NewBatch()}
}

func (p *PebbleDB) Close() error {
	return p.db.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil if no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

type pebbleIterator struct {
	iter    *pebble.Iterator
	started bool
	err     error
}

func (it *pebbleIterator) Next() bool {
	if it.iter == nil {
		return false
	}
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Key() []byte   { return it.iter.Key() }
func (it *pebbleIterator) Value() []byte { return it.iter.Value() }

func (it *pebbleIterator) Release() {
	if it.iter != nil {
		_ = it.iter.Close()
	}
}

func (it *pebbleIterator) Error() error {
	if it.err != nil {
		return it.err
	}
	if it.iter != nil {
		return it.iter.Error()
	}
	return nil
}

type pebbleBatch struct {
	batch *pebble.Batch
}

func (b *pebbleBatch) Set(key, value []byte) { _ = b.batch.Set(key, value, nil) }
func (b *pebbleBatch) Delete(key []byte)     { _ = b.batch.Delete(key, nil) }
func (b *pebbleBatch) Reset()                { b.batch.Reset() }

func (b *pebbleBatch) Write() error {
	return b.batch.Commit(pebble.Sync)
}
