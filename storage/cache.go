package storage

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tolelom/tolmarket/core"
)

// DefaultCacheSize is used when a non-positive size is passed to NewCachedDB.
const DefaultCacheSize = 4096

// CachedDB wraps a DB with an LRU cache of committed reads. Listings, offers
// and the marketplace registry are read on every settlement, so hot records
// stay in memory. Writes and batches update the cache after they succeed.
type CachedDB struct {
	DB
	cache *lru.Cache[string, []byte]
}

// NewCachedDB returns db fronted by an LRU cache holding up to size entries.
func NewCachedDB(db DB, size int) (*CachedDB, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &CachedDB{DB: db, cache: cache}, nil
}

func (c *CachedDB) Get(key []byte) ([]byte, error) {
	if v, ok := c.cache.Get(string(key)); ok {
		return v, nil
	}
	v, err := c.DB.Get(key)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.cache.Remove(string(key))
		}
		return nil, err
	}
	c.cache.Add(string(key), v)
	return v, nil
}

func (c *CachedDB) Set(key, value []byte) error {
	if err := c.DB.Set(key, value); err != nil {
		return err
	}
	c.cache.Add(string(key), value)
	return nil
}

func (c *CachedDB) Delete(key []byte) error {
	if err := c.DB.Delete(key); err != nil {
		return err
	}
	c.cache.Remove(string(key))
	return nil
}

func (c *CachedDB) NewBatch() Batch {
	return &cachedBatch{Batch: c.DB.NewBatch(), cache: c.cache}
}

// Len reports the number of cached entries.
func (c *CachedDB) Len() int {
	return c.cache.Len()
}

type cachedBatch struct {
	Batch
	cache *lru.Cache[string, []byte]
	keys  []string
}

func (b *cachedBatch) Set(key, value []byte) {
	b.Batch.Set(key, value)
	b.keys = append(b.keys, string(key))
}

func (b *cachedBatch) Delete(key []byte) {
	b.Batch.Delete(key)
	b.keys = append(b.keys, string(key))
}

func (b *cachedBatch) Reset() {
	b.Batch.Reset()
	b.keys = nil
}

// Write invalidates every touched key once the underlying batch lands, so
// the next Get reloads the committed value.
func (b *cachedBatch) Write() error {
	if err := b.Batch.Write(); err != nil {
		return err
	}
	for _, k := range b.keys {
		b.cache.Remove(k)
	}
	b.keys = nil
	return nil
}
