// Package testutil builds throwaway substrates for tests. Never import this
// in production code.
package testutil

import (
	"github.com/tolelom/tolmarket/storage"
)

// NewMemDB returns an empty memory-backed storage.DB.
func NewMemDB() storage.DB {
	return storage.NewMemLevelDB()
}

// NewBlockStore returns a storage.BlockStore over a fresh NewMemDB.
func NewBlockStore() *storage.BlockStore {
	return storage.NewBlockStore(NewMemDB())
}

// NewStateDB returns a storage.StateDB over a fresh NewMemDB.
func NewStateDB() *storage.StateDB {
	return storage.NewStateDB(NewMemDB())
}
