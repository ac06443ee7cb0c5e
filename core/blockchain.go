package core

import (
	"errors"
	"fmt"
	"sync"
)

// BlockStore is the persistence interface used by Blockchain.
// Implementations live in the storage package.
type BlockStore interface {
	GetBlock(hash string) (*Block, error)
	PutBlock(block *Block) error
	GetBlockByHeight(height int64) (*Block, error)
	PutBlockByHeight(height int64, hash string) error
	// GetTip returns the current tip hash, or ("", nil) for a fresh chain.
	GetTip() (string, error)
	SetTip(hash string) error
	// CommitBlock atomically writes the block, its height index entry, and
	// updates the tip pointer in a single batch operation.
	CommitBlock(block *Block) error
	// GetReceipt returns the receipt written for txID by CommitBlock.
	GetReceipt(txID string) (*Receipt, error)
}

// Blockchain manages the canonical chain: stores blocks and tracks the tip.
type Blockchain struct {
	mu     sync.RWMutex
	store  BlockStore
	tip    *Block
	height int64
}

// NewBlockchain returns a Blockchain backed by store.
// Call Init() to load an existing chain tip from storage.
func NewBlockchain(store BlockStore) *Blockchain {
	return &Blockchain{store: store}
}

// Init loads the persisted tip from the block store.
func (bc *Blockchain) Init() error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	tipHash, err := bc.store.GetTip()
	if err != nil {
		return fmt.Errorf("get tip: %w", err)
	}
	if tipHash == "" {
		return nil // fresh chain
	}
	tip, err := bc.store.GetBlock(tipHash)
	if err != nil {
		return fmt.Errorf("load tip block: %w", err)
	}
	bc.tip = tip
	bc.height = tip.Header.Height
	return nil
}

// Linkage failures reported by CheckLink.
var (
	ErrHeightGap       = errors.New("block height does not follow tip")
	ErrPrevHash        = errors.New("prev_hash mismatch")
	ErrClockRegression = errors.New("block timestamp precedes tip")
)

// CheckLink reports whether next may extend tip. Order and expiry checks run
// against block time, so next must not be older than tip.
func CheckLink(tip, next *Block) error {
	if next.Header.Height != tip.Header.Height+1 {
		return fmt.Errorf("%w: height %d, tip %d", ErrHeightGap, next.Header.Height, tip.Header.Height)
	}
	if next.Header.PrevHash != tip.Hash {
		return fmt.Errorf("%w: got %s want %s", ErrPrevHash, next.Header.PrevHash, tip.Hash)
	}
	if next.Header.Timestamp < tip.Header.Timestamp {
		return fmt.Errorf("%w: %d < %d", ErrClockRegression, next.Header.Timestamp, tip.Header.Timestamp)
	}
	return nil
}

// AddBlock persists block with its receipts and advances the tip. Any block
// after the first must pass CheckLink against the current tip.
func (bc *Blockchain) AddBlock(block *Block) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.tip != nil {
		if err := CheckLink(bc.tip, block); err != nil {
			return err
		}
	}
	if err := bc.store.CommitBlock(block); err != nil {
		return fmt.Errorf("commit block: %w", err)
	}
	bc.tip = block
	bc.height = block.Header.Height
	return nil
}

// GetBlock returns a block by its hash.
func (bc *Blockchain) GetBlock(hash string) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlock(hash)
}

// GetBlockByHeight returns the block at the given height.
func (bc *Blockchain) GetBlockByHeight(height int64) (*Block, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.store.GetBlockByHeight(height)
}

// Tip returns the current chain tip, or nil for a fresh chain.
func (bc *Blockchain) Tip() *Block {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.tip
}

// Height returns the height of the current tip (0 for a fresh chain).
func (bc *Blockchain) Height() int64 {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	return bc.height
}

// HasTx reports whether txID was included in a stored block.
func (bc *Blockchain) HasTx(txID string) bool {
	_, err := bc.store.GetReceipt(txID)
	return err == nil
}

// GetReceipt returns the execution receipt of a committed transaction.
func (bc *Blockchain) GetReceipt(txID string) (*Receipt, error) {
	return bc.store.GetReceipt(txID)
}
