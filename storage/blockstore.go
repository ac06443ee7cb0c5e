package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
)

const (
	keyChainTip   = "chain:tip"
	prefixBlock   = "block:"
	prefixHeight  = "height:"
	prefixReceipt = "receipt:"
)

// BlockStore implements core.BlockStore on top of any DB backend.
type BlockStore struct {
	db DB
}

// NewBlockStore wraps db as a core.BlockStore.
func NewBlockStore(db DB) *BlockStore {
	return &BlockStore{db: db}
}

func (s *BlockStore) PutBlock(block *core.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(prefixBlock+block.Hash), data)
}

func (s *BlockStore) GetBlock(hash string) (*core.Block, error) {
	data, err := s.db.Get([]byte(prefixBlock + hash))
	if err != nil {
		return nil, err
	}
	var b core.Block
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BlockStore) PutBlockByHeight(height int64, hash string) error {
	return s.db.Set(heightKey(height), []byte(hash))
}

func (s *BlockStore) GetBlockByHeight(height int64) (*core.Block, error) {
	hash, err := s.db.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	return s.GetBlock(string(hash))
}

func (s *BlockStore) GetTip() (string, error) {
	val, err := s.db.Get([]byte(keyChainTip))
	if errors.Is(err, core.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(val), nil
}

func (s *BlockStore) SetTip(hash string) error {
	return s.db.Set([]byte(keyChainTip), []byte(hash))
}

// CommitBlock writes the block, its height index, one receipt entry per
// transaction, and the new tip in a single batch.
func (s *BlockStore) CommitBlock(block *core.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}
	batch := s.db.NewBatch()
	batch.Set([]byte(prefixBlock+block.Hash), data)
	batch.Set(heightKey(block.Header.Height), []byte(block.Hash))
	for _, r := range block.Receipts {
		rd, err := json.Marshal(r)
		if err != nil {
			return err
		}
		batch.Set([]byte(prefixReceipt+r.TxID), rd)
	}
	batch.Set([]byte(keyChainTip), []byte(block.Hash))
	return batch.Write()
}

// GetReceipt returns the receipt of a committed transaction.
func (s *BlockStore) GetReceipt(txID string) (*core.Receipt, error) {
	data, err := s.db.Get([]byte(prefixReceipt + txID))
	if err != nil {
		return nil, err
	}
	var r core.Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func heightKey(height int64) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixHeight, height))
}
