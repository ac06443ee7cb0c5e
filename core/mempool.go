package core

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	maxMempoolSize = 10_000
	maxPerSender   = 64
	maxTxAge       = int64(time.Hour)
	maxTxFuture    = int64(5 * time.Minute)
)

// Admission failures. RPC maps these to a rejected-transaction error.
var (
	ErrMempoolFull   = errors.New("mempool full")
	ErrSenderLimit   = errors.New("too many pending transactions from sender")
	ErrDuplicateTx   = errors.New("tx already in pool")
	ErrTxCommitted   = errors.New("tx already committed")
	ErrTxExpired     = errors.New("transaction expired")
	ErrTxFromFuture  = errors.New("transaction timestamp too far in the future")
	ErrChainMismatch = errors.New("chain ID mismatch")
)

// Mempool is a thread-safe pending-transaction pool. Transactions are handed
// to the block producer in arrival order, which is the order two racing
// submissions against the same listing or order are settled in.
type Mempool struct {
	mu       sync.RWMutex
	chainID  string
	txs      map[string]*Transaction
	ord      []string // arrival order
	bySender map[string]int
	// committed reports IDs already included in a block. Optional.
	committed func(id string) bool
}

// NewMempool creates an empty mempool accepting transactions for chainID.
// An empty chainID accepts any chain.
func NewMempool(chainID string) *Mempool {
	return &Mempool{
		chainID:  chainID,
		txs:      make(map[string]*Transaction),
		bySender: make(map[string]int),
	}
}

// SetCommitted installs the lookup Add uses to refuse transactions that are
// already in a block.
func (m *Mempool) SetCommitted(committed func(id string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = committed
}

// Add admits tx after checking chain ID, signature and the timestamp window
// (one hour old to five minutes ahead). A single sender may hold at most
// maxPerSender pending transactions.
func (m *Mempool) Add(tx *Transaction) error {
	if m.chainID != "" && tx.ChainID != m.chainID {
		return fmt.Errorf("%w: got %q want %q", ErrChainMismatch, tx.ChainID, m.chainID)
	}
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("invalid tx signature: %w", err)
	}
	now := time.Now().UnixNano()
	if now-tx.Timestamp > maxTxAge {
		return ErrTxExpired
	}
	if tx.Timestamp-now > maxTxFuture {
		return ErrTxFromFuture
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.txs[tx.ID]; exists {
		return ErrDuplicateTx
	}
	if m.committed != nil && m.committed(tx.ID) {
		return ErrTxCommitted
	}
	if len(m.txs) >= maxMempoolSize {
		return ErrMempoolFull
	}
	if m.bySender[tx.From] >= maxPerSender {
		return fmt.Errorf("%w (%d)", ErrSenderLimit, maxPerSender)
	}
	m.txs[tx.ID] = tx
	m.ord = append(m.ord, tx.ID)
	m.bySender[tx.From]++
	return nil
}

// Get returns a transaction by ID.
func (m *Mempool) Get(id string) (*Transaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n pending transactions in arrival order.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Transaction, 0, min(n, len(m.ord)))
	for _, id := range m.ord {
		if len(result) >= n {
			break
		}
		result = append(result, m.txs[id])
	}
	return result
}

// Remove drops committed transactions.
func (m *Mempool) Remove(ids []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		tx, ok := m.txs[id]
		if !ok {
			continue
		}
		delete(m.txs, id)
		if m.bySender[tx.From]--; m.bySender[tx.From] <= 0 {
			delete(m.bySender, tx.From)
		}
	}
	kept := m.ord[:0]
	for _, id := range m.ord {
		if _, ok := m.txs[id]; ok {
			kept = append(kept, id)
		}
	}
	m.ord = kept
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.txs)
}
