package vm

import (
	"fmt"
	"math"
	"sync"

	logging "github.com/ipfs/go-log/v2"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
)

var log = logging.Logger("vm")

// Context is passed to every Handler and provides access to the state, the
// current block, the triggering transaction, and the pending event buffer.
type Context struct {
	State core.State
	Block *core.Block
	Tx    *core.Transaction

	pending []events.Event
}

// Now returns the execution-time clock in Unix seconds. Expiry checks compare
// against this value, never against the submission time.
func (c *Context) Now() int64 {
	return c.Block.Time()
}

// Emit queues an event. Queued events are published only if the transaction
// succeeds, so subscribers never observe reverted state changes.
func (c *Context) Emit(typ events.EventType, data map[string]any) {
	c.pending = append(c.pending, events.Event{
		Type:        typ,
		TxID:        c.Tx.ID,
		BlockHeight: c.Block.Header.Height,
		Data:        data,
	})
}

// Executor applies transactions to the state using the global Handler registry.
//
// Execution is serialized: each transaction runs to completion against the
// state before the next one starts, and a failing handler is rolled back in
// full. The sender's nonce and fee are charged before the handler runs and
// stay charged when it fails, so a transaction included in a block can never
// be executed a second time.
type Executor struct {
	mu      sync.Mutex
	state   core.State
	emitter *events.Emitter
	held    []events.Event // events of the last ExecuteBlock, not yet published
}

// NewExecutor creates an Executor with the given state and event emitter.
func NewExecutor(state core.State, emitter *events.Emitter) *Executor {
	return &Executor{state: state, emitter: emitter}
}

// ExecuteBlock applies all transactions in block sequentially and records a
// receipt for each one in block.Receipts. A failing transaction is reverted
// and reported in its receipt; it does not reject the block.
//
// Events produced by the block are held back until Publish is called, so the
// caller can drop them with Discard if the block is never stored.
func (e *Executor) ExecuteBlock(block *core.Block) []*core.Receipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.held = e.held[:0]
	hold := func(ev events.Event) { e.held = append(e.held, ev) }

	receipts := make([]*core.Receipt, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		r := &core.Receipt{
			TxID:   tx.ID,
			Type:   tx.Type,
			From:   tx.From,
			Status: core.ReceiptSuccess,
			Height: block.Header.Height,
		}
		if err := e.execute(block, tx, hold); err != nil {
			r.Status = core.ReceiptFailed
			r.Error = err.Error()
		}
		receipts = append(receipts, r)
	}
	block.Receipts = receipts
	return receipts
}

// Publish emits the events held from the last ExecuteBlock.
func (e *Executor) Publish() {
	e.mu.Lock()
	held := e.held
	e.held = nil
	e.mu.Unlock()
	for _, ev := range held {
		e.emitter.Emit(ev)
	}
}

// Discard drops the events held from the last ExecuteBlock.
func (e *Executor) Discard() {
	e.mu.Lock()
	e.held = nil
	e.mu.Unlock()
}

// ExecuteTx verifies and executes a single transaction, publishing its events
// immediately.
func (e *Executor) ExecuteTx(block *core.Block, tx *core.Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(block, tx, e.emitter.Emit)
}

func (e *Executor) execute(block *core.Block, tx *core.Transaction, emit func(events.Event)) error {
	if err := tx.Verify(); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if err := e.chargeSender(tx); err != nil {
		return err
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	ctx := &Context{State: e.state, Block: block, Tx: tx}
	if err := globalRegistry.Execute(tx.Type, ctx, tx.Payload); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert snapshot after tx failure: %w (revert: %v)", err, revertErr)
		}
		log.Debugw("tx failed", "tx", tx.ID, "type", tx.Type, "err", err)
		emit(events.Event{
			Type:        events.EventTxFailed,
			TxID:        tx.ID,
			BlockHeight: block.Header.Height,
			Data:        map[string]any{"type": string(tx.Type), "from": tx.From, "error": err.Error()},
		})
		return err
	}
	if err := e.state.DiscardSnapshot(snapID); err != nil {
		return fmt.Errorf("release snapshot: %w", err)
	}

	for _, ev := range ctx.pending {
		emit(ev)
	}
	emit(events.Event{
		Type:        events.EventTxExecuted,
		TxID:        tx.ID,
		BlockHeight: block.Header.Height,
		Data:        map[string]any{"type": string(tx.Type), "from": tx.From},
	})
	return nil
}

// chargeSender checks the nonce, deducts the fee and increments the nonce.
// Nothing is written when a check fails.
func (e *Executor) chargeSender(tx *core.Transaction) error {
	acc, err := e.state.GetAccount(tx.From)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}
	if acc.Nonce != tx.Nonce {
		return fmt.Errorf("invalid nonce: expected %d got %d", acc.Nonce, tx.Nonce)
	}
	if acc.Balance < tx.Fee {
		return fmt.Errorf("fee: %w: have %d need %d", core.ErrInsufficientFunds, acc.Balance, tx.Fee)
	}
	if acc.Nonce == math.MaxUint64 {
		return fmt.Errorf("nonce overflow for account %s", tx.From)
	}
	acc.Balance -= tx.Fee
	acc.Nonce++
	return e.state.SetAccount(acc)
}
