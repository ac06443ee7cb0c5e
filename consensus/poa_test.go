package consensus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/config"
	"github.com/tolelom/tolmarket/consensus"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/wallet"

	_ "github.com/tolelom/tolmarket/vm/modules/economy"
	_ "github.com/tolelom/tolmarket/vm/modules/market"
)

type chain struct {
	poa     *consensus.PoA
	bc      *core.Blockchain
	state   *storage.StateDB
	mempool *core.Mempool
	user    *wallet.Wallet
	emitter *events.Emitter
	clock   time.Time
}

func newChain(t *testing.T) *chain {
	t.Helper()
	return newChainOn(t, testutil.NewMemDB())
}

func newChainOn(t *testing.T, blocks storage.DB) *chain {
	t.Helper()
	validator, err := wallet.Generate()
	require.NoError(t, err)
	user, err := wallet.Generate()
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.Validators = []string{validator.PubKey()}
	cfg.Genesis.Alloc[user.PubKey()] = 10_000

	c := &chain{
		bc:      core.NewBlockchain(storage.NewBlockStore(blocks)),
		state:   testutil.NewStateDB(),
		mempool: core.NewMempool(cfg.Genesis.ChainID),
		user:    user,
		clock:   time.Unix(1_700_000_000, 0),
	}
	genesis, err := config.CreateGenesisBlock(cfg, c.state, validator.PrivKey())
	require.NoError(t, err)
	require.NoError(t, c.bc.AddBlock(genesis))
	c.mempool.SetCommitted(c.bc.HasTx)

	c.emitter = events.NewEmitter()
	c.poa = consensus.New(cfg, c.bc, c.state, c.mempool, vm.NewExecutor(c.state, c.emitter), c.emitter, validator.PrivKey())
	c.poa.SetClock(func() time.Time { return c.clock })
	return c
}

func TestProduceBlockRecordsReceipts(t *testing.T) {
	c := newChain(t)
	require.True(t, c.poa.IsProposer())

	pay, err := c.user.Transfer("tolmarket-dev", c.bc.Tip().Header.Proposer, 100, 0, 0)
	require.NoError(t, err)
	bad, err := c.user.Buy("tolmarket-dev", "missing", c.user.PubKey(), 1, 0)
	require.NoError(t, err)
	require.NoError(t, c.mempool.Add(pay))
	require.NoError(t, c.mempool.Add(bad))

	block, err := c.poa.ProduceBlock()
	require.NoError(t, err)
	assert.Equal(t, int64(1), block.Header.Height)
	require.Len(t, block.Receipts, 2)
	assert.Equal(t, core.ReceiptSuccess, block.Receipts[0].Status)
	assert.Equal(t, core.ReceiptFailed, block.Receipts[1].Status)
	assert.Equal(t, 0, c.mempool.Size())

	r, err := c.bc.GetReceipt(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, core.ReceiptFailed, r.Status)
	assert.NotEmpty(t, r.Error)

	acc, err := c.state.GetAccount(c.user.PubKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(9_900), acc.Balance)
	// The failed buy keeps its nonce consumed, so it cannot run again.
	assert.Equal(t, uint64(2), acc.Nonce)
	assert.Equal(t, c.state.ComputeRoot(), block.Header.StateRoot)

	require.ErrorIs(t, c.mempool.Add(bad), core.ErrTxCommitted)
	r, err = c.bc.GetReceipt(bad.ID)
	require.NoError(t, err)
	assert.Equal(t, block.Header.Height, r.Height)
}

func TestEventsWaitForStoredBlock(t *testing.T) {
	blocks := storage.NewMemLevelDB()
	c := newChainOn(t, blocks)
	var seen []events.EventType
	c.emitter.Subscribe(func(ev events.Event) { seen = append(seen, ev.Type) },
		events.EventTokenTransfer, events.EventTxExecuted, events.EventBlockCommit)

	pay, err := c.user.Transfer("tolmarket-dev", c.bc.Tip().Header.Proposer, 100, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.mempool.Add(pay))

	// The block store is gone, so the block cannot be stored.
	require.NoError(t, blocks.Close())
	root := c.state.ComputeRoot()
	_, err = c.poa.ProduceBlock()
	require.Error(t, err)

	assert.Empty(t, seen)
	assert.Equal(t, root, c.state.ComputeRoot())
	assert.Equal(t, int64(0), c.bc.Height())
	assert.Equal(t, 1, c.mempool.Size())
}

func TestEventsFollowCommit(t *testing.T) {
	c := newChain(t)
	var seen []events.EventType
	c.emitter.Subscribe(func(ev events.Event) { seen = append(seen, ev.Type) },
		events.EventTokenTransfer, events.EventTxExecuted, events.EventBlockCommit)

	pay, err := c.user.Transfer("tolmarket-dev", c.bc.Tip().Header.Proposer, 100, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.mempool.Add(pay))
	_, err = c.poa.ProduceBlock()
	require.NoError(t, err)

	assert.Equal(t, []events.EventType{
		events.EventTokenTransfer, events.EventTxExecuted, events.EventBlockCommit,
	}, seen)
}

func TestBlockClockIsClamped(t *testing.T) {
	c := newChain(t)
	first, err := c.poa.ProduceBlock()
	require.NoError(t, err)

	c.clock = c.clock.Add(-time.Hour)
	second, err := c.poa.ProduceBlock()
	require.NoError(t, err)
	assert.Equal(t, first.Header.Timestamp, second.Header.Timestamp)

	c.clock = c.clock.Add(2 * time.Hour)
	third, err := c.poa.ProduceBlock()
	require.NoError(t, err)
	assert.Greater(t, third.Header.Timestamp, second.Header.Timestamp)
}

func TestValidateBlock(t *testing.T) {
	c := newChain(t)
	block, err := c.poa.ProduceBlock()
	require.NoError(t, err)

	other := newChain(t)
	require.ErrorContains(t, other.poa.ValidateBlock(block), "wrong proposer")

	forged := *block
	forged.Header.Height = 2
	require.ErrorContains(t, c.poa.ValidateBlock(&forged), "hash does not match")

	// Correctly signed, but it is the current tip rather than its successor.
	require.ErrorIs(t, c.poa.ValidateBlock(block), core.ErrHeightGap)
}

func TestNonProposerCannotProduce(t *testing.T) {
	c := newChain(t)
	outsider, err := wallet.Generate()
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Validators = []string{outsider.PubKey()}
	em := events.NewEmitter()
	poa := consensus.New(cfg, c.bc, c.state, c.mempool, vm.NewExecutor(c.state, em), em, c.user.PrivKey())

	assert.False(t, poa.IsProposer())
	_, err = poa.ProduceBlock()
	require.Error(t, err)
}
