package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/storage"
)

func TestStateDBSnapshotRevert(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.SetAccount(&core.Account{Address: "alice", Balance: 100}))

	snap, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SetAccount(&core.Account{Address: "alice", Balance: 1}))
	require.NoError(t, s.SetListing(&core.Listing{Key: "l1", Seller: "alice", Active: true}))

	require.NoError(t, s.RevertToSnapshot(snap))
	acc, err := s.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acc.Balance)
	_, err = s.GetListing("l1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.Error(t, s.RevertToSnapshot(snap), "snapshot is consumed by revert")
}

func TestStateDBDiscardKeepsWritesForOuterRevert(t *testing.T) {
	s := testutil.NewStateDB()
	outer, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SetAccount(&core.Account{Address: "alice", Balance: 1}))

	inner, err := s.Snapshot()
	require.NoError(t, err)
	require.NoError(t, s.SetAccount(&core.Account{Address: "alice", Balance: 2}))
	require.NoError(t, s.SetOffer(&core.Offer{Key: "o1", Buyer: "alice", Active: true}))
	require.NoError(t, s.DiscardSnapshot(inner))
	require.Error(t, s.DiscardSnapshot(inner))

	acc, err := s.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), acc.Balance)

	require.NoError(t, s.RevertToSnapshot(outer))
	acc, err = s.GetAccount("alice")
	require.NoError(t, err)
	assert.Zero(t, acc.Balance)
	_, err = s.GetOffer("o1")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestStateDBRevertRestoresBufferedValue(t *testing.T) {
	s := testutil.NewStateDB()
	require.NoError(t, s.SetAccount(&core.Account{Address: "alice", Balance: 1}))
	for i := 0; i < 3; i++ {
		snap, err := s.Snapshot()
		require.NoError(t, err)
		require.NoError(t, s.SetAccount(&core.Account{Address: "alice", Balance: 50}))
		require.NoError(t, s.SetAccount(&core.Account{Address: "alice", Balance: 99}))
		require.NoError(t, s.RevertToSnapshot(snap))
	}
	acc, err := s.GetAccount("alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.Balance)
}

func TestStateDBMissingAccountIsZero(t *testing.T) {
	s := testutil.NewStateDB()
	acc, err := s.GetAccount("nobody")
	require.NoError(t, err)
	assert.Equal(t, &core.Account{Address: "nobody"}, acc)
}

func TestStateRootCoversCommittedAndPending(t *testing.T) {
	db := testutil.NewMemDB()
	a := storage.NewStateDB(db)
	empty := a.ComputeRoot()

	require.NoError(t, a.SetBid(&core.Bid{Key: "b1", Bidder: "bob", Price: 7, Active: true}))
	pending := a.ComputeRoot()
	assert.NotEqual(t, empty, pending)

	require.NoError(t, a.Commit())
	assert.Equal(t, pending, a.ComputeRoot())

	// A second view over the same DB sees the committed record.
	b := storage.NewStateDB(db)
	assert.Equal(t, pending, b.ComputeRoot())
	bid, err := b.GetBid("b1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), bid.Price)
}

func TestStateRootIsOrderIndependent(t *testing.T) {
	a := testutil.NewStateDB()
	b := testutil.NewStateDB()

	require.NoError(t, a.SetAccount(&core.Account{Address: "x", Balance: 1}))
	require.NoError(t, a.SetOffer(&core.Offer{Key: "o", Buyer: "y", Price: 2}))
	require.NoError(t, b.SetOffer(&core.Offer{Key: "o", Buyer: "y", Price: 2}))
	require.NoError(t, b.SetAccount(&core.Account{Address: "x", Balance: 1}))

	assert.Equal(t, a.ComputeRoot(), b.ComputeRoot())
}

func TestMarketplaceRecord(t *testing.T) {
	s := testutil.NewStateDB()
	_, err := s.GetMarketplace()
	require.ErrorIs(t, err, core.ErrNotFound)

	reg := &core.MarketplaceRegistry{Authority: "admin", FeeBasisPoints: 250, Treasury: "t"}
	require.NoError(t, s.SetMarketplace(reg))
	got, err := s.GetMarketplace()
	require.NoError(t, err)
	assert.Equal(t, reg, got)
}
