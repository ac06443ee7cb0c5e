package asset_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/vm/modules/asset"
	"github.com/tolelom/tolmarket/vm/modules/economy"
)

func seed(t *testing.T, st core.State, owner string) string {
	t.Helper()
	require.NoError(t, st.SetAccount(&core.Account{Address: owner, Balance: core.AssetAccountDeposit}))
	acct, err := asset.Open(st, "nft-1", owner, owner, economy.Signer(owner))
	require.NoError(t, err)
	acct.Amount = 1
	require.NoError(t, st.SetAssetAccount(acct))
	return acct.Address
}

func TestOpenChargesDepositOnce(t *testing.T) {
	st := testutil.NewStateDB()
	require.NoError(t, st.SetAccount(&core.Account{Address: "alice", Balance: 2 * core.AssetAccountDeposit}))

	a1, err := asset.Open(st, "nft-1", "alice", "alice", economy.Signer("alice"))
	require.NoError(t, err)
	a2, err := asset.Open(st, "nft-1", "alice", "alice", economy.Signer("alice"))
	require.NoError(t, err)
	assert.Equal(t, a1.Address, a2.Address)

	bal, _ := economy.Balance(st, "alice")
	assert.Equal(t, uint64(core.AssetAccountDeposit), bal)
	parked, _ := economy.Balance(st, a1.Address)
	assert.Equal(t, uint64(core.AssetAccountDeposit), parked)
}

func TestTransferMovesUnit(t *testing.T) {
	st := testutil.NewStateDB()
	src := seed(t, st, "alice")
	require.NoError(t, st.SetAccount(&core.Account{Address: "bob", Balance: core.AssetAccountDeposit}))

	dst, err := asset.Transfer(st, asset.TransferRequest{
		AssetID: "nft-1", From: src, To: "bob", Owner: "alice",
		Payer: "bob", PayerAuth: economy.Signer("bob"),
	})
	require.NoError(t, err)
	assert.Equal(t, core.AssetAccountAddress("nft-1", "bob"), dst)

	held, err := asset.Holds(st, "nft-1", "bob", dst)
	require.NoError(t, err)
	assert.True(t, held)
	held, err = asset.Holds(st, "nft-1", "alice", src)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestTransferRejectsNonOwner(t *testing.T) {
	st := testutil.NewStateDB()
	src := seed(t, st, "alice")

	_, err := asset.Transfer(st, asset.TransferRequest{
		AssetID: "nft-1", From: src, To: "carol", Owner: "mallory",
		Payer: "mallory", PayerAuth: economy.Signer("mallory"),
	})
	require.ErrorIs(t, err, core.ErrNotOwner)

	_, err = asset.Transfer(st, asset.TransferRequest{
		AssetID: "nft-1", From: "nowhere", To: "carol", Owner: "alice",
	})
	require.ErrorIs(t, err, core.ErrNotOwner)
}

func TestTransferPayerShortOfDeposit(t *testing.T) {
	st := testutil.NewStateDB()
	src := seed(t, st, "alice")
	before := st.ComputeRoot()

	_, err := asset.Transfer(st, asset.TransferRequest{
		AssetID: "nft-1", From: src, To: "bob", Owner: "alice",
		Payer: "bob", PayerAuth: economy.Signer("bob"),
	})
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.Equal(t, before, st.ComputeRoot())
}
