package market_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/wallet"
)

func listPayload(assetID string, price uint64, seller *wallet.Wallet) core.ListPayload {
	return core.ListPayload{
		AssetID:            assetID,
		Price:              price,
		SellerAssetAccount: seller.AssetAccount(assetID),
	}
}

func TestBuySettlesListing(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(core.AssetAccountDeposit)
	buyer := h.wallet(1_000_000 + core.AssetAccountDeposit)
	h.mint(seller, "nft-1")

	h.mustSend(seller, core.TxList, listPayload("nft-1", 1_000_000, seller))
	h.mustSend(buyer, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})

	assert.Equal(t, uint64(975_000), h.balance(seller.PubKey()))
	assert.Equal(t, uint64(25_000), h.balance(h.treasury.PubKey()))
	assert.Equal(t, uint64(0), h.balance(buyer.PubKey()))
	assert.True(t, h.owns(buyer, "nft-1"))
	assert.False(t, h.owns(seller, "nft-1"))

	l, err := h.state.GetListing(core.ListingKey("nft-1", seller.PubKey()))
	require.NoError(t, err)
	assert.False(t, l.Active)
	assert.Equal(t, startTime, l.ClosedAt)

	ev := h.lastEvent()
	assert.Equal(t, events.EventMarketBuy, ev.Type)
	assert.Equal(t, uint64(25_000), ev.Data["fee"])
	assert.Equal(t, buyer.PubKey(), ev.Data["buyer"])
}

func TestBuyInsufficientFundsOnlyConsumesNonce(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(core.AssetAccountDeposit)
	buyer := h.wallet(500)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 1_000, seller))

	before := h.state.ComputeRoot()
	err := h.send(buyer, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	require.ErrorIs(t, err, core.ErrInsufficientFunds)

	acc, err := h.state.GetAccount(buyer.PubKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.Nonce)
	assert.Equal(t, uint64(500), acc.Balance)
	// Restoring the nonce gives back the exact pre-transaction state.
	acc.Nonce = 0
	require.NoError(t, h.state.SetAccount(acc))
	assert.Equal(t, before, h.state.ComputeRoot())

	l, err := h.state.GetListing(core.ListingKey("nft-1", seller.PubKey()))
	require.NoError(t, err)
	assert.True(t, l.Active)
	assert.True(t, h.owns(seller, "nft-1"))
}

func TestBuyFailsWhenBuyerCannotFundAssetAccount(t *testing.T) {
	h := newHarness(t, 0)
	seller := h.wallet(core.AssetAccountDeposit)
	buyer := h.wallet(1_000) // price only, nothing for the deposit
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 1_000, seller))

	err := h.send(buyer, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	require.ErrorIs(t, err, core.ErrInsufficientFunds)
	assert.Equal(t, uint64(1_000), h.balance(buyer.PubKey()))
	assert.Equal(t, uint64(0), h.balance(seller.PubKey()))
	assert.True(t, h.owns(seller, "nft-1"))
}

func TestBuyInactiveListing(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(core.AssetAccountDeposit)
	first := h.wallet(10_000)
	second := h.wallet(10_000)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 1_000, seller))

	h.mustSend(first, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	err := h.send(second, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	require.ErrorIs(t, err, core.ErrInactiveListing)
	assert.Equal(t, uint64(10_000), h.balance(second.PubKey()))
}

func TestConcurrentBuysSettleOnce(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(core.AssetAccountDeposit)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 1_000, seller))

	buyers := make([]*wallet.Wallet, 8)
	txs := make([]*core.Transaction, len(buyers))
	for i := range buyers {
		buyers[i] = h.wallet(10_000)
		tx, err := buyers[i].Buy("", "nft-1", seller.PubKey(), 0, 0)
		require.NoError(t, err)
		txs[i] = tx
	}
	block := core.NewBlock(100, "prev", seller.PubKey(), txs)

	var wg sync.WaitGroup
	errs := make([]error, len(txs))
	for i, tx := range txs {
		wg.Add(1)
		go func(i int, tx *core.Transaction) {
			defer wg.Done()
			errs[i] = h.exec.ExecuteTx(block, tx)
		}(i, tx)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, core.ErrInactiveListing)
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, uint64(975), h.balance(seller.PubKey()))
	assert.Equal(t, uint64(25), h.balance(h.treasury.PubKey()))
}

func TestListRequiresOwnership(t *testing.T) {
	h := newHarness(t, 250)
	owner := h.wallet(core.AssetAccountDeposit)
	thief := h.wallet(0)
	h.mint(owner, "nft-1")

	err := h.send(thief, core.TxList, core.ListPayload{
		AssetID:            "nft-1",
		Price:              10,
		SellerAssetAccount: owner.AssetAccount("nft-1"),
	})
	require.ErrorIs(t, err, core.ErrInvalidOwnership)

	err = h.send(owner, core.TxList, listPayload("nft-1", 0, owner))
	require.ErrorIs(t, err, core.ErrInvalidPrice)
}

func TestListSlotReopensAfterCancel(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(core.AssetAccountDeposit)
	h.mint(seller, "nft-1")

	h.mustSend(seller, core.TxList, listPayload("nft-1", 100, seller))
	err := h.send(seller, core.TxList, listPayload("nft-1", 200, seller))
	require.ErrorIs(t, err, core.ErrRecordExists)

	h.mustSend(seller, core.TxCancelListing, core.CancelListingPayload{AssetID: "nft-1"})
	h.mustSend(seller, core.TxList, listPayload("nft-1", 200, seller))

	l, err := h.state.GetListing(core.ListingKey("nft-1", seller.PubKey()))
	require.NoError(t, err)
	assert.True(t, l.Active)
	assert.Equal(t, uint64(200), l.Price)
	assert.Equal(t, uint64(1), l.Nonce)
}

func TestCancelListing(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(core.AssetAccountDeposit)
	other := h.wallet(0)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 100, seller))

	err := h.send(other, core.TxCancelListing, core.CancelListingPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	require.ErrorIs(t, err, core.ErrNotSeller)

	h.mustSend(seller, core.TxCancelListing, core.CancelListingPayload{AssetID: "nft-1"})
	assert.Equal(t, events.EventMarketCancel, h.lastEvent().Type)

	err = h.send(seller, core.TxCancelListing, core.CancelListingPayload{AssetID: "nft-1"})
	require.ErrorIs(t, err, core.ErrInactiveListing)
	assert.True(t, h.owns(seller, "nft-1"))
}

func TestBuyOwnListing(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(10_000)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 100, seller))

	err := h.send(seller, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	require.ErrorIs(t, err, core.ErrSelfTrade)
}

func TestBuyWithoutMarketplace(t *testing.T) {
	h := newHarness(t, noMarket)
	seller := h.wallet(core.AssetAccountDeposit)
	buyer := h.wallet(10_000)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 100, seller))

	err := h.send(buyer, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	require.ErrorIs(t, err, core.ErrNotInitialized)
}

func TestBuyAfterSellerMovedAsset(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(2 * core.AssetAccountDeposit)
	friend := h.wallet(0)
	buyer := h.wallet(10_000)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 100, seller))
	h.mustSend(seller, core.TxTransferAsset, core.TransferAssetPayload{AssetID: "nft-1", To: friend.PubKey()})

	err := h.send(buyer, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})
	require.ErrorIs(t, err, core.ErrNotOwner)
	assert.Equal(t, uint64(10_000), h.balance(buyer.PubKey()))
}
