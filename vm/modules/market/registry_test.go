package market_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm/modules/market"
)

func TestInitializeMarketplace(t *testing.T) {
	h := newHarness(t, noMarket)
	admin := h.wallet(0)
	treasury := h.wallet(0)

	err := h.send(admin, core.TxInitMarketplace, core.InitMarketplacePayload{FeeBasisPoints: 10_001, Treasury: treasury.PubKey()})
	require.ErrorIs(t, err, core.ErrInvalidFee)
	err = h.send(admin, core.TxInitMarketplace, core.InitMarketplacePayload{FeeBasisPoints: 250, Treasury: "not-a-key"})
	require.ErrorIs(t, err, core.ErrInvalidAddress)

	h.mustSend(admin, core.TxInitMarketplace, core.InitMarketplacePayload{FeeBasisPoints: 250, Treasury: treasury.PubKey()})
	reg, err := h.state.GetMarketplace()
	require.NoError(t, err)
	assert.Equal(t, admin.PubKey(), reg.Authority)
	assert.Equal(t, uint16(250), reg.FeeBasisPoints)
	assert.Equal(t, treasury.PubKey(), reg.Treasury)

	other := h.wallet(0)
	err = h.send(other, core.TxInitMarketplace, core.InitMarketplacePayload{FeeBasisPoints: 0, Treasury: other.PubKey()})
	require.ErrorIs(t, err, core.ErrAlreadyInitialized)

	_, err = market.Initialize(h.state, other.PubKey(), 0, other.PubKey())
	require.ErrorIs(t, err, core.ErrAlreadyInitialized)
}

func TestUpdateMarketplace(t *testing.T) {
	h := newHarness(t, 250)
	intruder := h.wallet(0)
	newTreasury := h.wallet(0)

	fee := uint16(500)
	err := h.send(intruder, core.TxUpdateMarketplace, core.UpdateMarketplacePayload{FeeBasisPoints: &fee})
	require.ErrorIs(t, err, core.ErrUnauthorized)

	tooHigh := uint16(20_000)
	err = h.send(h.admin, core.TxUpdateMarketplace, core.UpdateMarketplacePayload{FeeBasisPoints: &tooHigh})
	require.ErrorIs(t, err, core.ErrInvalidFee)

	treasury := newTreasury.PubKey()
	h.mustSend(h.admin, core.TxUpdateMarketplace, core.UpdateMarketplacePayload{FeeBasisPoints: &fee, Treasury: &treasury})
	assert.Equal(t, events.EventMarketUpdate, h.lastEvent().Type)

	reg, err := h.state.GetMarketplace()
	require.NoError(t, err)
	assert.Equal(t, uint16(500), reg.FeeBasisPoints)
	assert.Equal(t, treasury, reg.Treasury)
	assert.Equal(t, h.admin.PubKey(), reg.Authority)
	assert.Equal(t, uint64(1), reg.Nonce)

	// Handing over authority locks out the previous one.
	next := intruder.PubKey()
	h.mustSend(h.admin, core.TxUpdateMarketplace, core.UpdateMarketplacePayload{Authority: &next})
	err = h.send(h.admin, core.TxUpdateMarketplace, core.UpdateMarketplacePayload{FeeBasisPoints: &fee})
	require.ErrorIs(t, err, core.ErrUnauthorized)
	h.mustSend(intruder, core.TxUpdateMarketplace, core.UpdateMarketplacePayload{FeeBasisPoints: &fee})
}

func TestUpdatedFeeAppliesToNextSale(t *testing.T) {
	h := newHarness(t, 250)
	seller := h.wallet(core.AssetAccountDeposit)
	buyer := h.wallet(10_000 + core.AssetAccountDeposit)
	h.mint(seller, "nft-1")
	h.mustSend(seller, core.TxList, listPayload("nft-1", 10_000, seller))

	fee := uint16(1_000)
	h.mustSend(h.admin, core.TxUpdateMarketplace, core.UpdateMarketplacePayload{FeeBasisPoints: &fee})
	h.mustSend(buyer, core.TxBuy, core.BuyPayload{AssetID: "nft-1", Seller: seller.PubKey()})

	assert.Equal(t, uint64(1_000), h.balance(h.treasury.PubKey()))
	assert.Equal(t, uint64(9_000), h.balance(seller.PubKey()))
}
