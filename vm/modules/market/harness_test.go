package market_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/internal/testutil"
	"github.com/tolelom/tolmarket/storage"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/market"
	"github.com/tolelom/tolmarket/wallet"

	_ "github.com/tolelom/tolmarket/vm/modules/asset"
	_ "github.com/tolelom/tolmarket/vm/modules/economy"
)

const startTime = int64(1_700_000_000)

// harness drives the market handlers through the executor, one transaction
// per block, with a controllable block clock.
type harness struct {
	t        *testing.T
	state    *storage.StateDB
	exec     *vm.Executor
	emitter  *events.Emitter
	events   []events.Event
	now      int64
	height   int64
	treasury *wallet.Wallet
	admin    *wallet.Wallet
}

func newHarness(t *testing.T, feeBps uint16) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		state:   testutil.NewStateDB(),
		emitter: events.NewEmitter(),
		now:     startTime,
	}
	h.exec = vm.NewExecutor(h.state, h.emitter)
	h.emitter.Subscribe(func(ev events.Event) { h.events = append(h.events, ev) },
		events.EventMarketList, events.EventMarketCancel, events.EventMarketBuy,
		events.EventOfferMade, events.EventOfferAccepted, events.EventOfferCanceled,
		events.EventBidPlaced, events.EventBidAccepted, events.EventBidCanceled,
		events.EventMarketUpdate)

	h.treasury = h.wallet(0)
	h.admin = h.wallet(0)
	if feeBps != noMarket {
		_, err := market.Initialize(h.state, h.admin.PubKey(), feeBps, h.treasury.PubKey())
		require.NoError(t, err)
	}
	return h
}

// noMarket skips registry initialization.
const noMarket = ^uint16(0)

func (h *harness) wallet(balance uint64) *wallet.Wallet {
	h.t.Helper()
	w, err := wallet.Generate()
	require.NoError(h.t, err)
	if balance > 0 {
		require.NoError(h.t, h.state.SetAccount(&core.Account{Address: w.PubKey(), Balance: balance}))
	}
	return w
}

// send executes one transaction from w in a fresh block stamped h.now.
func (h *harness) send(w *wallet.Wallet, typ core.TxType, payload any) error {
	h.t.Helper()
	acc, err := h.state.GetAccount(w.PubKey())
	require.NoError(h.t, err)
	tx, err := w.NewTx("", typ, acc.Nonce, 0, payload)
	require.NoError(h.t, err)
	h.height++
	block := core.NewBlock(h.height, "prev", w.PubKey(), []*core.Transaction{tx})
	block.Header.Timestamp = time.Unix(h.now, 0).UnixNano()
	return h.exec.ExecuteTx(block, tx)
}

func (h *harness) mustSend(w *wallet.Wallet, typ core.TxType, payload any) {
	h.t.Helper()
	require.NoError(h.t, h.send(w, typ, payload))
}

// mint creates assetID owned by w, paying the asset account deposit.
func (h *harness) mint(w *wallet.Wallet, assetID string) {
	h.t.Helper()
	h.mustSend(w, core.TxMintAsset, core.MintAssetPayload{AssetID: assetID})
}

func (h *harness) balance(addr string) uint64 {
	h.t.Helper()
	acc, err := h.state.GetAccount(addr)
	require.NoError(h.t, err)
	return acc.Balance
}

func (h *harness) owns(w *wallet.Wallet, assetID string) bool {
	h.t.Helper()
	acct, err := h.state.GetAssetAccount(core.AssetAccountAddress(assetID, w.PubKey()))
	if err != nil {
		return false
	}
	return acct.Owner == w.PubKey() && acct.Amount == 1
}

func (h *harness) lastEvent() events.Event {
	h.t.Helper()
	require.NotEmpty(h.t, h.events)
	return h.events[len(h.events)-1]
}

func (h *harness) offerEscrow(assetID string, buyer *wallet.Wallet) string {
	return core.OfferEscrowSeeds(assetID, buyer.PubKey()).Address()
}

func (h *harness) bidEscrow(assetID string, bidder *wallet.Wallet) string {
	return core.BidEscrowSeeds(assetID, bidder.PubKey()).Address()
}

func accept(assetID string, counterparty, seller *wallet.Wallet) core.AcceptOrderPayload {
	return core.AcceptOrderPayload{
		AssetID:            assetID,
		Counterparty:       counterparty.PubKey(),
		SellerAssetAccount: core.AssetAccountAddress(assetID, seller.PubKey()),
	}
}
