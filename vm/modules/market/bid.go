package market

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/economy"
)

func handlePlaceBid(ctx *vm.Context, payload json.RawMessage) error {
	var p core.OrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode place_bid payload: %w", err)
	}
	if err := checkNewOrder(ctx, p); err != nil {
		return err
	}

	bidder := ctx.Tx.From
	key := core.BidKey(p.AssetID, bidder)
	prev, err := ctx.State.GetBid(key)
	found, err := lookup(err)
	if err != nil {
		return fmt.Errorf("checking bid %s: %w", key, err)
	}
	var active bool
	var prevNonce uint64
	if found {
		active, prevNonce = prev.Active, prev.Nonce
	}
	nonce, err := slotNonce(key, found, active, prevNonce)
	if err != nil {
		return err
	}

	seeds := core.BidEscrowSeeds(p.AssetID, bidder)
	bid := &core.Bid{
		Key:       key,
		Bidder:    bidder,
		AssetID:   p.AssetID,
		Price:     p.Price,
		CreatedAt: ctx.Now(),
		ExpiresAt: p.ExpiresAt,
		Active:    true,
		Escrow:    seeds.Address(),
		Nonce:     nonce,
	}
	if err := ctx.State.SetBid(bid); err != nil {
		return err
	}
	if err := economy.Transfer(ctx.State, bidder, bid.Escrow, p.Price, economy.Signer(bidder)); err != nil {
		return fmt.Errorf("escrow bid: %w", err)
	}

	ctx.Emit(events.EventBidPlaced, map[string]any{
		"bid":        key,
		"bidder":     bidder,
		"asset_id":   p.AssetID,
		"price":      p.Price,
		"expires_at": p.ExpiresAt,
	})
	return nil
}

func handleAcceptBid(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AcceptOrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode accept_bid payload: %w", err)
	}

	bid, err := getBid(ctx.State, p.AssetID, p.Counterparty)
	if err != nil {
		return err
	}
	if !bid.Active {
		return fmt.Errorf("bid %s: %w", bid.Key, core.ErrInactiveBid)
	}
	if now := ctx.Now(); now > bid.ExpiresAt {
		return fmt.Errorf("bid %s expired at %d, now %d: %w", bid.Key, bid.ExpiresAt, now, core.ErrExpiredBid)
	}
	seller := ctx.Tx.From
	if seller == bid.Bidder {
		return core.ErrSelfTrade
	}
	if err := checkHolder(ctx.State, bid.AssetID, seller, p.SellerAssetAccount); err != nil {
		return err
	}
	reg, err := registry(ctx.State)
	if err != nil {
		return err
	}

	seeds := core.BidEscrowSeeds(bid.AssetID, bid.Bidder)
	s, err := Settle(ctx.State, reg, Trade{
		AssetID:            bid.AssetID,
		Price:              bid.Price,
		Source:             bid.Escrow,
		SourceAuth:         economy.Derived(seeds),
		Seller:             seller,
		SellerAssetAccount: p.SellerAssetAccount,
		Buyer:              bid.Bidder,
		AccountPayer:       seller,
		AccountPayerAuth:   economy.Signer(seller),
		Deactivate: func() error {
			bid.Active = false
			bid.ClosedAt = ctx.Now()
			return ctx.State.SetBid(bid)
		},
	})
	if err != nil {
		return err
	}
	if _, err := drainEscrow(ctx.State, seeds, bid.Bidder); err != nil {
		return err
	}
	log.Infow("bid accepted", "bid", bid.Key, "seller", seller, "price", s.Price, "fee", s.Fee)

	data := s.eventData()
	data["bid"] = bid.Key
	data["bidder"] = bid.Bidder
	ctx.Emit(events.EventBidAccepted, data)
	return nil
}

func handleCancelBid(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CancelOrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode cancel_bid payload: %w", err)
	}
	owner := p.Owner
	if owner == "" {
		owner = ctx.Tx.From
	}

	bid, err := getBid(ctx.State, p.AssetID, owner)
	if err != nil {
		return err
	}
	if bid.Bidder != ctx.Tx.From {
		return core.ErrNotBidder
	}
	if !bid.Active {
		return fmt.Errorf("bid %s: %w", bid.Key, core.ErrInactiveBid)
	}

	refund, err := drainEscrow(ctx.State, core.BidEscrowSeeds(bid.AssetID, bid.Bidder), bid.Bidder)
	if err != nil {
		return err
	}
	bid.Active = false
	bid.ClosedAt = ctx.Now()
	if err := ctx.State.SetBid(bid); err != nil {
		return err
	}

	ctx.Emit(events.EventBidCanceled, map[string]any{
		"bid":      bid.Key,
		"bidder":   bid.Bidder,
		"asset_id": bid.AssetID,
		"price":    bid.Price,
		"refund":   refund,
	})
	return nil
}

func getBid(st core.State, assetID, bidder string) (*core.Bid, error) {
	b, err := st.GetBid(core.BidKey(assetID, bidder))
	if err != nil {
		return nil, fmt.Errorf("bid on asset %q by %s: %w", assetID, bidder, err)
	}
	return b, nil
}
