package market

import (
	"encoding/json"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/economy"
)

func handleMakeOffer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.OrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode make_offer payload: %w", err)
	}
	if err := checkNewOrder(ctx, p); err != nil {
		return err
	}

	buyer := ctx.Tx.From
	key := core.OfferKey(p.AssetID, buyer)
	prev, err := ctx.State.GetOffer(key)
	found, err := lookup(err)
	if err != nil {
		return fmt.Errorf("checking offer %s: %w", key, err)
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

	seeds := core.OfferEscrowSeeds(p.AssetID, buyer)
	offer := &core.Offer{
		Key:       key,
		Buyer:     buyer,
		AssetID:   p.AssetID,
		Price:     p.Price,
		CreatedAt: ctx.Now(),
		ExpiresAt: p.ExpiresAt,
		Active:    true,
		Escrow:    seeds.Address(),
		Nonce:     nonce,
	}
	if err := ctx.State.SetOffer(offer); err != nil {
		return err
	}
	if err := economy.Transfer(ctx.State, buyer, offer.Escrow, p.Price, economy.Signer(buyer)); err != nil {
		return fmt.Errorf("escrow offer: %w", err)
	}

	ctx.Emit(events.EventOfferMade, map[string]any{
		"offer":      key,
		"buyer":      buyer,
		"asset_id":   p.AssetID,
		"price":      p.Price,
		"expires_at": p.ExpiresAt,
	})
	return nil
}

func handleAcceptOffer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.AcceptOrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode accept_offer payload: %w", err)
	}

	offer, err := getOffer(ctx.State, p.AssetID, p.Counterparty)
	if err != nil {
		return err
	}
	if !offer.Active {
		return fmt.Errorf("offer %s: %w", offer.Key, core.ErrInactiveOffer)
	}
	if now := ctx.Now(); now > offer.ExpiresAt {
		return fmt.Errorf("offer %s expired at %d, now %d: %w", offer.Key, offer.ExpiresAt, now, core.ErrExpiredOffer)
	}
	seller := ctx.Tx.From
	if seller == offer.Buyer {
		return core.ErrSelfTrade
	}
	if err := checkHolder(ctx.State, offer.AssetID, seller, p.SellerAssetAccount); err != nil {
		return err
	}
	reg, err := registry(ctx.State)
	if err != nil {
		return err
	}

	seeds := core.OfferEscrowSeeds(offer.AssetID, offer.Buyer)
	s, err := Settle(ctx.State, reg, Trade{
		AssetID:            offer.AssetID,
		Price:              offer.Price,
		Source:             offer.Escrow,
		SourceAuth:         economy.Derived(seeds),
		Seller:             seller,
		SellerAssetAccount: p.SellerAssetAccount,
		Buyer:              offer.Buyer,
		// The accepting seller is the signer, so the seller opens the
		// buyer's receiving account. Proceeds are paid first and can cover it.
		AccountPayer:     seller,
		AccountPayerAuth: economy.Signer(seller),
		Deactivate: func() error {
			offer.Active = false
			offer.ClosedAt = ctx.Now()
			return ctx.State.SetOffer(offer)
		},
	})
	if err != nil {
		return err
	}
	if _, err := drainEscrow(ctx.State, seeds, offer.Buyer); err != nil {
		return err
	}
	log.Infow("offer accepted", "offer", offer.Key, "seller", seller, "price", s.Price, "fee", s.Fee)

	data := s.eventData()
	data["offer"] = offer.Key
	ctx.Emit(events.EventOfferAccepted, data)
	return nil
}

func handleCancelOffer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CancelOrderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode cancel_offer payload: %w", err)
	}
	owner := p.Owner
	if owner == "" {
		owner = ctx.Tx.From
	}

	offer, err := getOffer(ctx.State, p.AssetID, owner)
	if err != nil {
		return err
	}
	if offer.Buyer != ctx.Tx.From {
		return core.ErrNotBuyer
	}
	if !offer.Active {
		return fmt.Errorf("offer %s: %w", offer.Key, core.ErrInactiveOffer)
	}

	// No expiry check: an expired offer stays refundable.
	refund, err := drainEscrow(ctx.State, core.OfferEscrowSeeds(offer.AssetID, offer.Buyer), offer.Buyer)
	if err != nil {
		return err
	}
	offer.Active = false
	offer.ClosedAt = ctx.Now()
	if err := ctx.State.SetOffer(offer); err != nil {
		return err
	}

	ctx.Emit(events.EventOfferCanceled, map[string]any{
		"offer":    offer.Key,
		"buyer":    offer.Buyer,
		"asset_id": offer.AssetID,
		"price":    offer.Price,
		"refund":   refund,
	})
	return nil
}

func getOffer(st core.State, assetID, buyer string) (*core.Offer, error) {
	o, err := st.GetOffer(core.OfferKey(assetID, buyer))
	if err != nil {
		return nil, fmt.Errorf("offer on asset %q by %s: %w", assetID, buyer, err)
	}
	return o, nil
}
