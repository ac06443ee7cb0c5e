package market

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/asset"
	"github.com/tolelom/tolmarket/vm/modules/economy"
)

func handleList(ctx *vm.Context, payload json.RawMessage) error {
	var p core.ListPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode list payload: %w", err)
	}
	if p.Price == 0 {
		return core.ErrInvalidPrice
	}

	seller := ctx.Tx.From
	ok, err := asset.Holds(ctx.State, p.AssetID, seller, p.SellerAssetAccount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("asset %q in %s: %w", p.AssetID, p.SellerAssetAccount, core.ErrInvalidOwnership)
	}

	key := core.ListingKey(p.AssetID, seller)
	var nonce uint64
	prev, err := ctx.State.GetListing(key)
	switch {
	case err == nil && prev.Active:
		return fmt.Errorf("listing %s: %w", key, core.ErrRecordExists)
	case err == nil:
		nonce = prev.Nonce + 1
	case !errors.Is(err, core.ErrNotFound):
		return fmt.Errorf("checking listing %s: %w", key, err)
	}

	listing := &core.Listing{
		Key:                key,
		Seller:             seller,
		AssetID:            p.AssetID,
		SellerAssetAccount: p.SellerAssetAccount,
		Price:              p.Price,
		Active:             true,
		CreatedAt:          ctx.Now(),
		Nonce:              nonce,
	}
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emit(events.EventMarketList, map[string]any{
		"listing":  key,
		"asset_id": p.AssetID,
		"seller":   seller,
		"price":    p.Price,
	})
	return nil
}

func handleCancelListing(ctx *vm.Context, payload json.RawMessage) error {
	var p core.CancelListingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode cancel_listing payload: %w", err)
	}

	seller := p.Seller
	if seller == "" {
		seller = ctx.Tx.From
	}
	listing, err := getListing(ctx.State, p.AssetID, seller)
	if err != nil {
		return err
	}
	if listing.Seller != ctx.Tx.From {
		return core.ErrNotSeller
	}
	if !listing.Active {
		return fmt.Errorf("listing %s: %w", listing.Key, core.ErrInactiveListing)
	}

	listing.Active = false
	listing.ClosedAt = ctx.Now()
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emit(events.EventMarketCancel, map[string]any{
		"listing":  listing.Key,
		"asset_id": listing.AssetID,
		"seller":   listing.Seller,
	})
	return nil
}

func handleBuy(ctx *vm.Context, payload json.RawMessage) error {
	var p core.BuyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode buy payload: %w", err)
	}

	listing, err := getListing(ctx.State, p.AssetID, p.Seller)
	if err != nil {
		return err
	}
	if !listing.Active {
		return fmt.Errorf("listing %s: %w", listing.Key, core.ErrInactiveListing)
	}
	buyer := ctx.Tx.From
	if listing.Seller == buyer {
		return core.ErrSelfTrade
	}
	reg, err := registry(ctx.State)
	if err != nil {
		return err
	}

	s, err := Settle(ctx.State, reg, Trade{
		AssetID:            listing.AssetID,
		Price:              listing.Price,
		Source:             buyer,
		SourceAuth:         economy.Signer(buyer),
		Seller:             listing.Seller,
		SellerAssetAccount: listing.SellerAssetAccount,
		Buyer:              buyer,
		AccountPayer:       buyer,
		AccountPayerAuth:   economy.Signer(buyer),
		Deactivate: func() error {
			listing.Active = false
			listing.ClosedAt = ctx.Now()
			return ctx.State.SetListing(listing)
		},
	})
	if err != nil {
		return err
	}
	log.Infow("listing sold", "listing", listing.Key, "buyer", buyer, "price", s.Price, "fee", s.Fee)

	data := s.eventData()
	data["listing"] = listing.Key
	ctx.Emit(events.EventMarketBuy, data)
	return nil
}

func getListing(st core.State, assetID, seller string) (*core.Listing, error) {
	key := core.ListingKey(assetID, seller)
	l, err := st.GetListing(key)
	if err != nil {
		return nil, fmt.Errorf("listing for asset %q by %s: %w", assetID, seller, err)
	}
	return l, nil
}
