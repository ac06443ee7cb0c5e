// Package market implements the marketplace settlement state machine:
// the registry, fixed-price listings, escrowed offers and bids, and the
// settlement engine they share.
package market

import (
	"encoding/json"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
)

var log = logging.Logger("market")

func init() {
	vm.Register(core.TxInitMarketplace, handleInitMarketplace)
	vm.Register(core.TxUpdateMarketplace, handleUpdateMarketplace)

	vm.Register(core.TxList, handleList)
	vm.Register(core.TxCancelListing, handleCancelListing)
	vm.Register(core.TxBuy, handleBuy)

	vm.Register(core.TxMakeOffer, handleMakeOffer)
	vm.Register(core.TxAcceptOffer, handleAcceptOffer)
	vm.Register(core.TxCancelOffer, handleCancelOffer)

	vm.Register(core.TxPlaceBid, handlePlaceBid)
	vm.Register(core.TxAcceptBid, handleAcceptBid)
	vm.Register(core.TxCancelBid, handleCancelBid)
}

// Initialize creates the marketplace registry. It fails with
// core.ErrAlreadyInitialized if one exists.
func Initialize(st core.State, authority string, feeBasisPoints uint16, treasury string) (*core.MarketplaceRegistry, error) {
	if _, err := st.GetMarketplace(); err == nil {
		return nil, core.ErrAlreadyInitialized
	} else if !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("checking marketplace: %w", err)
	}
	if feeBasisPoints > core.MaxFeeBasisPoints {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidFee, feeBasisPoints)
	}
	if err := validatePubKey("treasury", treasury); err != nil {
		return nil, err
	}
	reg := &core.MarketplaceRegistry{
		Authority:      authority,
		FeeBasisPoints: feeBasisPoints,
		Treasury:       treasury,
	}
	if err := st.SetMarketplace(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

// registry loads the marketplace registry, mapping absence to
// core.ErrNotInitialized.
func registry(st core.State) (*core.MarketplaceRegistry, error) {
	reg, err := st.GetMarketplace()
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrNotInitialized
	}
	return reg, err
}

func validatePubKey(field, v string) error {
	if _, err := crypto.PubKeyFromHex(v); err != nil {
		return fmt.Errorf("%s: %w: %v", field, core.ErrInvalidAddress, err)
	}
	return nil
}

func handleInitMarketplace(ctx *vm.Context, payload json.RawMessage) error {
	var p core.InitMarketplacePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode initialize_marketplace payload: %w", err)
	}
	reg, err := Initialize(ctx.State, ctx.Tx.From, p.FeeBasisPoints, p.Treasury)
	if err != nil {
		return err
	}
	log.Infow("marketplace initialized", "authority", reg.Authority, "fee_bps", reg.FeeBasisPoints)

	ctx.Emit(events.EventMarketInit, map[string]any{
		"authority":        reg.Authority,
		"fee_basis_points": reg.FeeBasisPoints,
		"treasury":         reg.Treasury,
	})
	return nil
}

func handleUpdateMarketplace(ctx *vm.Context, payload json.RawMessage) error {
	var p core.UpdateMarketplacePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode update_marketplace payload: %w", err)
	}
	reg, err := registry(ctx.State)
	if err != nil {
		return err
	}
	if reg.Authority != ctx.Tx.From {
		return fmt.Errorf("update marketplace: %w", core.ErrUnauthorized)
	}

	if p.FeeBasisPoints != nil {
		if *p.FeeBasisPoints > core.MaxFeeBasisPoints {
			return fmt.Errorf("%w: %d", core.ErrInvalidFee, *p.FeeBasisPoints)
		}
		reg.FeeBasisPoints = *p.FeeBasisPoints
	}
	if p.Treasury != nil {
		if err := validatePubKey("treasury", *p.Treasury); err != nil {
			return err
		}
		reg.Treasury = *p.Treasury
	}
	if p.Authority != nil {
		if err := validatePubKey("authority", *p.Authority); err != nil {
			return err
		}
		reg.Authority = *p.Authority
	}
	reg.Nonce++
	if err := ctx.State.SetMarketplace(reg); err != nil {
		return err
	}

	ctx.Emit(events.EventMarketUpdate, map[string]any{
		"authority":        reg.Authority,
		"fee_basis_points": reg.FeeBasisPoints,
		"treasury":         reg.Treasury,
	})
	return nil
}
