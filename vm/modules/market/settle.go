package market

import (
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/vm/modules/asset"
	"github.com/tolelom/tolmarket/vm/modules/economy"
)

// Trade is everything the settlement engine needs to conclude one sale.
type Trade struct {
	AssetID string
	Price   uint64

	// Source pays the price: the buyer's live balance for a listing, the
	// escrow account for an offer or bid.
	Source     string
	SourceAuth economy.Authority

	Seller             string
	SellerAssetAccount string
	Buyer              string

	// AccountPayer funds the buyer's asset account when it must be created.
	AccountPayer     string
	AccountPayerAuth economy.Authority

	// Deactivate flips the settled record to inactive. It runs last.
	Deactivate func() error
}

// Settlement summarises a completed trade.
type Settlement struct {
	AssetID           string `json:"asset_id"`
	Seller            string `json:"seller"`
	Buyer             string `json:"buyer"`
	Price             uint64 `json:"price"`
	Fee               uint64 `json:"fee"`
	SellerAmount      uint64 `json:"seller_amount"`
	Treasury          string `json:"treasury"`
	BuyerAssetAccount string `json:"buyer_asset_account"`
}

// Settle performs, strictly in order:
//
//  1. seller amount: source -> seller
//  2. fee: source -> treasury
//  3. one unit of the asset: seller -> buyer (receiving account on demand)
//  4. t.Deactivate
//
// Settle does not undo earlier steps when a later one fails. It must run
// inside a vm.Executor transaction, whose snapshot revert discards every
// partial write on error.
func Settle(st core.State, reg *core.MarketplaceRegistry, t Trade) (*Settlement, error) {
	fee, sellerAmount, err := ComputeFee(t.Price, reg.FeeBasisPoints)
	if err != nil {
		return nil, err
	}

	if err := economy.Transfer(st, t.Source, t.Seller, sellerAmount, t.SourceAuth); err != nil {
		return nil, fmt.Errorf("pay seller: %w", err)
	}
	if err := economy.Transfer(st, t.Source, reg.Treasury, fee, t.SourceAuth); err != nil {
		return nil, fmt.Errorf("pay fee: %w", err)
	}
	dst, err := asset.Transfer(st, asset.TransferRequest{
		AssetID:   t.AssetID,
		From:      t.SellerAssetAccount,
		To:        t.Buyer,
		Owner:     t.Seller,
		Payer:     t.AccountPayer,
		PayerAuth: t.AccountPayerAuth,
	})
	if err != nil {
		return nil, fmt.Errorf("deliver asset: %w", err)
	}
	if err := t.Deactivate(); err != nil {
		return nil, fmt.Errorf("deactivate: %w", err)
	}

	return &Settlement{
		AssetID:           t.AssetID,
		Seller:            t.Seller,
		Buyer:             t.Buyer,
		Price:             t.Price,
		Fee:               fee,
		SellerAmount:      sellerAmount,
		Treasury:          reg.Treasury,
		BuyerAssetAccount: dst,
	}, nil
}

// eventData flattens s for event payloads.
func (s *Settlement) eventData() map[string]any {
	return map[string]any{
		"asset_id":      s.AssetID,
		"seller":        s.Seller,
		"buyer":         s.Buyer,
		"price":         s.Price,
		"fee":           s.Fee,
		"seller_amount": s.SellerAmount,
		"treasury":      s.Treasury,
	}
}
