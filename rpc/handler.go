package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/indexer"
	"github.com/tolelom/tolmarket/journal"
	"github.com/tolelom/tolmarket/vm"
)

// TradeSource serves settled-trade history.
type TradeSource interface {
	Trades(ctx context.Context, assetID string) ([]journal.Trade, error)
}

// Handler holds all dependencies needed to serve RPC methods.
type Handler struct {
	bc      *core.Blockchain
	mempool *core.Mempool
	state   core.State
	indexer *indexer.Indexer
	trades  TradeSource // nil → getTrades unavailable
	chainID string      // expected chain_id; used to reject cross-chain replay transactions
}

// NewHandler creates an RPC Handler. trades may be nil.
func NewHandler(bc *core.Blockchain, mempool *core.Mempool, state core.State, idx *indexer.Indexer, trades TradeSource, chainID string) *Handler {
	return &Handler{bc: bc, mempool: mempool, state: state, indexer: idx, trades: trades, chainID: chainID}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "getBlockHeight":
		return okResponse(req.ID, h.bc.Height())

	case "getBlock":
		return h.getBlock(req)

	case "getReceipt":
		return h.getReceipt(req)

	case "getBalance":
		return h.getBalance(req)

	case "getAsset":
		return h.getAsset(req)

	case "getAssetAccount":
		return h.getAssetAccount(req)

	case "getAssetsByOwner":
		return h.getAssetsByOwner(req)

	case "getMarketplace":
		return h.getMarketplace(req)

	case "getListing":
		return h.getListing(req)

	case "getOffer":
		return h.getOffer(req)

	case "getBid":
		return h.getBid(req)

	case "getEscrow":
		return h.getEscrow(req)

	case "getOpenOrders":
		return h.getOpenOrders(req)

	case "getTrades":
		return h.getTrades(ctx, req)

	case "sendTx":
		return h.sendTx(req)

	case "getMempoolSize":
		return okResponse(req.ID, h.mempool.Size())

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

// orderParams identifies a listing, offer or bid by asset and owner.
type orderParams struct {
	AssetID string `json:"asset_id"`
	Owner   string `json:"owner"`
}

func (p orderParams) validate() error {
	if p.AssetID == "" || p.Owner == "" {
		return errors.New("asset_id and owner are required")
	}
	return nil
}

func decodeOrder(req Request) (orderParams, *Response) {
	var p orderParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		r := errResponse(req.ID, CodeInvalidParams, err.Error())
		return p, &r
	}
	if err := p.validate(); err != nil {
		r := errResponse(req.ID, CodeInvalidParams, err.Error())
		return p, &r
	}
	return p, nil
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		Hash   string `json:"hash"`
		Height *int64 `json:"height"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
		}
	}

	var block *core.Block
	var err error
	if params.Hash != "" {
		block, err = h.bc.GetBlock(params.Hash)
	} else if params.Height != nil {
		block, err = h.bc.GetBlockByHeight(*params.Height)
	} else {
		block = h.bc.Tip()
	}
	if err != nil {
		return failure(req.ID, err)
	}
	if block == nil {
		return errResponse(req.ID, CodeNotFound, "no block found")
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getReceipt(req Request) Response {
	var params struct {
		TxID string `json:"tx_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.TxID == "" {
		return errResponse(req.ID, CodeInvalidParams, "tx_id is required")
	}
	r, err := h.bc.GetReceipt(params.TxID)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, r)
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Address == "" {
		return errResponse(req.ID, CodeInvalidParams, "address is required")
	}
	acc, err := h.state.GetAccount(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "balance": acc.Balance, "nonce": acc.Nonce})
}

func (h *Handler) getAsset(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.ID == "" {
		return errResponse(req.ID, CodeInvalidParams, "id is required")
	}
	asset, err := h.state.GetAsset(params.ID)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, asset)
}

// getAssetAccount accepts either an account address or an (asset_id, owner)
// pair, from which the canonical address is derived.
func (h *Handler) getAssetAccount(req Request) Response {
	var params struct {
		Address string `json:"address"`
		AssetID string `json:"asset_id"`
		Owner   string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr := params.Address
	if addr == "" {
		if params.AssetID == "" || params.Owner == "" {
			return errResponse(req.ID, CodeInvalidParams, "address or asset_id and owner are required")
		}
		addr = core.AssetAccountAddress(params.AssetID, params.Owner)
	}
	acct, err := h.state.GetAssetAccount(addr)
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, acct)
}

func (h *Handler) getAssetsByOwner(req Request) Response {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.Owner == "" {
		return errResponse(req.ID, CodeInvalidParams, "owner is required")
	}
	ids, err := h.indexer.GetAssetsByOwner(params.Owner)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, ids)
}

// MarketplaceView is the registry plus its fee rendered as a percentage.
type MarketplaceView struct {
	*core.MarketplaceRegistry
	FeePercent string `json:"fee_percent"`
}

func (h *Handler) getMarketplace(req Request) Response {
	reg, err := h.state.GetMarketplace()
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, MarketplaceView{
		MarketplaceRegistry: reg,
		FeePercent:          FeePercent(reg.FeeBasisPoints).String(),
	})
}

// FeePercent converts basis points to a percentage (250 -> 2.5).
func FeePercent(bps uint16) decimal.Decimal {
	return decimal.New(int64(bps), -2)
}

func (h *Handler) getListing(req Request) Response {
	p, bad := decodeOrder(req)
	if bad != nil {
		return *bad
	}
	l, err := h.state.GetListing(core.ListingKey(p.AssetID, p.Owner))
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, l)
}

func (h *Handler) getOffer(req Request) Response {
	p, bad := decodeOrder(req)
	if bad != nil {
		return *bad
	}
	o, err := h.state.GetOffer(core.OfferKey(p.AssetID, p.Owner))
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, o)
}

func (h *Handler) getBid(req Request) Response {
	p, bad := decodeOrder(req)
	if bad != nil {
		return *bad
	}
	b, err := h.state.GetBid(core.BidKey(p.AssetID, p.Owner))
	if err != nil {
		return failure(req.ID, err)
	}
	return okResponse(req.ID, b)
}

// getEscrow reports the escrow address and balance for an offer or bid.
func (h *Handler) getEscrow(req Request) Response {
	var params struct {
		orderParams
		Kind string `json:"kind"` // "offer" or "bid"
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := params.validate(); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	var addr string
	switch params.Kind {
	case "offer":
		addr = core.OfferEscrowSeeds(params.AssetID, params.Owner).Address()
	case "bid":
		addr = core.BidEscrowSeeds(params.AssetID, params.Owner).Address()
	default:
		return errResponse(req.ID, CodeInvalidParams, `kind must be "offer" or "bid"`)
	}
	acc, err := h.state.GetAccount(addr)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": addr, "balance": acc.Balance})
}

func (h *Handler) getOpenOrders(req Request) Response {
	var params struct {
		AssetID string `json:"asset_id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.AssetID == "" {
		return errResponse(req.ID, CodeInvalidParams, "asset_id is required")
	}
	orders, err := h.indexer.GetOpenOrders(params.AssetID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if orders == nil {
		orders = []indexer.OpenOrder{}
	}
	return okResponse(req.ID, orders)
}

func (h *Handler) getTrades(ctx context.Context, req Request) Response {
	if h.trades == nil {
		return errResponse(req.ID, CodeMethodNotFound, "trade journal disabled")
	}
	var params struct {
		AssetID string `json:"asset_id"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errResponse(req.ID, CodeInvalidParams, err.Error())
		}
	}
	trades, err := h.trades.Trades(ctx, params.AssetID)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if trades == nil {
		trades = []journal.Trade{}
	}
	return okResponse(req.ID, trades)
}

func (h *Handler) sendTx(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	// Reject transactions destined for a different network to prevent
	// cross-chain replay attacks.
	if tx.ChainID != h.chainID {
		return errResponse(req.ID, CodeTxRejected,
			fmt.Sprintf("%v: got %q want %q", core.ErrChainMismatch, tx.ChainID, h.chainID))
	}
	if !vm.Registered(tx.Type) {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("unknown tx type %q (known: %v)", tx.Type, vm.Types()))
	}
	// Recompute the ID server-side; do not trust the client-provided value.
	tx.ID = tx.Hash()
	if err := tx.Verify(); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.mempool.Add(&tx); err != nil {
		return failure(req.ID, err)
	}
	log.Debugw("tx accepted", "tx", tx.ID, "type", tx.Type)
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID})
}
