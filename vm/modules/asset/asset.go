// Package asset implements unique assets and the asset transfer primitive.
// Each asset has a supply of exactly one unit, held in the asset account of
// its current owner.
package asset

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/economy"
)

func init() {
	vm.Register(core.TxMintAsset, handleMintAsset)
	vm.Register(core.TxTransferAsset, handleTransferAsset)
}

// TransferRequest describes one unit moving between asset accounts.
type TransferRequest struct {
	AssetID string
	// From is the source asset account address.
	From string
	// To is the recipient's pubkey; its asset account is derived.
	To string
	// Owner must be the owner of From.
	Owner string
	// Payer funds the recipient's asset account if it has to be created.
	Payer     string
	PayerAuth economy.Authority
}

// Transfer moves one unit of req.AssetID from req.From to req.To's asset
// account and returns the destination address. The destination is created on
// demand, charging core.AssetAccountDeposit to req.Payer.
// Errors: core.ErrNotOwner, core.ErrInsufficientFunds.
func Transfer(st core.State, req TransferRequest) (string, error) {
	src, err := st.GetAssetAccount(req.From)
	if errors.Is(err, core.ErrNotFound) {
		return "", fmt.Errorf("asset account %s: %w", req.From, core.ErrNotOwner)
	}
	if err != nil {
		return "", err
	}
	if src.Owner != req.Owner || src.AssetID != req.AssetID || src.Amount == 0 {
		return "", fmt.Errorf("asset %s in %s: %w", req.AssetID, req.From, core.ErrNotOwner)
	}

	dstAddr := core.AssetAccountAddress(req.AssetID, req.To)
	if dstAddr == src.Address {
		return dstAddr, nil
	}
	dst, err := Open(st, req.AssetID, req.To, req.Payer, req.PayerAuth)
	if err != nil {
		return "", err
	}

	src.Amount--
	dst.Amount++
	if err := st.SetAssetAccount(src); err != nil {
		return "", err
	}
	if err := st.SetAssetAccount(dst); err != nil {
		return "", err
	}
	return dstAddr, nil
}

// Open returns owner's asset account for assetID, creating it if needed.
// Creation moves core.AssetAccountDeposit from payer into the new account.
func Open(st core.State, assetID, owner, payer string, auth economy.Authority) (*core.AssetAccount, error) {
	addr := core.AssetAccountAddress(assetID, owner)
	acct, err := st.GetAssetAccount(addr)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return nil, err
	}
	// The deposit is parked on the asset account address so it is
	// reflected in total supply.
	if err := economy.Transfer(st, payer, addr, core.AssetAccountDeposit, auth); err != nil {
		return nil, fmt.Errorf("open asset account for %s: %w", owner, err)
	}
	acct = &core.AssetAccount{
		Address: addr,
		AssetID: assetID,
		Owner:   owner,
		Deposit: core.AssetAccountDeposit,
	}
	if err := st.SetAssetAccount(acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// Holds reports whether owner holds the unit of assetID in account addr.
func Holds(st core.State, assetID, owner, addr string) (bool, error) {
	acct, err := st.GetAssetAccount(addr)
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return acct.Owner == owner && acct.AssetID == assetID && acct.Amount == 1, nil
}

func handleMintAsset(ctx *vm.Context, payload json.RawMessage) error {
	var p core.MintAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode mint_asset payload: %w", err)
	}

	owner := p.Owner
	if owner == "" {
		owner = ctx.Tx.From
	} else if _, err := crypto.PubKeyFromHex(owner); err != nil {
		return fmt.Errorf("invalid owner pubkey: %w", err)
	}

	// Deterministic asset ID when none is requested: hash of tx ID.
	assetID := p.AssetID
	if assetID == "" {
		assetID = crypto.Hash([]byte(ctx.Tx.ID + ":asset"))
	}
	if _, err := ctx.State.GetAsset(assetID); err == nil {
		return fmt.Errorf("asset %q already exists", assetID)
	} else if !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("checking asset %q: %w", assetID, err)
	}

	a := &core.Asset{
		ID:         assetID,
		Creator:    ctx.Tx.From,
		Properties: p.Properties,
		MintedAt:   ctx.Now(),
	}
	if err := ctx.State.SetAsset(a); err != nil {
		return err
	}

	acct, err := Open(ctx.State, assetID, owner, ctx.Tx.From, economy.Signer(ctx.Tx.From))
	if err != nil {
		return err
	}
	acct.Amount = 1
	if err := ctx.State.SetAssetAccount(acct); err != nil {
		return err
	}

	ctx.Emit(events.EventAssetMinted, map[string]any{
		"asset_id": assetID,
		"owner":    owner,
		"account":  acct.Address,
	})
	return nil
}

func handleTransferAsset(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_asset payload: %w", err)
	}
	if _, err := crypto.PubKeyFromHex(p.To); err != nil {
		return fmt.Errorf("invalid to pubkey: %w", err)
	}

	from := ctx.Tx.From
	dst, err := Transfer(ctx.State, TransferRequest{
		AssetID:   p.AssetID,
		From:      core.AssetAccountAddress(p.AssetID, from),
		To:        p.To,
		Owner:     from,
		Payer:     from,
		PayerAuth: economy.Signer(from),
	})
	if err != nil {
		return err
	}

	ctx.Emit(events.EventAssetTransfer, map[string]any{
		"asset_id": p.AssetID,
		"from":     from,
		"to":       p.To,
		"account":  dst,
	})
	return nil
}
