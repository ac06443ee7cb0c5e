package market

import (
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/vm"
	"github.com/tolelom/tolmarket/vm/modules/asset"
	"github.com/tolelom/tolmarket/vm/modules/economy"
)

// checkNewOrder validates the inputs shared by make_offer and place_bid.
func checkNewOrder(ctx *vm.Context, p core.OrderPayload) error {
	if p.Price == 0 {
		return core.ErrInvalidPrice
	}
	if p.ExpiresAt <= ctx.Now() {
		return fmt.Errorf("%w: expires_at %d, now %d", core.ErrInvalidExpiry, p.ExpiresAt, ctx.Now())
	}
	if _, err := ctx.State.GetAsset(p.AssetID); errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("%w: %q", core.ErrAssetNotFound, p.AssetID)
	} else if err != nil {
		return err
	}
	return nil
}

// slotNonce returns the derivation generation for a new record at a key.
// found/active describe the record currently stored there.
func slotNonce(key string, found, active bool, prev uint64) (uint64, error) {
	switch {
	case !found:
		return 0, nil
	case active:
		return 0, fmt.Errorf("%s: %w", key, core.ErrRecordExists)
	default:
		return prev + 1, nil
	}
}

// lookup folds core.ErrNotFound into found=false.
func lookup(err error) (found bool, _ error) {
	if err == nil {
		return true, nil
	}
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// checkHolder verifies that holder owns the unit of assetID in account.
func checkHolder(st core.State, assetID, holder, account string) error {
	ok, err := asset.Holds(st, assetID, holder, account)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("asset %q in %s: %w", assetID, account, core.ErrNotOwner)
	}
	return nil
}

// drainEscrow moves everything left at the escrow address to `to`, leaving it
// at zero, and returns the amount moved.
func drainEscrow(st core.State, seeds crypto.Seeds, to string) (uint64, error) {
	addr := seeds.Address()
	bal, err := economy.Balance(st, addr)
	if err != nil {
		return 0, err
	}
	if err := economy.Transfer(st, addr, to, bal, economy.Derived(seeds)); err != nil {
		return 0, fmt.Errorf("release escrow %s: %w", addr, err)
	}
	return bal, nil
}
