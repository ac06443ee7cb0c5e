// Package economy implements native token balances and the transfer
// primitive the marketplace settles with.
package economy

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tolelom/tolmarket/core"
	"github.com/tolelom/tolmarket/crypto"
	"github.com/tolelom/tolmarket/events"
	"github.com/tolelom/tolmarket/vm"
)

func init() {
	vm.Register(core.TxTransfer, handleTransfer)
}

// Authority is the proof presented to move funds out of an account.
//
// A live signer authorizes its own address. Seeds authorize the address they
// derive to; only program code ever constructs Seeds, so escrow accounts can
// be drained by the settlement engine and by nobody holding a key.
type Authority struct {
	Signer string
	Seeds  *crypto.Seeds
}

// Signer returns an Authority for a transaction sender.
func Signer(addr string) Authority {
	return Authority{Signer: addr}
}

// Derived returns an Authority for a derived address.
func Derived(seeds crypto.Seeds) Authority {
	return Authority{Seeds: &seeds}
}

func (a Authority) authorizes(from string) bool {
	if a.Seeds != nil {
		return a.Seeds.Address() == from
	}
	return a.Signer != "" && a.Signer == from
}

// Transfer moves amount from one account to another. A zero amount is a
// no-op. Errors: core.ErrUnauthorized, core.ErrInsufficientFunds,
// core.ErrArithmeticOverflow. Nothing is written unless both legs are valid.
func Transfer(st core.State, from, to string, amount uint64, auth Authority) error {
	if !auth.authorizes(from) {
		return fmt.Errorf("transfer from %s: %w", from, core.ErrUnauthorized)
	}
	if amount == 0 || from == to {
		return nil
	}
	if to == "" {
		return errors.New("transfer to address required")
	}

	sender, err := st.GetAccount(from)
	if err != nil {
		return err
	}
	if sender.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", core.ErrInsufficientFunds, sender.Balance, amount)
	}
	recipient, err := st.GetAccount(to)
	if err != nil {
		return err
	}
	if recipient.Balance > ^uint64(0)-amount {
		return fmt.Errorf("credit %s: %w", to, core.ErrArithmeticOverflow)
	}

	sender.Balance -= amount
	recipient.Balance += amount
	if err := st.SetAccount(sender); err != nil {
		return err
	}
	return st.SetAccount(recipient)
}

// Balance returns the balance held at addr.
func Balance(st core.State, addr string) (uint64, error) {
	acc, err := st.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acc.Balance, nil
}

func handleTransfer(ctx *vm.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer amount must be > 0")
	}
	if p.To == "" {
		return fmt.Errorf("transfer to address required")
	}

	if err := Transfer(ctx.State, ctx.Tx.From, p.To, p.Amount, Signer(ctx.Tx.From)); err != nil {
		return err
	}

	ctx.Emit(events.EventTokenTransfer, map[string]any{
		"from":   ctx.Tx.From,
		"to":     p.To,
		"amount": p.Amount,
	})
	return nil
}
