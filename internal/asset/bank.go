package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

var (
	// ErrInsufficientBalance is returned when a transfer leg would overdraw
	// its source account.
	ErrInsufficientBalance = errors.New("asset: insufficient balance")

	// ErrInvalidTransfer is returned for non-positive or fractional amounts.
	ErrInvalidTransfer = errors.New("asset: transfer amount must be a positive whole number")
)

// Transfer is one leg of a settlement batch.
type Transfer struct {
	Asset  model.Asset
	From   model.Account
	To     model.Account
	Amount decimal.Decimal
}

// Ledger is the value-transfer capability the engines depend on.
type Ledger interface {
	// BalanceOf returns the balance of account in asset.
	BalanceOf(asset model.Asset, account model.Account) decimal.Decimal

	// Settle applies every transfer or none of them.
	Settle(ctx context.Context, transfers ...Transfer) error
}

// Bank implements Ledger with in-memory balance maps, one per asset.
type Bank struct {
	mu       sync.RWMutex
	balances map[model.Asset]map[model.Account]decimal.Decimal
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{
		balances: make(map[model.Asset]map[model.Account]decimal.Decimal),
	}
}

// Mint credits amount of asset to account out of thin air. Used by the
// development faucet and tests.
func (b *Bank) Mint(asset model.Asset, to model.Account, amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.IsInteger() {
		return ErrInvalidTransfer
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	accounts, ok := b.balances[asset]
	if !ok {
		accounts = make(map[model.Account]decimal.Decimal)
		b.balances[asset] = accounts
	}
	accounts[to] = accounts[to].Add(amount)
	return nil
}

func (b *Bank) BalanceOf(asset model.Asset, account model.Account) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[asset][account]
}

// Transfer moves a single leg.
func (b *Bank) Transfer(ctx context.Context, t Transfer) error {
	return b.Settle(ctx, t)
}

type balanceKey struct {
	asset   model.Asset
	account model.Account
}

// Settle validates every leg against running balances before applying any of
// them, so a batch either commits completely or leaves the bank untouched.
func (b *Bank) Settle(ctx context.Context, transfers ...Transfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	working := make(map[balanceKey]decimal.Decimal)
	get := func(k balanceKey) decimal.Decimal {
		if v, ok := working[k]; ok {
			return v
		}
		return b.balances[k.asset][k.account]
	}

	for i, t := range transfers {
		if !t.Amount.IsPositive() || !t.Amount.IsInteger() {
			return fmt.Errorf("%w: leg %d amount %s", ErrInvalidTransfer, i, t.Amount)
		}
		from := balanceKey{t.Asset, t.From}
		to := balanceKey{t.Asset, t.To}

		src := get(from)
		if src.LessThan(t.Amount) {
			return fmt.Errorf("%w: %s holds %s %s, needs %s",
				ErrInsufficientBalance, t.From.Hex(), src, t.Asset, t.Amount)
		}
		working[from] = src.Sub(t.Amount)
		working[to] = get(to).Add(t.Amount)
	}

	for k, v := range working {
		accounts, ok := b.balances[k.asset]
		if !ok {
			accounts = make(map[model.Account]decimal.Decimal)
			b.balances[k.asset] = accounts
		}
		accounts[k.account] = v
	}
	return nil
}
