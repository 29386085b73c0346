// Package lending implements a pooled deposit/borrow/repay/withdraw ledger
// for a single asset. Liquidity providers fund the pool; borrowers draw from
// whatever the pool currently holds.
//
// All monetary values use shopspring/decimal whole base units.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/model"
)

var (
	ErrInvalidAmount                = errors.New("lending: amount must be a positive whole number")
	ErrCallerIsNotLiquidityProvider = errors.New("lending: caller is not a liquidity provider")
	ErrCallerIsNotBorrower          = errors.New("lending: caller is not a borrower")
	ErrInsufficientBalance          = errors.New("lending: amount exceeds liquidity balance")
	ErrInsufficientLiquidity        = errors.New("lending: insufficient liquidity")
)

// Pool is the lending ledger. Operations are serialized by mu; token
// movements settle before any ledger field changes, so a failed call
// leaves the pool untouched.
type Pool struct {
	mu      sync.Mutex
	custody *asset.Custody
	emitter events.Emitter
	now     func() time.Time

	liquidity map[model.Account]decimal.Decimal
	debt      map[model.Account]decimal.Decimal

	totalLiquidity decimal.Decimal
	totalDebt      decimal.Decimal
	totalBorrowed  decimal.Decimal
}

// NewPool creates a pool holding its asset in custody.
// Pass nil for emitter if events are not needed.
func NewPool(custody *asset.Custody, emitter events.Emitter) *Pool {
	if emitter == nil {
		emitter = events.Discard
	}
	return &Pool{
		custody:   custody,
		emitter:   emitter,
		now:       time.Now,
		liquidity: make(map[model.Account]decimal.Decimal),
		debt:      make(map[model.Account]decimal.Decimal),
	}
}

// Asset returns the pooled asset.
func (p *Pool) Asset() model.Asset { return p.custody.Asset() }

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.IsInteger() {
		return ErrInvalidAmount
	}
	return nil
}

// Deposit pulls amount from caller and credits it to the caller's
// liquidity balance.
func (p *Pool) Deposit(ctx context.Context, caller model.Account, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.custody.TransferIn(ctx, caller, amount); err != nil {
		return fmt.Errorf("lending: deposit: %w", err)
	}

	balance := p.liquidity[caller].Add(amount)
	p.liquidity[caller] = balance
	p.totalLiquidity = p.totalLiquidity.Add(amount)

	slog.Info("liquidity deposited",
		"account", caller.Hex(),
		"amount", amount.String(),
		"balance", balance.String(),
	)
	p.emit(ctx, model.EventDeposited, caller, amount, map[string]string{
		"balance": balance.String(),
	})
	return nil
}

// Withdraw returns amount of the caller's liquidity. Withdrawing more than
// the caller's balance fails rather than clamping.
func (p *Pool) Withdraw(ctx context.Context, caller model.Account, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	balance := p.liquidity[caller]
	if balance.IsZero() {
		return ErrCallerIsNotLiquidityProvider
	}
	if err := validAmount(amount); err != nil {
		return err
	}
	if amount.GreaterThan(balance) {
		return fmt.Errorf("%w: balance %s, requested %s", ErrInsufficientBalance, balance, amount)
	}
	if amount.GreaterThan(p.custody.Balance()) {
		return fmt.Errorf("%w: pool holds %s, requested %s", ErrInsufficientLiquidity, p.custody.Balance(), amount)
	}

	if err := p.custody.TransferOut(ctx, caller, amount); err != nil {
		return fmt.Errorf("lending: withdraw: %w", err)
	}

	balance = balance.Sub(amount)
	p.liquidity[caller] = balance
	p.totalLiquidity = p.totalLiquidity.Sub(amount)

	slog.Info("liquidity withdrawn",
		"account", caller.Hex(),
		"amount", amount.String(),
		"balance", balance.String(),
	)
	p.emit(ctx, model.EventWithdrawn, caller, amount, map[string]string{
		"balance": balance.String(),
	})
	return nil
}

// Borrow pushes amount to caller and records it as debt. The pool's held
// balance is the only limit on borrowing.
func (p *Pool) Borrow(ctx context.Context, caller model.Account, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	available := p.custody.Balance()
	if amount.GreaterThan(available) {
		return fmt.Errorf("%w: pool holds %s, requested %s", ErrInsufficientLiquidity, available, amount)
	}

	if err := p.custody.TransferOut(ctx, caller, amount); err != nil {
		return fmt.Errorf("lending: borrow: %w", err)
	}

	debt := p.debt[caller].Add(amount)
	p.debt[caller] = debt
	p.totalDebt = p.totalDebt.Add(amount)
	p.totalBorrowed = p.totalBorrowed.Add(amount)

	slog.Info("loan issued",
		"account", caller.Hex(),
		"amount", amount.String(),
		"debt", debt.String(),
	)
	p.emit(ctx, model.EventBorrowed, caller, amount, map[string]string{
		"debt": debt.String(),
	})
	return nil
}

// Repay pulls up to amount from caller and reduces the caller's debt. Only
// the outstanding debt is pulled when amount exceeds it, so the debt is
// clamped at zero without overcharging.
func (p *Pool) Repay(ctx context.Context, caller model.Account, amount decimal.Decimal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	debt := p.debt[caller]
	if debt.IsZero() {
		return ErrCallerIsNotBorrower
	}
	if err := validAmount(amount); err != nil {
		return err
	}

	paid := model.Min(amount, debt)
	if err := p.custody.TransferIn(ctx, caller, paid); err != nil {
		return fmt.Errorf("lending: repay: %w", err)
	}

	debt = debt.Sub(paid)
	p.debt[caller] = debt
	p.totalDebt = p.totalDebt.Sub(paid)

	slog.Info("loan repaid",
		"account", caller.Hex(),
		"amount", paid.String(),
		"debt", debt.String(),
	)
	p.emit(ctx, model.EventRepaid, caller, paid, map[string]string{
		"debt": debt.String(),
	})
	return nil
}

// LiquidityProviderBalance returns acct's supplied liquidity.
func (p *Pool) LiquidityProviderBalance(acct model.Account) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.liquidity[acct]
}

// BorrowerBalance returns acct's outstanding principal.
func (p *Pool) BorrowerBalance(acct model.Account) decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.debt[acct]
}

// Debt is an alias of BorrowerBalance.
func (p *Pool) Debt(acct model.Account) decimal.Decimal {
	return p.BorrowerBalance(acct)
}

// AvailableLiquidity returns what can be borrowed or withdrawn right now.
func (p *Pool) AvailableLiquidity() decimal.Decimal {
	return p.custody.Balance()
}

// Account returns acct's view of the pool.
func (p *Pool) Account(acct model.Account) model.LendingAccount {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.LendingAccount{
		Account:   acct,
		Liquidity: p.liquidity[acct],
		Debt:      p.debt[acct],
	}
}

// Snapshot returns the pool aggregates.
func (p *Pool) Snapshot() model.LendingSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	held := p.custody.Balance()
	return model.LendingSnapshot{
		Asset:              p.custody.Asset(),
		Custody:            held,
		TotalLiquidity:     p.totalLiquidity,
		TotalDebt:          p.totalDebt,
		TotalBorrowed:      p.totalBorrowed,
		AvailableLiquidity: held,
	}
}

func (p *Pool) emit(ctx context.Context, typ string, acct model.Account, amount decimal.Decimal, attrs map[string]string) {
	attrs["amount"] = amount.String()
	attrs["asset"] = p.custody.Asset().String()
	p.emitter.Emit(ctx, events.New(model.EngineLending, typ, acct, p.now(), attrs))
}
