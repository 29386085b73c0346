package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/access"
	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/model"
)

var (
	ErrInvalidAmount = errors.New("swap: amount must be a positive whole number")

	// ErrZeroQuote is returned when a trade would move value one way only
	// because the quote truncated to zero.
	ErrZeroQuote = errors.New("swap: quote rounds to zero")
)

// Engine executes trades against the reserves it holds in the ledger.
// Reserves are never cached: every call reads current custody balances.
type Engine struct {
	mu      sync.Mutex
	ledger  asset.Ledger
	account model.Account
	owner   access.Owner
	emitter events.Emitter
	now     func() time.Time
}

// NewEngine creates a swap engine whose reserves are account's balances in
// ledger. Pass nil for emitter if events are not needed.
func NewEngine(ledger asset.Ledger, account model.Account, owner access.Owner, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.Discard
	}
	return &Engine{
		ledger:  ledger,
		account: account,
		owner:   owner,
		emitter: emitter,
		now:     time.Now,
	}
}

// Account returns the custody account holding the reserves.
func (e *Engine) Account() model.Account { return e.account }

func (e *Engine) custody(a model.Asset) *asset.Custody {
	return asset.NewCustody(e.ledger, e.account, a)
}

func (e *Engine) reserves(sell, buy model.Asset) (decimal.Decimal, decimal.Decimal, error) {
	if sell == buy {
		return decimal.Zero, decimal.Zero, asset.ErrSameAsset
	}
	return e.ledger.BalanceOf(sell, e.account), e.ledger.BalanceOf(buy, e.account), nil
}

// Reserves returns the engine-held balances of a pair.
func (e *Engine) Reserves(sell, buy model.Asset) model.Reserves {
	return model.Reserves{
		Sell:        sell,
		Buy:         buy,
		ReserveSell: e.ledger.BalanceOf(sell, e.account),
		ReserveBuy:  e.ledger.BalanceOf(buy, e.account),
	}
}

// CalcAmountToSell quotes the sell-asset cost of buyAmount.
func (e *Engine) CalcAmountToSell(sell, buy model.Asset, buyAmount decimal.Decimal) (decimal.Decimal, error) {
	reserveA, reserveB, err := e.reserves(sell, buy)
	if err != nil {
		return decimal.Zero, err
	}
	return AmountToSell(reserveA, reserveB, buyAmount)
}

// CalcAmountToBuy quotes the buy-asset proceeds of sellAmount.
func (e *Engine) CalcAmountToBuy(sell, buy model.Asset, sellAmount decimal.Decimal) (decimal.Decimal, error) {
	reserveA, reserveB, err := e.reserves(sell, buy)
	if err != nil {
		return decimal.Zero, err
	}
	return AmountToBuy(reserveA, reserveB, sellAmount)
}

// Buy pays the quoted amount of sell and receives exactly buyAmount of buy.
// Returns the amount paid.
func (e *Engine) Buy(ctx context.Context, caller model.Account, sell, buy model.Asset, buyAmount decimal.Decimal) (decimal.Decimal, error) {
	if !buyAmount.IsPositive() || !buyAmount.IsInteger() {
		return decimal.Zero, ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	reserveA, reserveB, err := e.reserves(sell, buy)
	if err != nil {
		return decimal.Zero, err
	}
	sellAmount, err := AmountToSell(reserveA, reserveB, buyAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if sellAmount.IsZero() {
		return decimal.Zero, ErrZeroQuote
	}

	if err := e.ledger.Settle(ctx,
		e.custody(sell).In(caller, sellAmount),
		e.custody(buy).Out(caller, buyAmount),
	); err != nil {
		return decimal.Zero, fmt.Errorf("swap: buy: %w", err)
	}

	slog.Info("swap buy executed",
		"account", caller.Hex(),
		"sell", sell.String(),
		"buy", buy.String(),
		"sell_amount", sellAmount.String(),
		"buy_amount", buyAmount.String(),
	)
	e.emitTrade(ctx, model.EventBought, caller, sell, buy, sellAmount, buyAmount)
	return sellAmount, nil
}

// Sell pays sellAmount of sell and receives the quoted amount of buy.
// Returns the amount received.
func (e *Engine) Sell(ctx context.Context, caller model.Account, sell, buy model.Asset, sellAmount decimal.Decimal) (decimal.Decimal, error) {
	if !sellAmount.IsPositive() || !sellAmount.IsInteger() {
		return decimal.Zero, ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	reserveA, reserveB, err := e.reserves(sell, buy)
	if err != nil {
		return decimal.Zero, err
	}
	buyAmount, err := AmountToBuy(reserveA, reserveB, sellAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if buyAmount.IsZero() {
		return decimal.Zero, ErrZeroQuote
	}

	if err := e.ledger.Settle(ctx,
		e.custody(sell).In(caller, sellAmount),
		e.custody(buy).Out(caller, buyAmount),
	); err != nil {
		return decimal.Zero, fmt.Errorf("swap: sell: %w", err)
	}

	slog.Info("swap sell executed",
		"account", caller.Hex(),
		"sell", sell.String(),
		"buy", buy.String(),
		"sell_amount", sellAmount.String(),
		"buy_amount", buyAmount.String(),
	)
	e.emitTrade(ctx, model.EventSold, caller, sell, buy, sellAmount, buyAmount)
	return buyAmount, nil
}

// Fund moves amount of a from the owner into the reserves.
func (e *Engine) Fund(ctx context.Context, caller model.Account, a model.Asset, amount decimal.Decimal) error {
	if err := e.owner.Check(caller); err != nil {
		return err
	}
	if !amount.IsPositive() || !amount.IsInteger() {
		return ErrInvalidAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	c := e.custody(a)
	if err := c.TransferIn(ctx, caller, amount); err != nil {
		return fmt.Errorf("swap: fund: %w", err)
	}

	slog.Info("swap reserves funded", "asset", a.String(), "amount", amount.String(), "reserve", c.Balance().String())
	e.emitter.Emit(ctx, events.New(model.EngineSwap, model.EventReservesFunded, caller, e.now(), map[string]string{
		"asset":   a.String(),
		"amount":  amount.String(),
		"reserve": c.Balance().String(),
	}))
	return nil
}

func (e *Engine) emitTrade(ctx context.Context, typ string, caller model.Account, sell, buy model.Asset, sellAmount, buyAmount decimal.Decimal) {
	e.emitter.Emit(ctx, events.New(model.EngineSwap, typ, caller, e.now(), map[string]string{
		"sell_asset":   sell.String(),
		"buy_asset":    buy.String(),
		"sell_amount":  sellAmount.String(),
		"buy_amount":   buyAmount.String(),
		"reserve_sell": e.ledger.BalanceOf(sell, e.account).String(),
		"reserve_buy":  e.ledger.BalanceOf(buy, e.account).String(),
	}))
}
