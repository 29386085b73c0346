package perp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/model"
)

// OpenLong escrows amountBToBuy*leverage of asset A from trader and adds
// the exposure to the trader's long position.
func (e *Engine) OpenLong(ctx context.Context, trader model.Account, amountBToBuy decimal.Decimal, leverage int64) error {
	if !amountBToBuy.IsPositive() || !amountBToBuy.IsInteger() {
		return ErrInvalidBuyAmount
	}
	if leverage < 1 {
		return ErrInvalidLeverage
	}
	amountAToSell := amountBToBuy.Mul(decimal.NewFromInt(leverage))
	return e.open(ctx, trader, model.SideLong, amountAToSell, amountBToBuy, leverage,
		e.custody(e.assetA).In(trader, amountAToSell))
}

// OpenShort escrows amountBToSell of asset B from trader and adds
// amountBToSell*leverage of asset A debt to the trader's short position.
func (e *Engine) OpenShort(ctx context.Context, trader model.Account, amountBToSell decimal.Decimal, leverage int64) error {
	if !amountBToSell.IsPositive() || !amountBToSell.IsInteger() {
		return ErrInvalidSellAmount
	}
	if leverage < 1 {
		return ErrInvalidLeverage
	}
	amountAToBuy := amountBToSell.Mul(decimal.NewFromInt(leverage))
	return e.open(ctx, trader, model.SideShort, amountAToBuy, amountBToSell, leverage,
		e.custody(e.assetB).In(trader, amountBToSell))
}

// CloseLong refunds the trader's escrowed asset A and removes the long
// position from the aggregates.
func (e *Engine) CloseLong(ctx context.Context, trader model.Account) (model.Position, error) {
	return e.close(ctx, trader, model.SideLong)
}

// CloseShort refunds the trader's escrowed asset B and removes the short
// position from the aggregates.
func (e *Engine) CloseShort(ctx context.Context, trader model.Account) (model.Position, error) {
	return e.close(ctx, trader, model.SideShort)
}

func (e *Engine) open(
	ctx context.Context,
	trader model.Account,
	side model.Side,
	debtA, balanceB decimal.Decimal,
	leverage int64,
	margin asset.Transfer,
) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := positionKey{trader, side}
	if err := e.checkLimits(trader, side, leverage, debtA); err != nil {
		return err
	}

	if err := e.ledger.Settle(ctx, margin); err != nil {
		return fmt.Errorf("perp: open %s: %w", side, err)
	}

	pos, ok := e.positions[key]
	if !ok {
		pos = &model.Position{
			Trader:   trader,
			Side:     side,
			OpenedAt: e.now().UTC(),
		}
		e.positions[key] = pos
	}
	pos.DebtA = pos.DebtA.Add(debtA)
	pos.BalanceB = pos.BalanceB.Add(balanceB)
	pos.Leverage = leverage

	typ := model.EventLongOpened
	if side == model.SideLong {
		e.longDebtA = e.longDebtA.Add(debtA)
		e.longBalanceB = e.longBalanceB.Add(balanceB)
	} else {
		typ = model.EventShortOpened
		e.shortDebtA = e.shortDebtA.Add(debtA)
		e.shortBalanceB = e.shortBalanceB.Add(balanceB)
	}

	slog.Info("position opened",
		"trader", trader.Hex(),
		"side", string(side),
		"debt_a", debtA.String(),
		"balance_b", balanceB.String(),
		"leverage", leverage,
	)
	e.emitter.Emit(ctx, events.New(model.EnginePerp, typ, trader, e.now(), map[string]string{
		"debt_a":        debtA.String(),
		"balance_b":     balanceB.String(),
		"leverage":      strconv.FormatInt(leverage, 10),
		"margin_asset":  margin.Asset.String(),
		"margin_amount": margin.Amount.String(),
	}))
	return nil
}

// checkLimits applies the configured risk limits. Caller holds mu.
func (e *Engine) checkLimits(trader model.Account, side model.Side, leverage int64, debtA decimal.Decimal) error {
	if e.limiter == nil {
		return nil
	}
	existing := make(map[model.Side]decimal.Decimal, 2)
	for _, s := range []model.Side{model.SideLong, model.SideShort} {
		if p, ok := e.positions[positionKey{trader, s}]; ok {
			existing[s] = p.DebtA
		}
	}
	sideTotal := e.longDebtA
	if side == model.SideShort {
		sideTotal = e.shortDebtA
	}
	return e.limiter.CheckLimit(side, leverage, debtA, existing, sideTotal)
}

func (e *Engine) close(ctx context.Context, trader model.Account, side model.Side) (model.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := positionKey{trader, side}
	pos, ok := e.positions[key]
	if !ok {
		return model.Position{}, ErrNoOpenPosition
	}

	refund := e.custody(e.assetA).Out(trader, pos.DebtA)
	typ := model.EventLongClosed
	if side == model.SideShort {
		refund = e.custody(e.assetB).Out(trader, pos.BalanceB)
		typ = model.EventShortClosed
	}

	if err := e.ledger.Settle(ctx, refund); err != nil {
		return model.Position{}, fmt.Errorf("perp: close %s: %w", side, err)
	}

	closed := *pos
	delete(e.positions, key)
	if side == model.SideLong {
		e.longDebtA = e.longDebtA.Sub(closed.DebtA)
		e.longBalanceB = e.longBalanceB.Sub(closed.BalanceB)
	} else {
		e.shortDebtA = e.shortDebtA.Sub(closed.DebtA)
		e.shortBalanceB = e.shortBalanceB.Sub(closed.BalanceB)
	}

	mark := e.markA(closed.BalanceB)
	slog.Info("position closed",
		"trader", trader.Hex(),
		"side", string(side),
		"refund_asset", refund.Asset.String(),
		"refund", refund.Amount.String(),
		"mark_a", mark.String(),
	)
	e.emitter.Emit(ctx, events.New(model.EnginePerp, typ, trader, e.now(), map[string]string{
		"debt_a":       closed.DebtA.String(),
		"balance_b":    closed.BalanceB.String(),
		"refund_asset": refund.Asset.String(),
		"refund":       refund.Amount.String(),
		"mark_a":       mark.String(),
	}))
	return closed, nil
}
