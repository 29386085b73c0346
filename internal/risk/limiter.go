// Package risk implements optional exposure limits for perpetual positions.
//
// Exposure is measured as notional debt in asset A (amount * leverage). A
// trader's long and short books count together toward the per-trader cap,
// the way correlated positions are summed, while the per-side cap bounds the
// aggregate of every trader on one side.
package risk

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

var (
	// ErrLeverageLimitExceeded is returned when the requested leverage is
	// above MaxLeverage.
	ErrLeverageLimitExceeded = errors.New("risk: leverage limit exceeded")

	// ErrTraderLimitExceeded is returned when a trade would push one
	// trader's combined notional beyond MaxPerTrader.
	ErrTraderLimitExceeded = errors.New("risk: per-trader notional limit exceeded")

	// ErrSideLimitExceeded is returned when a trade would push the aggregate
	// notional on one side beyond MaxPerSide.
	ErrSideLimitExceeded = errors.New("risk: per-side notional limit exceeded")
)

// Limits configures a PositionLimiter. A zero value disables that check.
type Limits struct {
	MaxLeverage  int64
	MaxPerTrader decimal.Decimal
	MaxPerSide   decimal.Decimal
}

// Enabled reports whether any limit is set.
func (l Limits) Enabled() bool {
	return l.MaxLeverage > 0 || l.MaxPerTrader.IsPositive() || l.MaxPerSide.IsPositive()
}

// PositionLimiter enforces Limits. A nil limiter allows everything.
type PositionLimiter struct {
	limits Limits
}

// NewPositionLimiter creates a limiter. Negative limits are treated as zero.
func NewPositionLimiter(limits Limits) *PositionLimiter {
	if limits.MaxLeverage < 0 {
		limits.MaxLeverage = 0
	}
	if limits.MaxPerTrader.IsNegative() {
		limits.MaxPerTrader = decimal.Zero
	}
	if limits.MaxPerSide.IsNegative() {
		limits.MaxPerSide = decimal.Zero
	}
	return &PositionLimiter{limits: limits}
}

// Limits returns the configured limits.
func (l *PositionLimiter) Limits() Limits {
	if l == nil {
		return Limits{}
	}
	return l.limits
}

// CheckLimit validates whether opening notionalDelta on side respects the
// limits.
//
// Parameters:
//   - existing: the trader's current notional per side
//   - sideTotal: the aggregate notional of every trader on side
//
// Returns nil if the trade is within limits, or an error describing the violation.
func (l *PositionLimiter) CheckLimit(
	side model.Side,
	leverage int64,
	notionalDelta decimal.Decimal,
	existing map[model.Side]decimal.Decimal,
	sideTotal decimal.Decimal,
) error {
	if l == nil {
		return nil
	}

	// 1. Leverage.
	if l.limits.MaxLeverage > 0 && leverage > l.limits.MaxLeverage {
		return ErrLeverageLimitExceeded
	}

	// 2. Per-trader: sum of exposures across both sides.
	if l.limits.MaxPerTrader.IsPositive() {
		total := notionalDelta.Abs()
		for _, exposure := range existing {
			total = total.Add(exposure.Abs())
		}
		if total.GreaterThan(l.limits.MaxPerTrader) {
			return ErrTraderLimitExceeded
		}
	}

	// 3. Per-side aggregate.
	if l.limits.MaxPerSide.IsPositive() {
		if sideTotal.Add(notionalDelta.Abs()).GreaterThan(l.limits.MaxPerSide) {
			return ErrSideLimitExceeded
		}
	}

	return nil
}
