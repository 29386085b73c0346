package perp

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/model"
)

func validValue(v decimal.Decimal) error {
	if v.IsNegative() || !v.IsInteger() {
		return ErrInvalidValue
	}
	return nil
}

// UpdateTradingVolume adds amount to the trader's volume for the current
// period, rolling the period over first when it has elapsed. Owner only.
func (e *Engine) UpdateTradingVolume(ctx context.Context, caller, trader model.Account, amount decimal.Decimal) error {
	if err := e.owner.Check(caller); err != nil {
		return err
	}
	if err := validValue(amount); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now().UTC()
	rolled := false
	if now.After(e.periodStart.Add(PeriodLength)) {
		e.periodStart = now
		rolled = true
	}

	entry, ok := e.volumes[trader]
	if !ok || !entry.periodStart.Equal(e.periodStart) {
		entry = volumeEntry{volume: decimal.Zero, periodStart: e.periodStart}
	}
	entry.volume = entry.volume.Add(amount)
	e.volumes[trader] = entry

	slog.Info("trading volume updated",
		"trader", trader.Hex(),
		"amount", amount.String(),
		"volume", entry.volume.String(),
		"rolled_over", rolled,
	)
	e.emitter.Emit(ctx, events.New(model.EnginePerp, model.EventTradingVolumeUpdated, trader, now, map[string]string{
		"amount":       amount.String(),
		"volume":       entry.volume.String(),
		"period_start": e.periodStart.Format(time.RFC3339),
		"rolled_over":  strconv.FormatBool(rolled),
	}))
	return nil
}

// SetRewardPerSecond sets the reward emission rate. Owner only.
func (e *Engine) SetRewardPerSecond(ctx context.Context, caller model.Account, rate decimal.Decimal) error {
	if err := e.owner.Check(caller); err != nil {
		return err
	}
	if err := validValue(rate); err != nil {
		return err
	}

	e.mu.Lock()
	e.rewardPerSecond = rate
	e.mu.Unlock()

	slog.Info("reward rate updated", "rate", rate.String())
	e.emitter.Emit(ctx, events.New(model.EnginePerp, model.EventRewardRateUpdated, caller, e.now(), map[string]string{
		"reward_per_second": rate.String(),
	}))
	return nil
}

// UpdateCumulativeMarketVolume sets the reward-sharing divisor. Owner only.
func (e *Engine) UpdateCumulativeMarketVolume(ctx context.Context, caller model.Account, amount decimal.Decimal) error {
	if err := e.owner.Check(caller); err != nil {
		return err
	}
	if err := validValue(amount); err != nil {
		return err
	}

	e.mu.Lock()
	e.cumulativeMarketVolume = amount
	e.mu.Unlock()

	slog.Info("cumulative market volume updated", "amount", amount.String())
	e.emitter.Emit(ctx, events.New(model.EnginePerp, model.EventCumulativeMarketVolumeUpdated, caller, e.now(), map[string]string{
		"cumulative_market_volume": amount.String(),
	}))
	return nil
}

// TradingVolume returns the trader's recorded volume and the period it
// belongs to. Traders without volume report the current period.
func (e *Engine) TradingVolume(trader model.Account) (decimal.Decimal, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.volumes[trader]; ok {
		return entry.volume, entry.periodStart
	}
	return decimal.Zero, e.periodStart
}

// CalculateReward returns volume * rewardPerSecond * PeriodLength /
// cumulativeMarketVolume for trader.
func (e *Engine) CalculateReward(trader model.Account) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reward(trader)
}

// reward computes the trader's reward. Caller holds mu.
func (e *Engine) reward(trader model.Account) (decimal.Decimal, error) {
	if e.cumulativeMarketVolume.IsZero() {
		return decimal.Zero, ErrMarketVolumeZero
	}
	volume := e.volumes[trader].volume
	return model.Quo(volume.Mul(e.rewardPerSecond).Mul(periodSeconds), e.cumulativeMarketVolume), nil
}

// PayReward transfers the trader's reward once the period the volume was
// recorded in has ended, then clears that volume.
func (e *Engine) PayReward(ctx context.Context, trader model.Account) (decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := e.periodStart
	if entry, ok := e.volumes[trader]; ok {
		start = entry.periodStart
	}
	if e.now().Before(start.Add(PeriodLength)) {
		return decimal.Zero, ErrRewardPeriodNotEnded
	}

	amount, err := e.reward(trader)
	if err != nil {
		return decimal.Zero, err
	}
	if amount.IsZero() {
		return decimal.Zero, ErrNoReward
	}

	c := e.custody(e.rewardAsset)
	funds := c.Balance().Sub(e.escrowed(e.rewardAsset))
	if amount.GreaterThan(funds) {
		return decimal.Zero, fmt.Errorf("%w: reward %s, available %s", ErrInsufficientRewardFunds, amount, funds)
	}
	if err := c.TransferOut(ctx, trader, amount); err != nil {
		return decimal.Zero, fmt.Errorf("perp: pay reward: %w", err)
	}
	delete(e.volumes, trader)

	slog.Info("reward paid",
		"trader", trader.Hex(),
		"asset", e.rewardAsset.String(),
		"amount", amount.String(),
	)
	e.emitter.Emit(ctx, events.New(model.EnginePerp, model.EventRewardPaid, trader, e.now(), map[string]string{
		"asset":        e.rewardAsset.String(),
		"amount":       amount.String(),
		"period_start": start.Format(time.RFC3339),
	}))
	return amount, nil
}
