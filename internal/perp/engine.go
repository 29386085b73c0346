// Package perp implements leveraged long/short exposure against two assets
// together with a volume-weighted trading reward paid once per period.
//
// Positions are keyed per trader and side; the long and short aggregates are
// always the sums over open positions. Margin is escrowed in the engine's
// custody account and refunded on close. The lending pool and the swap
// engine are consulted for informational readings only.
package perp

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/access"
	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/risk"
)

// PeriodLength is the reward period.
const PeriodLength = 30 * 24 * time.Hour

// periodSeconds is PeriodLength in whole seconds, the unit of rewardPerSecond.
var periodSeconds = decimal.NewFromInt(int64(PeriodLength / time.Second))

var (
	ErrInvalidBuyAmount  = errors.New("perp: amount to buy must be greater than zero")
	ErrInvalidSellAmount = errors.New("perp: amount to sell must be greater than zero")
	ErrInvalidLeverage   = errors.New("perp: leverage must be greater than or equal to 1")
	ErrInvalidValue      = errors.New("perp: value must be a non-negative whole number")
	ErrNoOpenPosition    = errors.New("perp: no open position")

	ErrMarketVolumeZero        = errors.New("perp: market volume is zero")
	ErrRewardPeriodNotEnded    = errors.New("perp: reward period has not ended yet")
	ErrNoReward                = errors.New("perp: no reward for this period")
	ErrInsufficientRewardFunds = errors.New("perp: insufficient reward funds")

	ErrInvalidConfig = errors.New("perp: invalid configuration")
)

// LiquiditySource reports the liquidity available in the lending pool.
type LiquiditySource interface {
	AvailableLiquidity() decimal.Decimal
}

// PriceSource quotes swap proceeds from current reserves.
type PriceSource interface {
	CalcAmountToBuy(sell, buy model.Asset, sellAmount decimal.Decimal) (decimal.Decimal, error)
}

// Config holds the engine parameters.
type Config struct {
	AssetA          model.Asset
	AssetB          model.Asset
	RewardAsset     model.Asset
	RewardPerSecond decimal.Decimal
	Limits          risk.Limits

	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

type positionKey struct {
	trader model.Account
	side   model.Side
}

type volumeEntry struct {
	volume      decimal.Decimal
	periodStart time.Time
}

// Engine is the perpetual ledger. Operations are serialized by mu.
type Engine struct {
	mu      sync.Mutex
	ledger  asset.Ledger
	account model.Account
	owner   access.Owner
	emitter events.Emitter
	limiter *risk.PositionLimiter
	pool    LiquiditySource
	prices  PriceSource
	now     func() time.Time

	assetA      model.Asset
	assetB      model.Asset
	rewardAsset model.Asset

	positions map[positionKey]*model.Position

	longDebtA     decimal.Decimal
	longBalanceB  decimal.Decimal
	shortDebtA    decimal.Decimal
	shortBalanceB decimal.Decimal

	volumes                map[model.Account]volumeEntry
	cumulativeMarketVolume decimal.Decimal
	rewardPerSecond        decimal.Decimal
	periodStart            time.Time
}

// NewEngine creates a perpetual engine escrowing margin in account.
// pool, prices and emitter may be nil.
func NewEngine(
	ledger asset.Ledger,
	account model.Account,
	owner access.Owner,
	cfg Config,
	pool LiquiditySource,
	prices PriceSource,
	emitter events.Emitter,
) (*Engine, error) {
	if cfg.AssetA == "" || cfg.AssetB == "" || cfg.RewardAsset == "" {
		return nil, fmt.Errorf("%w: assets must be set", ErrInvalidConfig)
	}
	if cfg.AssetA == cfg.AssetB {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, asset.ErrSameAsset)
	}
	if cfg.RewardPerSecond.IsNegative() || !cfg.RewardPerSecond.IsInteger() {
		return nil, fmt.Errorf("%w: reward per second %s", ErrInvalidConfig, cfg.RewardPerSecond)
	}
	if emitter == nil {
		emitter = events.Discard
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	var limiter *risk.PositionLimiter
	if cfg.Limits.Enabled() {
		limiter = risk.NewPositionLimiter(cfg.Limits)
	}

	return &Engine{
		ledger:          ledger,
		account:         account,
		owner:           owner,
		emitter:         emitter,
		limiter:         limiter,
		pool:            pool,
		prices:          prices,
		now:             now,
		assetA:          cfg.AssetA,
		assetB:          cfg.AssetB,
		rewardAsset:     cfg.RewardAsset,
		positions:       make(map[positionKey]*model.Position),
		volumes:         make(map[model.Account]volumeEntry),
		rewardPerSecond: cfg.RewardPerSecond,
		periodStart:     now().UTC(),
	}, nil
}

// Account returns the custody account holding margin and reward funds.
func (e *Engine) Account() model.Account { return e.account }

// Assets returns the traded pair and the reward asset.
func (e *Engine) Assets() (a, b, reward model.Asset) {
	return e.assetA, e.assetB, e.rewardAsset
}

func (e *Engine) custody(a model.Asset) *asset.Custody {
	return asset.NewCustody(e.ledger, e.account, a)
}

// Position returns the trader's open position on side.
func (e *Engine) Position(trader model.Account, side model.Side) (model.Position, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[positionKey{trader, side}]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// Positions returns every open position of trader, long first.
func (e *Engine) Positions(trader model.Account) []model.Position {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []model.Position
	for _, side := range []model.Side{model.SideLong, model.SideShort} {
		if p, ok := e.positions[positionKey{trader, side}]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Status returns the aggregates and reward parameters together with pool
// liquidity and swap mark values. Readings from other engines are zero
// when unavailable.
func (e *Engine) Status() model.PerpStatus {
	e.mu.Lock()
	s := model.PerpStatus{
		LongDebtA:              e.longDebtA,
		LongBalanceB:           e.longBalanceB,
		ShortDebtA:             e.shortDebtA,
		ShortBalanceB:          e.shortBalanceB,
		RewardPerSecond:        e.rewardPerSecond,
		CumulativeMarketVolume: e.cumulativeMarketVolume,
		PeriodStart:            e.periodStart,
		PeriodEnd:              e.periodStart.Add(PeriodLength),
	}
	e.mu.Unlock()

	if e.pool != nil {
		s.PoolLiquidity = e.pool.AvailableLiquidity()
	}
	s.LongMarkA = e.markA(s.LongBalanceB)
	s.ShortMarkA = e.markA(s.ShortBalanceB)
	return s
}

// markA values balanceB in asset A at the swap engine's current reserves.
func (e *Engine) markA(balanceB decimal.Decimal) decimal.Decimal {
	if e.prices == nil || !balanceB.IsPositive() {
		return decimal.Zero
	}
	v, err := e.prices.CalcAmountToBuy(e.assetB, e.assetA, balanceB)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// escrowed returns the margin held in asset a. Caller holds mu.
func (e *Engine) escrowed(a model.Asset) decimal.Decimal {
	switch a {
	case e.assetA:
		return e.longDebtA
	case e.assetB:
		return e.shortBalanceB
	default:
		return decimal.Zero
	}
}
