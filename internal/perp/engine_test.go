package perp

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/access"
	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/lending"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/risk"
	"github.com/atmx/ledger-engine/internal/swap"
)

const (
	tokA model.Asset = "TKNA"
	tokB model.Asset = "TKNB"
	rwd  model.Asset = "RWD"
)

var (
	owner    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	user1    = common.HexToAddress("0x2222222222222222222222222222222222222222")
	user2    = common.HexToAddress("0x3333333333333333333333333333333333333333")
	perpAcct = model.ModuleAccount("perp")
	swapAcct = model.ModuleAccount("swap")
	poolAcct = model.ModuleAccount("lending-pool")
)

func n(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type env struct {
	bank   *asset.Bank
	pool   *lending.Pool
	swap   *swap.Engine
	engine *Engine
	rec    *events.Recorder
	clock  *fakeClock
}

func newEnv(t *testing.T, mutate ...func(*Config)) *env {
	t.Helper()
	ctx := context.Background()

	bank := asset.NewBank()
	for _, a := range []model.Asset{tokA, tokB, rwd} {
		require.NoError(t, bank.Mint(a, owner, n(10000000)))
	}
	for _, u := range []model.Account{user1, user2} {
		require.NoError(t, bank.Mint(tokA, u, n(50000)))
		require.NoError(t, bank.Mint(tokB, u, n(50000)))
	}

	sw := swap.NewEngine(bank, swapAcct, access.NewOwner(owner), nil)
	require.NoError(t, sw.Fund(ctx, owner, tokA, n(500000)))
	require.NoError(t, sw.Fund(ctx, owner, tokB, n(500000)))

	pool := lending.NewPool(asset.NewCustody(bank, poolAcct, tokA), nil)

	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := Config{
		AssetA:          tokA,
		AssetB:          tokB,
		RewardAsset:     rwd,
		RewardPerSecond: n(1),
		Now:             clock.Now,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	rec := &events.Recorder{}
	eng, err := NewEngine(bank, perpAcct, access.NewOwner(owner), cfg, pool, sw, rec)
	require.NoError(t, err)

	return &env{bank: bank, pool: pool, swap: sw, engine: eng, rec: rec, clock: clock}
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	bank := asset.NewBank()
	_, err := NewEngine(bank, perpAcct, access.NewOwner(owner), Config{AssetA: tokA, AssetB: tokA, RewardAsset: rwd}, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.ErrorIs(t, err, asset.ErrSameAsset)

	_, err = NewEngine(bank, perpAcct, access.NewOwner(owner), Config{AssetA: tokA, AssetB: tokB}, nil, nil, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

// --- Positions ---

func TestOpenLong_CloseLong_Scenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.engine.OpenLong(ctx, user1, n(1000), 2))

	require.True(t, e.bank.BalanceOf(tokA, user1).Equal(n(48000)))
	require.True(t, e.bank.BalanceOf(tokA, perpAcct).Equal(n(2000)))
	s := e.engine.Status()
	require.True(t, s.LongBalanceB.Equal(n(1000)))
	require.True(t, s.LongDebtA.Equal(n(2000)))
	require.Len(t, e.rec.OfType(model.EventLongOpened), 1)

	pos, ok := e.engine.Position(user1, model.SideLong)
	require.True(t, ok)
	require.Equal(t, int64(2), pos.Leverage)

	closed, err := e.engine.CloseLong(ctx, user1)
	require.NoError(t, err)
	require.True(t, closed.DebtA.Equal(n(2000)))

	s = e.engine.Status()
	require.True(t, s.LongBalanceB.IsZero())
	require.True(t, s.LongDebtA.IsZero())
	require.True(t, e.bank.BalanceOf(tokA, user1).Equal(n(50000)))
	require.True(t, e.bank.BalanceOf(tokA, perpAcct).IsZero())

	ev, ok := e.rec.Last()
	require.True(t, ok)
	require.Equal(t, model.EventLongClosed, ev.Type)
	require.Equal(t, "2000", ev.Attributes["refund"])
	// 500000*1000/501000 at the swap reserves.
	require.Equal(t, "998", ev.Attributes["mark_a"])

	_, ok = e.engine.Position(user1, model.SideLong)
	require.False(t, ok)
}

func TestOpenShort_CloseShort_Scenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.engine.OpenShort(ctx, user1, n(1000), 2))
	require.True(t, e.bank.BalanceOf(tokB, user1).Equal(n(49000)))

	s := e.engine.Status()
	require.True(t, s.ShortDebtA.Equal(n(2000)))
	require.True(t, s.ShortBalanceB.Equal(n(1000)))

	_, err := e.engine.CloseShort(ctx, user1)
	require.NoError(t, err)

	s = e.engine.Status()
	require.True(t, s.ShortDebtA.IsZero())
	require.True(t, s.ShortBalanceB.IsZero())
	require.True(t, e.bank.BalanceOf(tokB, user1).Equal(n(50000)))
	require.Len(t, e.rec.OfType(model.EventShortClosed), 1)
}

func TestOpen_InvalidArguments(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, e.engine.OpenLong(ctx, user1, n(0), 2), ErrInvalidBuyAmount)
	require.ErrorIs(t, e.engine.OpenLong(ctx, user1, n(10), 0), ErrInvalidLeverage)
	require.ErrorIs(t, e.engine.OpenShort(ctx, user1, n(0), 2), ErrInvalidSellAmount)
	require.ErrorIs(t, e.engine.OpenShort(ctx, user1, n(10), -1), ErrInvalidLeverage)
	require.Empty(t, e.rec.Events())
}

func TestOpen_InsufficientMarginLeavesStateUntouched(t *testing.T) {
	e := newEnv(t)

	err := e.engine.OpenLong(context.Background(), user1, n(30000), 2)
	require.ErrorIs(t, err, asset.ErrInsufficientBalance)

	s := e.engine.Status()
	require.True(t, s.LongDebtA.IsZero())
	require.True(t, s.LongBalanceB.IsZero())
	require.Empty(t, e.engine.Positions(user1))
	require.True(t, e.bank.BalanceOf(tokA, user1).Equal(n(50000)))
}

func TestClose_NoOpenPosition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.engine.CloseLong(ctx, user1)
	require.ErrorIs(t, err, ErrNoOpenPosition)
	_, err = e.engine.CloseShort(ctx, user1)
	require.ErrorIs(t, err, ErrNoOpenPosition)
}

func TestClose_OnlyAffectsCallerPosition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.engine.OpenLong(ctx, user1, n(1000), 2))
	require.NoError(t, e.engine.OpenLong(ctx, user2, n(500), 3))
	require.NoError(t, e.engine.OpenLong(ctx, user2, n(100), 1))

	_, err := e.engine.CloseLong(ctx, user1)
	require.NoError(t, err)

	s := e.engine.Status()
	require.True(t, s.LongBalanceB.Equal(n(600)))
	require.True(t, s.LongDebtA.Equal(n(1600)))

	pos, ok := e.engine.Position(user2, model.SideLong)
	require.True(t, ok)
	require.True(t, pos.DebtA.Equal(s.LongDebtA))
	require.Equal(t, int64(1), pos.Leverage)
}

func TestOpen_RiskLimits(t *testing.T) {
	e := newEnv(t, func(c *Config) {
		c.Limits = risk.Limits{MaxLeverage: 5, MaxPerTrader: n(3000)}
	})
	ctx := context.Background()

	require.ErrorIs(t, e.engine.OpenLong(ctx, user1, n(10), 6), risk.ErrLeverageLimitExceeded)
	require.NoError(t, e.engine.OpenLong(ctx, user1, n(1000), 2))
	require.ErrorIs(t, e.engine.OpenShort(ctx, user1, n(1000), 2), risk.ErrTraderLimitExceeded)
	require.NoError(t, e.engine.OpenShort(ctx, user1, n(500), 2))
}

func TestStatus_ReadsPoolAndSwap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.bank.Mint(tokA, user2, n(1000)))
	require.NoError(t, e.pool.Deposit(ctx, user2, n(1000)))
	require.NoError(t, e.engine.OpenShort(ctx, user1, n(1000), 1))

	s := e.engine.Status()
	require.True(t, s.PoolLiquidity.Equal(n(1000)))
	require.True(t, s.ShortMarkA.Equal(n(998)))
	require.True(t, s.LongMarkA.IsZero())
	require.Equal(t, s.PeriodStart.Add(PeriodLength), s.PeriodEnd)
}

// --- Rewards ---

func TestReward_Scenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.bank.Transfer(ctx, asset.Transfer{Asset: rwd, From: owner, To: perpAcct, Amount: n(1000000)}))

	require.NoError(t, e.engine.SetRewardPerSecond(ctx, owner, n(1)))
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(1000)))
	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(10000)))

	e.clock.Advance(PeriodLength + time.Second)

	reward, err := e.engine.CalculateReward(user1)
	require.NoError(t, err)
	require.True(t, reward.Equal(n(259200)))

	paid, err := e.engine.PayReward(ctx, user1)
	require.NoError(t, err)
	require.True(t, paid.Equal(n(259200)))
	require.True(t, e.bank.BalanceOf(rwd, user1).Equal(n(259200)))

	ev, ok := e.rec.Last()
	require.True(t, ok)
	require.Equal(t, model.EventRewardPaid, ev.Type)
	require.Equal(t, "259200", ev.Attributes["amount"])

	_, err = e.engine.PayReward(ctx, user1)
	require.ErrorIs(t, err, ErrNoReward)
	require.True(t, e.bank.BalanceOf(rwd, user1).Equal(n(259200)))
}

func TestCalculateReward_LinearInVolumeAndRate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(10000)))
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(1000)))
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user2, n(2000)))

	r1, err := e.engine.CalculateReward(user1)
	require.NoError(t, err)
	r2, err := e.engine.CalculateReward(user2)
	require.NoError(t, err)
	require.True(t, r2.Equal(r1.Mul(n(2))))

	require.NoError(t, e.engine.SetRewardPerSecond(ctx, owner, n(3)))
	r3, err := e.engine.CalculateReward(user1)
	require.NoError(t, err)
	require.True(t, r3.Equal(r1.Mul(n(3))))

	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(20000)))
	r4, err := e.engine.CalculateReward(user1)
	require.NoError(t, err)
	require.True(t, r4.Mul(n(2)).Equal(r3))
}

func TestReward_MarketVolumeZero(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(1000)))

	_, err := e.engine.CalculateReward(user1)
	require.ErrorIs(t, err, ErrMarketVolumeZero)

	e.clock.Advance(PeriodLength)
	_, err = e.engine.PayReward(ctx, user1)
	require.ErrorIs(t, err, ErrMarketVolumeZero)
}

func TestPayReward_PeriodNotEnded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(10000)))
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(1000)))

	e.clock.Advance(PeriodLength - time.Second)
	_, err := e.engine.PayReward(ctx, user1)
	require.ErrorIs(t, err, ErrRewardPeriodNotEnded)

	_, err = e.engine.PayReward(ctx, user2)
	require.ErrorIs(t, err, ErrRewardPeriodNotEnded)
}

func TestPayReward_NoVolume(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(10000)))

	e.clock.Advance(PeriodLength)
	_, err := e.engine.PayReward(ctx, user1)
	require.ErrorIs(t, err, ErrNoReward)
}

func TestPayReward_InsufficientFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(10000)))
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(1000)))

	e.clock.Advance(PeriodLength)
	_, err := e.engine.PayReward(ctx, user1)
	require.ErrorIs(t, err, ErrInsufficientRewardFunds)

	vol, _ := e.engine.TradingVolume(user1)
	require.True(t, vol.Equal(n(1000)))
}

func TestPayReward_EscrowedMarginIsNotRewardFunds(t *testing.T) {
	e := newEnv(t, func(c *Config) { c.RewardAsset = tokA })
	ctx := context.Background()

	require.NoError(t, e.engine.OpenLong(ctx, user2, n(1000), 2))
	require.NoError(t, e.bank.Transfer(ctx, asset.Transfer{Asset: tokA, From: owner, To: perpAcct, Amount: n(1000)}))

	// 2500 * 1 * 2592000 / 2592000 = 2500 > 3000 held - 2000 escrowed.
	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(2592000)))
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(2500)))
	e.clock.Advance(PeriodLength)

	_, err := e.engine.PayReward(ctx, user1)
	require.ErrorIs(t, err, ErrInsufficientRewardFunds)
	require.True(t, e.bank.BalanceOf(tokA, perpAcct).Equal(n(3000)))
}

func TestUpdateTradingVolume_RollsOverPeriod(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.bank.Transfer(ctx, asset.Transfer{Asset: rwd, From: owner, To: perpAcct, Amount: n(1000000)}))
	require.NoError(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, n(2592000)))

	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(100)))
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user2, n(40)))
	_, firstStart := e.engine.TradingVolume(user1)

	e.clock.Advance(PeriodLength + time.Second)
	require.NoError(t, e.engine.UpdateTradingVolume(ctx, owner, user2, n(50)))

	ev, ok := e.rec.Last()
	require.True(t, ok)
	require.Equal(t, "true", ev.Attributes["rolled_over"])

	vol2, start2 := e.engine.TradingVolume(user2)
	require.True(t, vol2.Equal(n(50)))
	require.True(t, start2.After(firstStart))

	// user1's volume still belongs to the ended period and can be claimed.
	vol1, start1 := e.engine.TradingVolume(user1)
	require.True(t, vol1.Equal(n(100)))
	require.Equal(t, firstStart, start1)
	paid, err := e.engine.PayReward(ctx, user1)
	require.NoError(t, err)
	require.True(t, paid.Equal(n(100)))

	// user2's new period has not ended.
	_, err = e.engine.PayReward(ctx, user2)
	require.ErrorIs(t, err, ErrRewardPeriodNotEnded)
}

func TestOwnerOnlySetters(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, e.engine.SetRewardPerSecond(ctx, user1, n(5)), access.ErrCallerNotOwner)
	require.ErrorIs(t, e.engine.UpdateCumulativeMarketVolume(ctx, user1, n(5)), access.ErrCallerNotOwner)
	require.ErrorIs(t, e.engine.UpdateTradingVolume(ctx, user1, user1, n(5)), access.ErrCallerNotOwner)
	require.Empty(t, e.rec.Events())

	require.True(t, e.engine.Status().RewardPerSecond.Equal(n(1)))
}

func TestSetters_RejectInvalidValues(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.ErrorIs(t, e.engine.SetRewardPerSecond(ctx, owner, n(-1)), ErrInvalidValue)
	require.ErrorIs(t, e.engine.UpdateCumulativeMarketVolume(ctx, owner, decimal.RequireFromString("1.5")), ErrInvalidValue)
	require.ErrorIs(t, e.engine.UpdateTradingVolume(ctx, owner, user1, n(-3)), ErrInvalidValue)
}
