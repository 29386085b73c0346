package swap

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/atmx/ledger-engine/internal/access"
	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/events"
	"github.com/atmx/ledger-engine/internal/model"
)

const (
	tokA model.Asset = "MTKA"
	tokB model.Asset = "MTKB"
)

var (
	owner    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	trader   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	swapAcct = model.ModuleAccount("swap")
)

type env struct {
	bank   *asset.Bank
	engine *Engine
	rec    *events.Recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	bank := asset.NewBank()
	require.NoError(t, bank.Mint(tokA, owner, n(1000000)))
	require.NoError(t, bank.Mint(tokB, owner, n(1000000)))
	require.NoError(t, bank.Mint(tokA, trader, n(10000)))
	require.NoError(t, bank.Mint(tokB, trader, n(10000)))

	rec := &events.Recorder{}
	e := &env{
		bank:   bank,
		engine: NewEngine(bank, swapAcct, access.NewOwner(owner), rec),
		rec:    rec,
	}
	ctx := context.Background()
	require.NoError(t, e.engine.Fund(ctx, owner, tokA, n(500000)))
	require.NoError(t, e.engine.Fund(ctx, owner, tokB, n(500000)))
	return e
}

func TestFund_OwnerOnly(t *testing.T) {
	e := newEnv(t)

	err := e.engine.Fund(context.Background(), trader, tokA, n(10))
	require.ErrorIs(t, err, access.ErrCallerNotOwner)
	require.Len(t, e.rec.OfType(model.EventReservesFunded), 2)

	r := e.engine.Reserves(tokA, tokB)
	require.True(t, r.ReserveSell.Equal(n(500000)))
	require.True(t, r.ReserveBuy.Equal(n(500000)))
}

func TestFund_RejectsInvalidAmount(t *testing.T) {
	e := newEnv(t)
	require.ErrorIs(t, e.engine.Fund(context.Background(), owner, tokA, n(0)), ErrInvalidAmount)
}

func TestCalc_SameAssetRejected(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.CalcAmountToSell(tokA, tokA, n(10))
	require.ErrorIs(t, err, asset.ErrSameAsset)
	_, err = e.engine.CalcAmountToBuy(tokA, tokA, n(10))
	require.ErrorIs(t, err, asset.ErrSameAsset)
}

func TestBuy_Scenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	quote, err := e.engine.CalcAmountToSell(tokA, tokB, n(1000))
	require.NoError(t, err)
	require.True(t, quote.Equal(n(1002)))

	paid, err := e.engine.Buy(ctx, trader, tokA, tokB, n(1000))
	require.NoError(t, err)
	require.True(t, paid.Equal(quote))

	require.True(t, e.bank.BalanceOf(tokA, trader).Equal(n(10000-1002)))
	require.True(t, e.bank.BalanceOf(tokB, trader).Equal(n(11000)))

	r := e.engine.Reserves(tokA, tokB)
	require.True(t, r.ReserveSell.Equal(n(501002)))
	require.True(t, r.ReserveBuy.Equal(n(499000)))

	ev, ok := e.rec.Last()
	require.True(t, ok)
	require.Equal(t, model.EventBought, ev.Type)
	require.Equal(t, "1002", ev.Attributes["sell_amount"])
	require.Equal(t, "1000", ev.Attributes["buy_amount"])
	require.Equal(t, "499000", ev.Attributes["reserve_buy"])
}

func TestBuy_InsufficientReserve(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Buy(context.Background(), trader, tokA, tokB, n(500000))
	require.ErrorIs(t, err, ErrInsufficientReserveForBuyAmount)
	require.Empty(t, e.rec.OfType(model.EventBought))
}

func TestBuy_CallerCannotPay(t *testing.T) {
	e := newEnv(t)
	before := e.engine.Reserves(tokA, tokB)

	_, err := e.engine.Buy(context.Background(), trader, tokA, tokB, n(100000))
	require.ErrorIs(t, err, asset.ErrInsufficientBalance)

	after := e.engine.Reserves(tokA, tokB)
	require.True(t, before.ReserveSell.Equal(after.ReserveSell))
	require.True(t, before.ReserveBuy.Equal(after.ReserveBuy))
	require.True(t, e.bank.BalanceOf(tokB, trader).Equal(n(10000)))
}

func TestBuy_ZeroQuoteRejected(t *testing.T) {
	bank := asset.NewBank()
	require.NoError(t, bank.Mint(tokA, owner, n(1)))
	require.NoError(t, bank.Mint(tokB, owner, n(1000000)))
	eng := NewEngine(bank, swapAcct, access.NewOwner(owner), nil)
	ctx := context.Background()
	require.NoError(t, eng.Fund(ctx, owner, tokA, n(1)))
	require.NoError(t, eng.Fund(ctx, owner, tokB, n(1000000)))

	// 1*1/999999 truncates to zero.
	_, err := eng.Buy(ctx, trader, tokA, tokB, n(1))
	require.ErrorIs(t, err, ErrZeroQuote)
}

func TestSell_Scenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	got, err := e.engine.Sell(ctx, trader, tokA, tokB, n(1000))
	require.NoError(t, err)
	require.True(t, got.Equal(n(998)))

	require.True(t, e.bank.BalanceOf(tokA, trader).Equal(n(9000)))
	require.True(t, e.bank.BalanceOf(tokB, trader).Equal(n(10998)))

	ev, ok := e.rec.Last()
	require.True(t, ok)
	require.Equal(t, model.EventSold, ev.Type)
	require.Equal(t, trader.Hex(), ev.Account)
}

func TestSell_InvalidAmount(t *testing.T) {
	e := newEnv(t)
	_, err := e.engine.Sell(context.Background(), trader, tokA, tokB, n(0))
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSell_EmptyReserve(t *testing.T) {
	bank := asset.NewBank()
	require.NoError(t, bank.Mint(tokA, trader, n(100)))
	eng := NewEngine(bank, swapAcct, access.NewOwner(owner), nil)

	_, err := eng.Sell(context.Background(), trader, tokA, tokB, n(10))
	require.ErrorIs(t, err, ErrInvalidSellAmountOrReserve)
}

func TestSell_RoundTripNeverProfits(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	got, err := e.engine.Sell(ctx, trader, tokA, tokB, n(5000))
	require.NoError(t, err)
	back, err := e.engine.Sell(ctx, trader, tokB, tokA, got)
	require.NoError(t, err)
	require.True(t, back.LessThanOrEqual(n(5000)))

	r := e.engine.Reserves(tokA, tokB)
	require.True(t, Invariant(r.ReserveSell, r.ReserveBuy).GreaterThanOrEqual(Invariant(n(500000), n(500000))))
}
