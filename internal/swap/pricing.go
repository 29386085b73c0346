// Package swap implements a two-asset constant-product market over the
// engine's own held reserves.
//
// The constant-product rule keeps reserveA * reserveB from shrinking across
// sells; every quote is integer division truncating toward zero, so the
// caller receives at most the mathematically exact amount on a sell.
//
// All monetary values use shopspring/decimal whole base units.
package swap

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/model"
)

var (
	// ErrInsufficientReserveForBuyAmount is returned when buyAmount >= the
	// buy-side reserve, making the quote infinite or negative.
	ErrInsufficientReserveForBuyAmount = errors.New("swap: insufficient reserve for buy amount")

	// ErrInvalidSellAmountOrReserve is returned when the sell amount or the
	// sell-side reserve is zero.
	ErrInvalidSellAmountOrReserve = errors.New("swap: invalid sell amount or reserve")

	// PriceScale is the number of decimal places for spot price rounding.
	PriceScale int32 = 18
)

// AmountToSell returns how much of the sell asset must be paid to receive
// buyAmount of the buy asset:
//
//	reserveA * buyAmount / (reserveB - buyAmount)
func AmountToSell(reserveA, reserveB, buyAmount decimal.Decimal) (decimal.Decimal, error) {
	if buyAmount.GreaterThanOrEqual(reserveB) {
		return decimal.Zero, ErrInsufficientReserveForBuyAmount
	}
	return model.Quo(reserveA.Mul(buyAmount), reserveB.Sub(buyAmount)), nil
}

// AmountToBuy returns how much of the buy asset is received for paying
// sellAmount of the sell asset:
//
//	reserveB * sellAmount / (reserveA + sellAmount)
func AmountToBuy(reserveA, reserveB, sellAmount decimal.Decimal) (decimal.Decimal, error) {
	if sellAmount.IsZero() || reserveA.IsZero() {
		return decimal.Zero, ErrInvalidSellAmountOrReserve
	}
	return model.Quo(reserveB.Mul(sellAmount), reserveA.Add(sellAmount)), nil
}

// Invariant returns the constant product k = reserveA * reserveB.
func Invariant(reserveA, reserveB decimal.Decimal) decimal.Decimal {
	return reserveA.Mul(reserveB)
}

// SpotPrice returns the marginal price of one unit of the buy asset in
// units of the sell asset: reserveA / reserveB. Zero when reserveB is empty.
func SpotPrice(reserveA, reserveB decimal.Decimal) decimal.Decimal {
	if reserveB.IsZero() {
		return decimal.Zero
	}
	return reserveA.DivRound(reserveB, PriceScale)
}
