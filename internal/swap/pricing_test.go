package swap

import (
	"testing"

	"github.com/shopspring/decimal"
)

// n is a test helper for creating whole-unit decimals.
func n(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// --- AmountToSell ---

func TestAmountToSell_Scenario(t *testing.T) {
	got, err := AmountToSell(n(500000), n(500000), n(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 500000*1000/499000 = 1002.004... truncated.
	if !got.Equal(n(1002)) {
		t.Errorf("expected 1002, got %s", got)
	}
}

func TestAmountToSell_BuyAtOrAboveReserve(t *testing.T) {
	for _, buy := range []int64{500, 501, 10000} {
		_, err := AmountToSell(n(1000), n(500), n(buy))
		if err != ErrInsufficientReserveForBuyAmount {
			t.Errorf("buy=%d: expected ErrInsufficientReserveForBuyAmount, got %v", buy, err)
		}
	}
}

func TestAmountToSell_ZeroBuyIsFree(t *testing.T) {
	got, err := AmountToSell(n(1000), n(1000), n(0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("expected 0, got %s", got)
	}
}

func TestAmountToSell_TruncationBounds(t *testing.T) {
	tests := []struct {
		reserveA, reserveB, buy int64
	}{
		{500000, 500000, 1000},
		{1000, 3, 1},
		{7, 1000000, 999999},
		{123456789, 987654321, 55555},
		{1, 2, 1},
	}
	for _, tt := range tests {
		q, err := AmountToSell(n(tt.reserveA), n(tt.reserveB), n(tt.buy))
		if err != nil {
			t.Fatalf("%+v: unexpected error: %v", tt, err)
		}
		num := n(tt.reserveA).Mul(n(tt.buy))
		den := n(tt.reserveB - tt.buy)
		if q.Mul(den).GreaterThan(num) || q.Add(n(1)).Mul(den).LessThanOrEqual(num) {
			t.Errorf("%+v: %s is not floor(%s/%s)", tt, q, num, den)
		}
	}
}

// --- AmountToBuy ---

func TestAmountToBuy_Scenario(t *testing.T) {
	got, err := AmountToBuy(n(500000), n(500000), n(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 500000*1000/501000 = 998.003... truncated.
	if !got.Equal(n(998)) {
		t.Errorf("expected 998, got %s", got)
	}
}

func TestAmountToBuy_InvalidInputs(t *testing.T) {
	if _, err := AmountToBuy(n(1000), n(1000), n(0)); err != ErrInvalidSellAmountOrReserve {
		t.Errorf("zero sell: expected ErrInvalidSellAmountOrReserve, got %v", err)
	}
	if _, err := AmountToBuy(n(0), n(1000), n(10)); err != ErrInvalidSellAmountOrReserve {
		t.Errorf("zero reserve: expected ErrInvalidSellAmountOrReserve, got %v", err)
	}
}

func TestAmountToBuy_NeverDrainsReserve(t *testing.T) {
	for _, sell := range []int64{1, 1000, 1000000, 1000000000000} {
		got, err := AmountToBuy(n(1000), n(1000), n(sell))
		if err != nil {
			t.Fatalf("sell=%d: unexpected error: %v", sell, err)
		}
		if !got.LessThan(n(1000)) {
			t.Errorf("sell=%d: output %s reached the reserve", sell, got)
		}
	}
}

func TestAmountToBuy_InvariantNeverDecreases(t *testing.T) {
	tests := []struct {
		reserveA, reserveB, sell int64
	}{
		{500000, 500000, 1000},
		{3, 1000, 2},
		{999, 7, 1},
		{123456789, 987654321, 55555},
	}
	for _, tt := range tests {
		out, err := AmountToBuy(n(tt.reserveA), n(tt.reserveB), n(tt.sell))
		if err != nil {
			t.Fatalf("%+v: unexpected error: %v", tt, err)
		}
		before := Invariant(n(tt.reserveA), n(tt.reserveB))
		after := Invariant(n(tt.reserveA+tt.sell), n(tt.reserveB).Sub(out))
		if after.LessThan(before) {
			t.Errorf("%+v: k decreased from %s to %s", tt, before, after)
		}
	}
}

// --- SpotPrice ---

func TestSpotPrice(t *testing.T) {
	if got := SpotPrice(n(2000), n(1000)); !got.Equal(n(2)) {
		t.Errorf("expected 2, got %s", got)
	}
	if got := SpotPrice(n(2000), n(0)); !got.IsZero() {
		t.Errorf("expected 0 for empty reserve, got %s", got)
	}
}
