// Package model defines the core domain types shared across the ledger engine.
// All monetary values use shopspring/decimal holding whole base units, never
// float64 for money.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidAccount is returned when an account identifier is not a
	// 20-byte hex address.
	ErrInvalidAccount = errors.New("model: invalid account address")

	// ErrInvalidAmount is returned for negative or fractional amounts.
	ErrInvalidAmount = errors.New("model: amount must be a non-negative whole number of base units")
)

// Account identifies a ledger participant. Addresses are content-addressed
// and comparable, so they key balance maps directly.
type Account = common.Address

// Asset is an upper-case asset symbol such as "MTKA".
type Asset string

// String returns the symbol.
func (a Asset) String() string { return string(a) }

// ParseAccount parses a 0x-prefixed hex address.
func ParseAccount(s string) (Account, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidAccount, s)
	}
	return common.HexToAddress(s), nil
}

// ModuleAccount derives the custody account of a named module. The derivation
// is stable across restarts so balances held by an engine stay addressable.
func ModuleAccount(name string) Account {
	hash := crypto.Keccak256([]byte("ledger-engine/module/" + name))
	return common.BytesToAddress(hash[12:])
}

// ParseAmount parses a decimal string into a whole, non-negative amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if err := ValidateAmount(v); err != nil {
		return decimal.Zero, err
	}
	return v, nil
}

// ValidateAmount reports whether v is a whole, non-negative amount.
func ValidateAmount(v decimal.Decimal) error {
	if v.IsNegative() || !v.IsInteger() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, v.String())
	}
	return nil
}

// Quo divides a by b truncating toward zero, matching unsigned integer
// division. b must be non-zero.
func Quo(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Event is an immutable record of a successful state-changing call.
// Once created, these are never modified or deleted.
type Event struct {
	ID         string            `json:"id" db:"id"`
	Type       string            `json:"type" db:"type"`
	Engine     string            `json:"engine" db:"engine"`
	Account    string            `json:"account,omitempty" db:"account"`
	Attributes map[string]string `json:"attributes" db:"attributes"`
	Timestamp  time.Time         `json:"timestamp" db:"timestamp"`
}

// Engine names used in Event.Engine.
const (
	EngineLending = "lending"
	EngineSwap    = "swap"
	EnginePerp    = "perp"
)

// Event types.
const (
	EventDeposited = "Deposited"
	EventWithdrawn = "Withdrawn"
	EventBorrowed  = "Borrowed"
	EventRepaid    = "Repaid"

	EventBought         = "Bought"
	EventSold           = "Sold"
	EventReservesFunded = "ReservesFunded"

	EventLongOpened                    = "LongOpened"
	EventLongClosed                    = "LongClosed"
	EventShortOpened                   = "ShortOpened"
	EventShortClosed                   = "ShortClosed"
	EventTradingVolumeUpdated          = "TradingVolumeUpdated"
	EventRewardRateUpdated             = "RewardRateUpdated"
	EventCumulativeMarketVolumeUpdated = "CumulativeMarketVolumeUpdated"
	EventRewardPaid                    = "RewardPaid"
)

// LendingSnapshot is the aggregate state of the lending pool.
type LendingSnapshot struct {
	Asset              Asset           `json:"asset"`
	Custody            decimal.Decimal `json:"custody"`
	TotalLiquidity     decimal.Decimal `json:"total_liquidity"`
	TotalDebt          decimal.Decimal `json:"total_debt"`
	TotalBorrowed      decimal.Decimal `json:"total_borrowed"`
	AvailableLiquidity decimal.Decimal `json:"available_liquidity"`
}

// LendingAccount is one participant's view of the lending pool.
type LendingAccount struct {
	Account   Account         `json:"account"`
	Liquidity decimal.Decimal `json:"liquidity"`
	Debt      decimal.Decimal `json:"debt"`
}

// Reserves are the engine-held balances of a swap pair.
type Reserves struct {
	Sell        Asset           `json:"sell"`
	Buy         Asset           `json:"buy"`
	ReserveSell decimal.Decimal `json:"reserve_sell"`
	ReserveBuy  decimal.Decimal `json:"reserve_buy"`
}

// Side of a perpetual position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position is one trader's open exposure on one side.
type Position struct {
	Trader   Account         `json:"trader"`
	Side     Side            `json:"side"`
	DebtA    decimal.Decimal `json:"debt_a"`
	BalanceB decimal.Decimal `json:"balance_b"`
	Leverage int64           `json:"leverage"`
	OpenedAt time.Time       `json:"opened_at"`
}

// PerpStatus aggregates the perpetual engine state with informational
// readings from the lending pool and swap engine.
type PerpStatus struct {
	LongDebtA              decimal.Decimal `json:"long_debt_a"`
	LongBalanceB           decimal.Decimal `json:"long_balance_b"`
	ShortDebtA             decimal.Decimal `json:"short_debt_a"`
	ShortBalanceB          decimal.Decimal `json:"short_balance_b"`
	RewardPerSecond        decimal.Decimal `json:"reward_per_second"`
	CumulativeMarketVolume decimal.Decimal `json:"cumulative_market_volume"`
	PeriodStart            time.Time       `json:"period_start"`
	PeriodEnd              time.Time       `json:"period_end"`
	PoolLiquidity          decimal.Decimal `json:"pool_liquidity"`
	LongMarkA              decimal.Decimal `json:"long_mark_a"`
	ShortMarkA             decimal.Decimal `json:"short_mark_a"`
}
