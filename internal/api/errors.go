package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/atmx/ledger-engine/internal/access"
	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/lending"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/perp"
	"github.com/atmx/ledger-engine/internal/risk"
	"github.com/atmx/ledger-engine/internal/store"
	"github.com/atmx/ledger-engine/internal/swap"
)

// CallerHeader carries the calling account.
const CallerHeader = "X-Account"

var (
	errMissingCaller  = errors.New("api: " + CallerHeader + " header is required")
	errFaucetDisabled = errors.New("api: faucet is disabled")
	errInvalidBody    = errors.New("api: invalid request body")
	errInvalidQuery   = errors.New("api: invalid query")
)

// caller returns the account named by the X-Account header.
func caller(r *http.Request) (model.Account, error) {
	v := strings.TrimSpace(r.Header.Get(CallerHeader))
	if v == "" {
		return model.Account{}, errMissingCaller
	}
	return model.ParseAccount(v)
}

var (
	forbidden = []error{
		access.ErrCallerNotOwner,
		errFaucetDisabled,
	}
	unauthorized = []error{
		errMissingCaller,
	}
	badRequest = []error{
		errInvalidBody,
		errInvalidQuery,
		model.ErrInvalidAccount,
		model.ErrInvalidAmount,
		asset.ErrInvalidSymbol,
		asset.ErrInvalidPair,
		asset.ErrSameAsset,
		asset.ErrInvalidTransfer,
		lending.ErrInvalidAmount,
		swap.ErrInvalidAmount,
		swap.ErrInvalidSellAmountOrReserve,
		swap.ErrZeroQuote,
		perp.ErrInvalidBuyAmount,
		perp.ErrInvalidSellAmount,
		perp.ErrInvalidLeverage,
		perp.ErrInvalidValue,
	}
	conflict = []error{
		asset.ErrInsufficientBalance,
		lending.ErrCallerIsNotLiquidityProvider,
		lending.ErrCallerIsNotBorrower,
		lending.ErrInsufficientBalance,
		lending.ErrInsufficientLiquidity,
		swap.ErrInsufficientReserveForBuyAmount,
		perp.ErrNoOpenPosition,
		perp.ErrMarketVolumeZero,
		perp.ErrRewardPeriodNotEnded,
		perp.ErrNoReward,
		perp.ErrInsufficientRewardFunds,
		risk.ErrLeverageLimitExceeded,
		risk.ErrTraderLimitExceeded,
		risk.ErrSideLimitExceeded,
	}
	notFound = []error{
		store.ErrNotFound,
	}
)

// statusFor maps an error to its HTTP status. Authorization errors take
// precedence over everything wrapped alongside them.
func statusFor(err error) int {
	groups := []struct {
		status int
		errs   []error
	}{
		{http.StatusForbidden, forbidden},
		{http.StatusUnauthorized, unauthorized},
		{http.StatusBadRequest, badRequest},
		{http.StatusNotFound, notFound},
		{http.StatusConflict, conflict},
	}
	for _, g := range groups {
		for _, target := range g.errs {
			if errors.Is(err, target) {
				return g.status
			}
		}
	}
	return http.StatusInternalServerError
}

// writeError writes a JSON error response for err.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "err", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}
