package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
)

// AmountRequest is the JSON body of single-amount operations.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// GetLending handles GET /api/v1/lending.
func (s *Service) GetLending(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Snapshot())
}

// GetLendingAccount handles GET /api/v1/lending/accounts/{account}.
func (s *Service) GetLendingAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := model.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.pool.Account(acct))
}

// lendingOp adapts a pool operation to POST /api/v1/lending/{name}. The
// response is the caller's updated pool account.
func (s *Service) lendingOp(name string, op func(context.Context, model.Account, decimal.Decimal) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acct, err := caller(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var req AmountRequest
		if err := decode(r, &req); err != nil {
			writeError(w, errInvalidBody)
			return
		}

		start := time.Now()
		err = op(r.Context(), acct, req.Amount)
		metrics.Observe(model.EngineLending, name, start, err)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.pool.Account(acct))
	}
}
