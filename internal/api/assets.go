package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
)

const engineBank = "bank"

// MintRequest is the JSON body for POST /assets/{asset}/mint.
type MintRequest struct {
	Account string          `json:"account"` // defaults to the caller
	Amount  decimal.Decimal `json:"amount"`
}

// TransferRequest is the JSON body for POST /assets/{asset}/transfer.
type TransferRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// BalanceResponse reports one account's balance of one asset.
type BalanceResponse struct {
	Asset   model.Asset     `json:"asset"`
	Account string          `json:"account"`
	Balance decimal.Decimal `json:"balance"`
}

// Mint handles POST /api/v1/assets/{asset}/mint. Development only.
func (s *Service) Mint(w http.ResponseWriter, r *http.Request) {
	if !s.faucet {
		writeError(w, errFaucetDisabled)
		return
	}
	a, err := asset.ParseSymbol(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req MintRequest
	if err := decode(r, &req); err != nil {
		writeError(w, errInvalidBody)
		return
	}

	var to model.Account
	if req.Account != "" {
		to, err = model.ParseAccount(req.Account)
	} else {
		to, err = caller(r)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	err = s.bank.Mint(a, to, req.Amount)
	metrics.Observe(engineBank, "mint", start, err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{Asset: a, Account: to.Hex(), Balance: s.bank.BalanceOf(a, to)})
}

// Transfer handles POST /api/v1/assets/{asset}/transfer.
func (s *Service) Transfer(w http.ResponseWriter, r *http.Request) {
	from, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := asset.ParseSymbol(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req TransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, errInvalidBody)
		return
	}
	to, err := model.ParseAccount(req.To)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	err = s.bank.Transfer(r.Context(), asset.Transfer{Asset: a, From: from, To: to, Amount: req.Amount})
	metrics.Observe(engineBank, "transfer", start, err)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{Asset: a, Account: from.Hex(), Balance: s.bank.BalanceOf(a, from)})
}

// GetBalance handles GET /api/v1/assets/{asset}/balances/{account}.
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	a, err := asset.ParseSymbol(chi.URLParam(r, "asset"))
	if err != nil {
		writeError(w, err)
		return
	}
	acct, err := model.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{Asset: a, Account: acct.Hex(), Balance: s.bank.BalanceOf(a, acct)})
}
