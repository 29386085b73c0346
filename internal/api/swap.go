package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/swap"
)

// SwapRequest is the JSON body for POST /swap/buy and /swap/sell. Amount
// is the buy amount for a buy and the sell amount for a sell.
type SwapRequest struct {
	Pair   string          `json:"pair"` // {sell}-{buy}
	Amount decimal.Decimal `json:"amount"`
}

// FundRequest is the JSON body for POST /swap/fund.
type FundRequest struct {
	Asset  string          `json:"asset"`
	Amount decimal.Decimal `json:"amount"`
}

// SwapResponse reports an executed trade or a quote.
type SwapResponse struct {
	Pair       string          `json:"pair"`
	SellAmount decimal.Decimal `json:"sell_amount"`
	BuyAmount  decimal.Decimal `json:"buy_amount"`
}

// ReservesResponse is the reserves view of a pair.
type ReservesResponse struct {
	model.Reserves
	Pair      string          `json:"pair"`
	Invariant decimal.Decimal `json:"invariant"`
	SpotPrice decimal.Decimal `json:"spot_price"`
}

// GetReserves handles GET /api/v1/swap/reserves/{pair}.
func (s *Service) GetReserves(w http.ResponseWriter, r *http.Request) {
	pair, err := asset.ParsePair(chi.URLParam(r, "pair"))
	if err != nil {
		writeError(w, err)
		return
	}
	res := s.swap.Reserves(pair.Sell, pair.Buy)
	writeJSON(w, http.StatusOK, ReservesResponse{
		Reserves:  res,
		Pair:      pair.String(),
		Invariant: swap.Invariant(res.ReserveSell, res.ReserveBuy),
		SpotPrice: swap.SpotPrice(res.ReserveSell, res.ReserveBuy),
	})
}

// GetQuote handles GET /api/v1/swap/quote/{pair}?buy_amount=N or
// ?sell_amount=N. Exactly one of the two must be given.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	pair, err := asset.ParsePair(chi.URLParam(r, "pair"))
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	buyStr, sellStr := q.Get("buy_amount"), q.Get("sell_amount")
	if (buyStr == "") == (sellStr == "") {
		writeError(w, fmt.Errorf("%w: exactly one of buy_amount or sell_amount is required", errInvalidQuery))
		return
	}

	resp := SwapResponse{Pair: pair.String()}
	if buyStr != "" {
		resp.BuyAmount, err = model.ParseAmount(buyStr)
		if err == nil {
			resp.SellAmount, err = s.swap.CalcAmountToSell(pair.Sell, pair.Buy, resp.BuyAmount)
		}
	} else {
		resp.SellAmount, err = model.ParseAmount(sellStr)
		if err == nil {
			resp.BuyAmount, err = s.swap.CalcAmountToBuy(pair.Sell, pair.Buy, resp.SellAmount)
		}
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Buy handles POST /api/v1/swap/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	acct, pair, req, ok := s.swapRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	sold, err := s.swap.Buy(r.Context(), acct, pair.Sell, pair.Buy, req.Amount)
	metrics.Observe(model.EngineSwap, "buy", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SwapResponse{Pair: pair.String(), SellAmount: sold, BuyAmount: req.Amount})
}

// Sell handles POST /api/v1/swap/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	acct, pair, req, ok := s.swapRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	bought, err := s.swap.Sell(r.Context(), acct, pair.Sell, pair.Buy, req.Amount)
	metrics.Observe(model.EngineSwap, "sell", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SwapResponse{Pair: pair.String(), SellAmount: req.Amount, BuyAmount: bought})
}

func (s *Service) swapRequest(w http.ResponseWriter, r *http.Request) (model.Account, asset.Pair, SwapRequest, bool) {
	var req SwapRequest
	acct, err := caller(r)
	if err != nil {
		writeError(w, err)
		return acct, asset.Pair{}, req, false
	}
	if err := decode(r, &req); err != nil {
		writeError(w, errInvalidBody)
		return acct, asset.Pair{}, req, false
	}
	pair, err := asset.ParsePair(req.Pair)
	if err != nil {
		writeError(w, err)
		return acct, asset.Pair{}, req, false
	}
	return acct, pair, req, true
}

// FundReserves handles POST /api/v1/swap/fund. Owner only.
func (s *Service) FundReserves(w http.ResponseWriter, r *http.Request) {
	acct, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req FundRequest
	if err := decode(r, &req); err != nil {
		writeError(w, errInvalidBody)
		return
	}
	a, err := asset.ParseSymbol(req.Asset)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	err = s.swap.Fund(r.Context(), acct, a, req.Amount)
	metrics.Observe(model.EngineSwap, "fund", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceResponse{
		Asset:   a,
		Account: s.swap.Account().Hex(),
		Balance: s.bank.BalanceOf(a, s.swap.Account()),
	})
}
