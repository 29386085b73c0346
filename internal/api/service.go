// Package api exposes the lending pool, swap engine and perpetual engine
// over HTTP, together with the asset bank and the event journal.
//
// Callers identify themselves with the X-Account header; authentication is
// handled in front of this service. Amounts travel as decimal strings.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/lending"
	"github.com/atmx/ledger-engine/internal/perp"
	"github.com/atmx/ledger-engine/internal/store"
	"github.com/atmx/ledger-engine/internal/swap"
)

// Service holds the engines served by the HTTP handlers. The engines
// serialize their own operations, so handlers hold no locks.
type Service struct {
	bank   *asset.Bank
	pool   *lending.Pool
	swap   *swap.Engine
	perp   *perp.Engine
	store  store.Store
	faucet bool
}

// NewService creates the HTTP service. faucet enables the mint endpoint.
func NewService(bank *asset.Bank, pool *lending.Pool, swapEngine *swap.Engine, perpEngine *perp.Engine, st store.Store, faucet bool) *Service {
	return &Service{
		bank:   bank,
		pool:   pool,
		swap:   swapEngine,
		perp:   perpEngine,
		store:  st,
		faucet: faucet,
	}
}

// Mount registers every API route on r. Mount it under /api/v1.
func (s *Service) Mount(r chi.Router) {
	// Asset bank.
	r.Post("/assets/{asset}/mint", s.Mint)
	r.Post("/assets/{asset}/transfer", s.Transfer)
	r.Get("/assets/{asset}/balances/{account}", s.GetBalance)

	// Lending pool.
	r.Get("/lending", s.GetLending)
	r.Get("/lending/accounts/{account}", s.GetLendingAccount)
	r.Post("/lending/deposit", s.lendingOp("deposit", s.pool.Deposit))
	r.Post("/lending/withdraw", s.lendingOp("withdraw", s.pool.Withdraw))
	r.Post("/lending/borrow", s.lendingOp("borrow", s.pool.Borrow))
	r.Post("/lending/repay", s.lendingOp("repay", s.pool.Repay))

	// Swap engine.
	r.Get("/swap/reserves/{pair}", s.GetReserves)
	r.Get("/swap/quote/{pair}", s.GetQuote)
	r.Post("/swap/buy", s.Buy)
	r.Post("/swap/sell", s.Sell)
	r.Post("/swap/fund", s.FundReserves)

	// Perpetual engine.
	r.Get("/perp", s.GetPerpStatus)
	r.Get("/perp/positions/{trader}", s.GetPositions)
	r.Post("/perp/long", s.OpenLong)
	r.Delete("/perp/long", s.CloseLong)
	r.Post("/perp/short", s.OpenShort)
	r.Delete("/perp/short", s.CloseShort)
	r.Post("/perp/volume", s.UpdateTradingVolume)
	r.Put("/perp/reward-rate", s.SetRewardRate)
	r.Put("/perp/market-volume", s.SetMarketVolume)
	r.Get("/perp/rewards/{trader}", s.GetReward)
	r.Post("/perp/rewards/{trader}/pay", s.PayReward)

	// Event journal.
	r.Get("/events", s.ListEvents)
	r.Get("/events/{eventID}", s.GetEvent)
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads a JSON request body into dst.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
