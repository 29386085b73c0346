package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/atmx/ledger-engine/internal/metrics"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/perp"
	"github.com/atmx/ledger-engine/internal/risk"
)

// OpenRequest is the JSON body for POST /perp/long and /perp/short.
type OpenRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Leverage int64           `json:"leverage"`
}

// VolumeRequest is the JSON body for POST /perp/volume.
type VolumeRequest struct {
	Trader string          `json:"trader"`
	Amount decimal.Decimal `json:"amount"`
}

// RateRequest is the JSON body for PUT /perp/reward-rate.
type RateRequest struct {
	RewardPerSecond decimal.Decimal `json:"reward_per_second"`
}

// PerpStatusResponse is the perpetual engine overview.
type PerpStatusResponse struct {
	model.PerpStatus
	Account     string      `json:"account"`
	AssetA      model.Asset `json:"asset_a"`
	AssetB      model.Asset `json:"asset_b"`
	RewardAsset model.Asset `json:"reward_asset"`
}

// RewardResponse reports a trader's volume and reward.
type RewardResponse struct {
	Trader      string          `json:"trader"`
	Volume      decimal.Decimal `json:"volume"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Reward      decimal.Decimal `json:"reward"`
	Paid        bool            `json:"paid,omitempty"`
}

// GetPerpStatus handles GET /api/v1/perp.
func (s *Service) GetPerpStatus(w http.ResponseWriter, _ *http.Request) {
	a, b, reward := s.perp.Assets()
	writeJSON(w, http.StatusOK, PerpStatusResponse{
		PerpStatus:  s.perp.Status(),
		Account:     s.perp.Account().Hex(),
		AssetA:      a,
		AssetB:      b,
		RewardAsset: reward,
	})
}

// GetPositions handles GET /api/v1/perp/positions/{trader}.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	trader, err := model.ParseAccount(chi.URLParam(r, "trader"))
	if err != nil {
		writeError(w, err)
		return
	}
	positions := s.perp.Positions(trader)
	if positions == nil {
		positions = []model.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// OpenLong handles POST /api/v1/perp/long.
func (s *Service) OpenLong(w http.ResponseWriter, r *http.Request) {
	s.openPosition(w, r, model.SideLong, s.perp.OpenLong)
}

// OpenShort handles POST /api/v1/perp/short.
func (s *Service) OpenShort(w http.ResponseWriter, r *http.Request) {
	s.openPosition(w, r, model.SideShort, s.perp.OpenShort)
}

func (s *Service) openPosition(
	w http.ResponseWriter,
	r *http.Request,
	side model.Side,
	open func(context.Context, model.Account, decimal.Decimal, int64) error,
) {
	trader, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req OpenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, errInvalidBody)
		return
	}

	start := time.Now()
	err = open(r.Context(), trader, req.Amount, req.Leverage)
	metrics.Observe(model.EnginePerp, "open_"+sideLabel(side), start, err)
	if err != nil {
		if isRiskRejection(err) {
			metrics.RiskLimitRejections.Inc()
		}
		writeError(w, err)
		return
	}

	pos, _ := s.perp.Position(trader, side)
	writeJSON(w, http.StatusOK, pos)
}

// CloseLong handles DELETE /api/v1/perp/long.
func (s *Service) CloseLong(w http.ResponseWriter, r *http.Request) {
	s.closePosition(w, r, model.SideLong, s.perp.CloseLong)
}

// CloseShort handles DELETE /api/v1/perp/short.
func (s *Service) CloseShort(w http.ResponseWriter, r *http.Request) {
	s.closePosition(w, r, model.SideShort, s.perp.CloseShort)
}

func (s *Service) closePosition(
	w http.ResponseWriter,
	r *http.Request,
	side model.Side,
	closeFn func(context.Context, model.Account) (model.Position, error),
) {
	trader, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	pos, err := closeFn(r.Context(), trader)
	metrics.Observe(model.EnginePerp, "close_"+sideLabel(side), start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// UpdateTradingVolume handles POST /api/v1/perp/volume. Owner only.
func (s *Service) UpdateTradingVolume(w http.ResponseWriter, r *http.Request) {
	acct, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req VolumeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, errInvalidBody)
		return
	}
	trader, err := model.ParseAccount(req.Trader)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	err = s.perp.UpdateTradingVolume(r.Context(), acct, trader, req.Amount)
	metrics.Observe(model.EnginePerp, "update_trading_volume", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeReward(w, trader)
}

// SetRewardRate handles PUT /api/v1/perp/reward-rate. Owner only.
func (s *Service) SetRewardRate(w http.ResponseWriter, r *http.Request) {
	acct, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req RateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, errInvalidBody)
		return
	}

	start := time.Now()
	err = s.perp.SetRewardPerSecond(r.Context(), acct, req.RewardPerSecond)
	metrics.Observe(model.EnginePerp, "set_reward_per_second", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.GetPerpStatus(w, r)
}

// SetMarketVolume handles PUT /api/v1/perp/market-volume. Owner only.
func (s *Service) SetMarketVolume(w http.ResponseWriter, r *http.Request) {
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
	err = s.perp.UpdateCumulativeMarketVolume(r.Context(), acct, req.Amount)
	metrics.Observe(model.EnginePerp, "update_cumulative_market_volume", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	s.GetPerpStatus(w, r)
}

// GetReward handles GET /api/v1/perp/rewards/{trader}.
func (s *Service) GetReward(w http.ResponseWriter, r *http.Request) {
	trader, err := model.ParseAccount(chi.URLParam(r, "trader"))
	if err != nil {
		writeError(w, err)
		return
	}
	reward, err := s.perp.CalculateReward(trader)
	if err != nil {
		writeError(w, err)
		return
	}
	volume, periodStart := s.perp.TradingVolume(trader)
	writeJSON(w, http.StatusOK, RewardResponse{
		Trader:      trader.Hex(),
		Volume:      volume,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.Add(perp.PeriodLength),
		Reward:      reward,
	})
}

// PayReward handles POST /api/v1/perp/rewards/{trader}/pay.
func (s *Service) PayReward(w http.ResponseWriter, r *http.Request) {
	trader, err := model.ParseAccount(chi.URLParam(r, "trader"))
	if err != nil {
		writeError(w, err)
		return
	}

	volume, periodStart := s.perp.TradingVolume(trader)

	start := time.Now()
	paid, err := s.perp.PayReward(r.Context(), trader)
	metrics.Observe(model.EnginePerp, "pay_reward", start, err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RewardResponse{
		Trader:      trader.Hex(),
		Volume:      volume,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.Add(perp.PeriodLength),
		Reward:      paid,
		Paid:        true,
	})
}

// writeReward reports the trader's volume without failing on a zero
// market volume.
func (s *Service) writeReward(w http.ResponseWriter, trader model.Account) {
	volume, periodStart := s.perp.TradingVolume(trader)
	reward, err := s.perp.CalculateReward(trader)
	if err != nil {
		reward = decimal.Zero
	}
	writeJSON(w, http.StatusOK, RewardResponse{
		Trader:      trader.Hex(),
		Volume:      volume,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.Add(perp.PeriodLength),
		Reward:      reward,
	})
}

func sideLabel(side model.Side) string {
	if side == model.SideShort {
		return "short"
	}
	return "long"
}

func isRiskRejection(err error) bool {
	return errors.Is(err, risk.ErrLeverageLimitExceeded) ||
		errors.Is(err, risk.ErrTraderLimitExceeded) ||
		errors.Is(err, risk.ErrSideLimitExceeded)
}
