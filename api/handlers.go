package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/Priveetee/priceyy/internal/catalog"
	"github.com/Priveetee/priceyy/internal/estimation"
	"github.com/Priveetee/priceyy/internal/pricing"
	"github.com/Priveetee/priceyy/internal/retry"
)

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req estimation.CalculationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" || len(req.Services) == 0 {
		s.jsonError(w, http.StatusBadRequest, "provider and services are required")
		return
	}

	resp, err := s.calculator.Calculate(r.Context(), req)
	if err != nil {
		if errors.Is(err, pricing.ErrPriceNotFound) {
			s.jsonError(w, http.StatusNotFound, err.Error())
			return
		}
		s.log.Error().Err(err).Msg("calculation failed")
		s.jsonError(w, http.StatusInternalServerError, "calculation failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleSaveEstimation(w http.ResponseWriter, r *http.Request) {
	var est estimation.Estimation
	if err := json.NewDecoder(r.Body).Decode(&est); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if est.Name == "" || est.Provider == "" {
		s.jsonError(w, http.StatusBadRequest, "name and provider are required")
		return
	}

	if err := s.estimations.Save(r.Context(), &est); err != nil {
		s.log.Error().Err(err).Msg("failed to save estimation")
		s.jsonError(w, http.StatusInternalServerError, "failed to save estimation")
		return
	}
	s.jsonResponse(w, http.StatusCreated, est)
}

func (s *Server) handleListEstimations(w http.ResponseWriter, r *http.Request) {
	list, err := s.estimations.List(r.Context(), 0)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list estimations")
		s.jsonError(w, http.StatusInternalServerError, "failed to list estimations")
		return
	}
	if list == nil {
		list = []estimation.Estimation{}
	}
	s.jsonResponse(w, http.StatusOK, list)
}

func (s *Server) estimationFromPath(w http.ResponseWriter, r *http.Request) (*estimation.Estimation, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid estimation id")
		return nil, false
	}
	est, err := s.estimations.Get(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get estimation")
		s.jsonError(w, http.StatusInternalServerError, "failed to get estimation")
		return nil, false
	}
	if est == nil {
		s.jsonError(w, http.StatusNotFound, "estimation not found")
		return nil, false
	}
	return est, true
}

func (s *Server) handleGetEstimation(w http.ResponseWriter, r *http.Request) {
	est, ok := s.estimationFromPath(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, est)
}

func (s *Server) handleDeleteEstimation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid estimation id")
		return
	}
	deleted, err := s.estimations.Delete(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to delete estimation")
		s.jsonError(w, http.StatusInternalServerError, "failed to delete estimation")
		return
	}
	if !deleted {
		s.jsonError(w, http.StatusNotFound, "estimation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRecalculate reprices a saved estimation against current catalog
// prices. The pre-recalculation state is snapshotted as a new version
// before the totals change.
func (s *Server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	est, ok := s.estimationFromPath(w, r)
	if !ok {
		return
	}

	req := estimation.CalculationRequest{
		Provider:  est.Provider,
		SessionID: r.URL.Query().Get("session_id"),
	}
	for _, svc := range est.Services {
		cfg := estimation.ServiceConfig{
			Service:      svc.ServiceName,
			Region:       svc.Region,
			Quantity:     svc.Quantity,
			PricingModel: "on-demand",
		}
		if v, ok := svc.Parameters["resource_type"].(string); ok {
			cfg.ResourceType = v
		}
		if v, ok := svc.Parameters["pricing_model"].(string); ok {
			cfg.PricingModel = v
		}
		if v, ok := svc.Parameters["hours_per_month"].(float64); ok {
			cfg.HoursPerMonth = v
		}
		req.Services = append(req.Services, cfg)
	}

	resp, err := s.calculator.Calculate(r.Context(), req)
	if err != nil {
		s.log.Error().Err(err).Msg("recalculation failed")
		s.jsonError(w, http.StatusInternalServerError, "recalculation failed")
		return
	}

	ver, err := s.estimations.SnapshotVersion(r.Context(), est, "before recalculation")
	if err != nil {
		s.log.Error().Err(err).Msg("failed to snapshot estimation")
		s.jsonError(w, http.StatusInternalServerError, "failed to snapshot estimation")
		return
	}
	if err := s.estimations.UpdateTotals(r.Context(), est.ID, resp.TotalMonthlyCost, resp.TotalAnnualCost); err != nil {
		s.log.Error().Err(err).Msg("failed to update estimation totals")
		s.jsonError(w, http.StatusInternalServerError, "failed to update estimation totals")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"version_number": ver.VersionNumber,
		"totals":         resp,
	})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid estimation id")
		return
	}
	versions, err := s.estimations.ListVersions(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list versions")
		s.jsonError(w, http.StatusInternalServerError, "failed to list versions")
		return
	}
	if versions == nil {
		versions = []estimation.Version{}
	}
	s.jsonResponse(w, http.StatusOK, versions)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	est, ok := s.estimationFromPath(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=estimation_%s.csv", est.ID))
	if err := estimation.WriteCSV(w, est); err != nil {
		s.log.Warn().Err(err).Msg("csv export aborted mid-stream")
	}
}

func (s *Server) handleTransferCost(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	provider := q.Get("provider")
	from := q.Get("from_region")
	to := q.Get("to_region")
	transferType := q.Get("transfer_type")
	gb, err := strconv.ParseFloat(q.Get("gb"), 64)
	if provider == "" || from == "" || to == "" || transferType == "" || err != nil || gb < 0 {
		s.jsonError(w, http.StatusBadRequest, "provider, from_region, to_region, transfer_type and a non-negative gb are required")
		return
	}

	cost, err := s.catalog.TransferCost(r.Context(), provider, from, to, transferType, gb)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to compute transfer cost")
		s.jsonError(w, http.StatusInternalServerError, "failed to compute transfer cost")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"provider":      provider,
		"from_region":   from,
		"to_region":     to,
		"transfer_type": transferType,
		"gb":            gb,
		"cost":          cost,
	})
}

type createPriceRequest struct {
	Provider     string  `json:"provider"`
	ServiceName  string  `json:"service_name"`
	ResourceType string  `json:"resource_type"`
	Region       string  `json:"region"`
	PricingModel string  `json:"pricing_model"`
	HourlyPrice  float64 `json:"hourly_price"`
	UpfrontCost  float64 `json:"upfront_cost"`
	Currency     string  `json:"currency"`
}

func (s *Server) handleCreatePrice(w http.ResponseWriter, r *http.Request) {
	var req createPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Provider == "" || req.ServiceName == "" || req.ResourceType == "" ||
		req.Region == "" || req.PricingModel == "" || req.HourlyPrice <= 0 {
		s.jsonError(w, http.StatusBadRequest, "all key fields and a positive hourly_price are required")
		return
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	rec := &catalog.PriceRecord{
		Provider:     req.Provider,
		ServiceName:  req.ServiceName,
		ResourceType: req.ResourceType,
		Region:       req.Region,
		PricingModel: req.PricingModel,
		HourlyPrice:  req.HourlyPrice,
		UpfrontCost:  req.UpfrontCost,
		Currency:     req.Currency,
		Source:       "manual",
	}
	if err := s.catalog.CreatePrice(r.Context(), rec); err != nil {
		s.log.Error().Err(err).Msg("failed to create price")
		s.jsonError(w, http.StatusInternalServerError, "failed to create price")
		return
	}
	s.jsonResponse(w, http.StatusCreated, rec)
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid price id")
		return
	}
	history, err := s.catalog.ListHistory(r.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list price history")
		s.jsonError(w, http.StatusInternalServerError, "failed to list price history")
		return
	}
	if history == nil {
		history = []catalog.PriceHistory{}
	}
	s.jsonResponse(w, http.StatusOK, history)
}

type overrideRequest struct {
	SessionID         string  `json:"session_id"`
	PricingID         string  `json:"pricing_id"`
	CustomHourlyPrice float64 `json:"custom_hourly_price"`
	Reason            string  `json:"reason"`
}

func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" || req.PricingID == "" || req.CustomHourlyPrice <= 0 {
		s.jsonError(w, http.StatusBadRequest, "session_id, pricing_id and a positive custom_hourly_price are required")
		return
	}
	pricingID, err := uuid.Parse(req.PricingID)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid pricing_id")
		return
	}

	rec, err := s.catalog.GetPrice(r.Context(), pricingID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to look up price for override")
		s.jsonError(w, http.StatusInternalServerError, "failed to look up price")
		return
	}
	if rec == nil {
		s.jsonError(w, http.StatusNotFound, "price not found")
		return
	}

	if err := s.overrides.Set(r.Context(), req.SessionID, req.PricingID, req.CustomHourlyPrice, req.Reason); err != nil {
		s.log.Error().Err(err).Msg("failed to set override")
		s.jsonError(w, http.StatusInternalServerError, "failed to set override")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": fmt.Sprintf("price overridden to %.4f for this session", req.CustomHourlyPrice),
	})
}

func (s *Server) handleDeleteOverride(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	pricingID := r.URL.Query().Get("pricing_id")
	if sessionID == "" || pricingID == "" {
		s.jsonError(w, http.StatusBadRequest, "session_id and pricing_id query params are required")
		return
	}
	if err := s.overrides.Delete(r.Context(), sessionID, pricingID); err != nil {
		s.log.Error().Err(err).Msg("failed to delete override")
		s.jsonError(w, http.StatusInternalServerError, "failed to delete override")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanupSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	deleted, err := s.overrides.CleanupSession(r.Context(), sessionID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to clean up session overrides")
		s.jsonError(w, http.StatusInternalServerError, "failed to clean up session overrides")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type refreshRequest struct {
	Service      string `json:"service"`
	ResourceType string `json:"resource_type"`
	Location     string `json:"location"`
	Region       string `json:"region"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.live == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "live pricing refresh not configured")
		return
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResourceType == "" || req.Location == "" || req.Region == "" {
		s.jsonError(w, http.StatusBadRequest, "resource_type, location and region are required")
		return
	}

	var stats catalog.UpsertStats
	var err error
	switch req.Service {
	case "", "ec2":
		stats, err = s.live.RefreshEC2Price(r.Context(), req.ResourceType, req.Location, req.Region)
	case "rds":
		stats, err = s.live.RefreshRDSPrice(r.Context(), req.ResourceType, req.Location, req.Region)
	default:
		s.jsonError(w, http.StatusBadRequest, "service must be ec2 or rds")
		return
	}
	if err != nil {
		if errors.Is(err, retry.ErrCircuitOpen) {
			s.jsonError(w, http.StatusServiceUnavailable, "pricing API circuit open, try again later")
			return
		}
		s.log.Error().Err(err).Msg("live refresh failed")
		s.jsonError(w, http.StatusBadGateway, "live refresh failed")
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}
