package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/starlink-awaken/omo-quota/pkg/model"
	"github.com/starlink-awaken/omo-quota/pkg/quota"
	"github.com/starlink-awaken/omo-quota/pkg/storage"
	"github.com/starlink-awaken/omo-quota/pkg/strategy"
	"github.com/starlink-awaken/omo-quota/pkg/tracker"
)

// Server exposes a read-only JSON view of quota state for dashboards.
type Server struct {
	tracker *tracker.Tracker
	catalog *strategy.Catalog
	history storage.Storage
	mux     *http.ServeMux
	logger  *slog.Logger
	now     func() time.Time
}

// ProviderView is the JSON shape of one provider.
type ProviderView struct {
	ID             string                `json:"id"`
	Kind           string                `json:"kind"`
	RemainingPct   *float64              `json:"remaining_pct"`
	Expired        bool                  `json:"expired,omitempty"`
	Level          string                `json:"level,omitempty"`
	TimeUntilReset string                `json:"time_until_reset,omitempty"`
	Status         *model.ProviderStatus `json:"status,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// ProvidersResponse is returned by GET /api/v1/providers.
type ProvidersResponse struct {
	CurrentStrategy string         `json:"current_strategy"`
	Providers       []ProviderView `json:"providers"`
	Diagnostic      string         `json:"diagnostic,omitempty"`
}

// StrategyResponse is returned by GET /api/v1/strategy.
type StrategyResponse struct {
	Current   string           `json:"current"`
	Available []strategy.Entry `json:"available"`
}

// HistoryResponse is returned by GET /api/v1/history.
type HistoryResponse struct {
	Period   model.Period         `json:"period"`
	Switches []model.SwitchRecord `json:"switches"`
	Alerts   []model.AlertRecord  `json:"alerts"`
}

// NewServer creates an API server. history may be nil, in which case the
// history endpoint answers 404.
func NewServer(t *tracker.Tracker, catalog *strategy.Catalog, history storage.Storage, logger *slog.Logger) *Server {
	s := &Server{
		tracker: t,
		catalog: catalog,
		history: history,
		mux:     http.NewServeMux(),
		logger:  logger,
		now:     time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/providers", s.handleProviders)
	s.mux.HandleFunc("GET /api/v1/strategy", s.handleStrategy)
	s.mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	report := s.tracker.Report()

	resp := ProvidersResponse{
		CurrentStrategy: report.CurrentStrategy,
		Providers:       make([]ProviderView, 0, len(report.Providers)),
	}
	if report.Diagnostic != nil {
		resp.Diagnostic = report.Diagnostic.Error()
	}
	for _, pr := range report.Providers {
		resp.Providers = append(resp.Providers, providerView(pr))
	}
	writeJSON(w, resp)
}

func providerView(pr tracker.ProviderReport) ProviderView {
	v := ProviderView{ID: pr.ID, Kind: pr.Kind.String()}
	if pr.Err != nil {
		v.Error = pr.Err.Error()
		return v
	}
	raw := quota.Apply(pr.Status)
	v.Status = &raw
	v.TimeUntilReset = pr.TimeUntilReset
	if pr.Estimate.Valid {
		pct := pr.Estimate.Percent
		v.RemainingPct = &pct
		v.Expired = pr.Estimate.Expired
		v.Level = pr.Level.String()
	}
	return v
}

func (s *Server) handleStrategy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, StrategyResponse{
		Current:   s.tracker.CurrentStrategy(),
		Available: s.catalog.Entries(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history storage disabled", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	period := model.Period(r.URL.Query().Get("period"))
	switch period {
	case "":
		period = model.PeriodDaily
	case model.PeriodDaily, model.PeriodWeekly, model.PeriodMonthly:
	default:
		http.Error(w, "period must be daily, weekly or monthly", http.StatusBadRequest)
		return
	}

	start, end := model.PeriodBounds(period, s.now())
	filter := model.HistoryFilter{
		Provider:  r.URL.Query().Get("provider"),
		Strategy:  r.URL.Query().Get("strategy"),
		StartTime: start,
		EndTime:   end,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	switches, err := s.history.ListSwitches(ctx, filter)
	if err != nil {
		s.logger.Error("query switch history", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	alerts, err := s.history.ListAlerts(ctx, filter)
	if err != nil {
		s.logger.Error("query alert history", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, HistoryResponse{Period: period, Switches: switches, Alerts: alerts})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
