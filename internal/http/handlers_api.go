package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
)

type seriesResponse struct {
	Series  string        `json:"series"`
	Name    string        `json:"name"`
	Cycle   core.Cycle    `json:"cycle"`
	Period  string        `json:"period"`
	Start   string        `json:"start"`
	End     string        `json:"end"`
	Columns []core.Series `json:"columns"`
}

// handleAPISeries returns every column of a named series over a preset
// window, oldest point first.
func (s *Server) handleAPISeries(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	q := r.URL.Query()
	key := q.Get("series")
	if key == "" {
		key = ecos.M2ByHolder.Key
	}
	ns, ok := ecos.LookupSeries(key)
	if !ok {
		JSONError(http.StatusNotFound, fmt.Sprintf("unknown series %q", key)).Write(w)
		return
	}
	preset := ParsePreset(q, core.DefaultPresetKey)

	table, start, end, err := s.loadSeries(r.Context(), ns, preset)
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Series fetch failed", err, log.OpFetch,
			log.NewFields().WithSeries(ns.StatCode, "", string(ns.Cycle)).WithRange(core.DateKey(start), core.DateKey(end)))
		JSONError(http.StatusBadGateway, "series source unavailable").Write(w)
		return
	}
	resp := seriesResponse{
		Series:  ns.Key,
		Name:    ns.Name,
		Cycle:   ns.Cycle,
		Period:  preset.Key,
		Start:   core.DateKey(start),
		End:     core.DateKey(end),
		Columns: make([]core.Series, len(table.Columns)),
	}
	for i := range table.Columns {
		resp.Columns[i] = table.Column(i)
	}
	NewResponse().Header("Cache-Control", "private, max-age=300").JSON(resp).Write(w)
}

type flowJSON struct {
	Date              string          `json:"date"`
	IndexClose        decimal.Decimal `json:"index_close"`
	ChangeRate        decimal.Decimal `json:"change_rate"`
	ForeignNetAmount  int64           `json:"foreign_net_amount"`
	PersonalNetAmount int64           `json:"individual_net_amount"`
	InstNetAmount     int64           `json:"institution_net_amount"`
	PensionNetAmount  int64           `json:"pension_net_amount"`
}

func (s *Server) handleAPIFlows(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.deps.Flows == nil {
		JSONError(http.StatusNotFound, "flows not configured").Write(w)
		return
	}
	q := r.URL.Query()
	market := ParseMarket(q, s.deps.Market)
	preset := ParsePreset(q, "90d")
	start, _ := core.PeriodRange(preset.Key, s.now(), s.deps.HistoryFloor)

	flows, err := s.deps.Flows.ListInvestorFlows(r.Context(), market, start, 0)
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "List flows failed", err, log.OpFetch,
			log.LogFields{log.FieldMarket: market})
		JSONError(http.StatusInternalServerError, "flows unavailable").Write(w)
		return
	}
	out := make([]flowJSON, len(flows))
	for i, f := range flows {
		out[i] = flowJSON{
			Date:              f.DateKey(),
			IndexClose:        f.IndexClose,
			ChangeRate:        f.ChangeRate,
			ForeignNetAmount:  f.ForeignNetAmount,
			PersonalNetAmount: f.IndividualNetAmount,
			InstNetAmount:     f.InstitutionNetAmount,
			PensionNetAmount:  f.PensionNetAmount,
		}
	}
	NewResponse().JSON(map[string]any{"market": market, "period": preset.Key, "flows": out}).Write(w)
}

// handleHealth is a liveness check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	NewResponse().JSON(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks templates and the database.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{}
	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, code = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}
	switch {
	case s.deps.DB == nil:
		checks["database"] = "not_configured"
	default:
		if err := s.deps.DB.Ping(ctx); err != nil {
			checks["database"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	checks["cache"] = map[string]any{"series_entries": s.seriesCache.Size()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.limiter.ActiveClients()}

	NewResponse().Status(code).JSON(map[string]any{
		"status":    status,
		"timestamp": s.now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics writes counters in Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	tm := s.tracer.Metrics()
	metrics := []struct {
		name, help, kind string
		value            any
	}{
		{"http_requests_total", "Total number of HTTP requests", "counter", tm.TotalRequests},
		{"http_server_errors_total", "Responses with a 5xx status", "counter", tm.ServerErrors},
		{"series_cache_entries", "Cached series windows", "gauge", s.seriesCache.Size()},
		{"rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", s.limiter.Hits()},
		{"active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", s.limiter.ActiveClients()},
		{"suspicious_requests_total", "Requests flagged as suspicious", "counter", s.detector.Metrics().SuspiciousRequests},
		{"uptime_seconds", "Application uptime in seconds", "gauge", int64(time.Since(s.started).Seconds())},
	}
	for _, m := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", m.name, m.help, m.name, m.kind, m.name, m.value)
	}
}
