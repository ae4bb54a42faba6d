package http

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"net/http"
	"os"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/sync/errgroup"

	"findash/internal/alert"
	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
	"findash/internal/storage"
)

const (
	statsPageLimit = 200
	alertsLimit    = 50
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type page struct {
	Title  string
	Active string
}

// headlinePreset picks a window long enough to hold two periods of a cycle.
func headlinePreset(c core.Cycle) core.Preset {
	switch c {
	case core.Daily:
		return core.LookupPreset("30d")
	case core.Monthly, core.Quarterly:
		return core.LookupPreset("1y")
	default:
		return core.LookupPreset("5y")
	}
}

// handleIndex shows the latest value of each headline series and the last
// investor flow. Upstream failures leave their card empty.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	logger := log.FromContext(ctx)

	headlineSeries := []ecos.NamedSeries{ecos.M2ByHolder, ecos.ExchangeRate, ecos.KOSPI}
	headlines := make([]*core.Headline, len(headlineSeries))
	g, gctx := errgroup.WithContext(ctx)
	for i, ns := range headlineSeries {
		g.Go(func() error {
			table, _, _, err := s.loadSeries(gctx, ns, headlinePreset(ns.Cycle))
			if err != nil {
				logger.LogError(gctx, "Headline series failed", err, log.OpFetch,
					log.NewFields().WithSeries(ns.StatCode, "", string(ns.Cycle)))
				return nil
			}
			headlines[i] = headlineOf(table)
			return nil
		})
	}
	_ = g.Wait()

	data := struct {
		page
		Headlines []core.Headline
		LastFlow  *core.InvestorFlow
		Market    string
		Presets   []core.Preset
		Series    []ecos.NamedSeries
	}{
		page:    page{Title: "대시보드", Active: "index"},
		Market:  s.deps.Market,
		Presets: core.Presets,
		Series:  ecos.Tracked,
	}
	for _, h := range headlines {
		if h != nil {
			data.Headlines = append(data.Headlines, *h)
		}
	}
	if s.deps.Flows != nil {
		flows, err := s.deps.Flows.ListInvestorFlows(ctx, s.deps.Market, s.deps.HistoryFloor, 1)
		if err != nil {
			logger.LogError(ctx, "Latest flow failed", err, log.OpFetch, nil)
		} else if len(flows) > 0 {
			data.LastFlow = &flows[0]
		}
	}
	s.render(w, r, "index.html", data)
}

// headlineOf takes the first column of the two newest rows.
func headlineOf(t *ecos.WideTable) *core.Headline {
	if t == nil || len(t.Rows) == 0 || len(t.Columns) == 0 {
		return nil
	}
	h := &core.Headline{
		Name:  t.Series.Name,
		Unit:  t.Columns[0].Name,
		Time:  t.Rows[0].Time,
		Value: t.Rows[0].Values[0],
	}
	if len(t.Rows) > 1 {
		h.Previous = t.Rows[1].Values[0]
	}
	return h
}

func (s *Server) handleFlows(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.deps.Flows == nil {
		NotFoundError("투자자 동향 저장소가 설정되지 않았습니다").Write(w)
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
		InternalServerError("투자자 동향을 불러오지 못했습니다").Write(w)
		return
	}
	s.render(w, r, "flows.html", struct {
		page
		Market  string
		Preset  core.Preset
		Presets []core.Preset
		Flows   []core.InvestorFlow
	}{page{Title: "투자자별 매매동향", Active: "flows"}, market, preset, core.Presets, flows})
}

type statsData struct {
	page
	Query   string
	All     bool
	Total   int64
	Tables  []core.StatTable
	Limited bool
}

func (s *Server) searchStats(ctx context.Context, r *http.Request) (statsData, error) {
	q := r.URL.Query()
	data := statsData{
		page:  page{Title: "통계표 검색", Active: "stats"},
		Query: ParseSearch(q),
		All:   ParseBool(q, "all"),
	}
	total, err := s.deps.Stats.CountStatTables(ctx)
	if err != nil {
		return data, err
	}
	data.Total = total
	tables, err := s.deps.Stats.SearchStatTables(ctx, data.Query, !data.All, statsPageLimit+1)
	if err != nil {
		return data, err
	}
	if len(tables) > statsPageLimit {
		tables, data.Limited = tables[:statsPageLimit], true
	}
	data.Tables = tables
	return data, nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.deps.Stats == nil {
		NotFoundError("통계표 저장소가 설정되지 않았습니다").Write(w)
		return
	}
	data, err := s.searchStats(r.Context(), r)
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Stat table search failed", err, log.OpFetch, nil)
		InternalServerError("통계표를 검색하지 못했습니다").Write(w)
		return
	}
	s.render(w, r, "stats.html", data)
}

// handleStatsSearch renders only the result table for htmx.
func (s *Server) handleStatsSearch(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.deps.Stats == nil {
		NotFoundError("통계표 저장소가 설정되지 않았습니다").Write(w)
		return
	}
	data, err := s.searchStats(r.Context(), r)
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Stat table search failed", err, log.OpFetch, nil)
		InternalServerError("통계표를 검색하지 못했습니다").Write(w)
		return
	}
	var buf bytes.Buffer
	if s.templates == nil {
		InternalServerError("templates not loaded").Write(w)
		return
	}
	if err := s.templates.ExecuteTemplate(&buf, "stats_results", data); err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Template execution failed", err, log.OpRender, nil)
		InternalServerError("검색 결과를 표시할 수 없습니다").Write(w)
		return
	}
	NewResponse().TriggerSearchResults(len(data.Tables)).BodyHTML(buf.String()).Write(w)
}

func (s *Server) handleStatItems(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	if s.deps.Stats == nil {
		NotFoundError("통계표 저장소가 설정되지 않았습니다").Write(w)
		return
	}
	code := sanitizeInput(r.URL.Query().Get("stat"))
	if code == "" {
		BadRequestError("stat 파라미터가 필요합니다").Write(w)
		return
	}
	ctx := r.Context()
	table, err := s.deps.Stats.GetStatTable(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		NotFoundError("통계표를 찾을 수 없습니다: " + code).Write(w)
		return
	}
	if err != nil {
		log.FromContext(ctx).LogError(ctx, "Get stat table failed", err, log.OpFetch, log.LogFields{log.FieldStatCode: code})
		InternalServerError("통계표를 불러오지 못했습니다").Write(w)
		return
	}
	items, err := s.deps.Stats.ListStatItems(ctx, table.ID)
	if err != nil {
		log.FromContext(ctx).LogError(ctx, "List stat items failed", err, log.OpFetch, log.LogFields{log.FieldStatCode: code})
		InternalServerError("항목을 불러오지 못했습니다").Write(w)
		return
	}
	s.render(w, r, "stat_items.html", struct {
		page
		Table core.StatTable
		Items []core.StatItem
	}{page{Title: table.CleanName(), Active: "stats"}, table, items})
}

// handleAlerts lists recorded alerts next to the current watchlist.
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	ctx := r.Context()
	data := struct {
		page
		Events       []core.Alert
		Watchlist    alert.Watchlist
		WatchlistErr string
	}{page: page{Title: "가격 알림", Active: "alerts"}}

	if s.deps.Alerts != nil {
		events, err := s.deps.Alerts.ListAlertEvents(ctx, ParseLimit(r.URL.Query(), alertsLimit, maxLimit))
		if err != nil {
			log.FromContext(ctx).LogError(ctx, "List alert events failed", err, log.OpFetch, nil)
			InternalServerError("알림 기록을 불러오지 못했습니다").Write(w)
			return
		}
		data.Events = events
	}
	if s.deps.WatchlistPath != "" {
		wl, err := alert.LoadWatchlist(s.deps.WatchlistPath)
		if err != nil {
			data.WatchlistErr = err.Error()
		}
		data.Watchlist = wl
	}
	s.render(w, r, "alerts.html", data)
}

// handlePrinciples renders the investment principles markdown document.
func (s *Server) handlePrinciples(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	src, err := os.ReadFile(s.deps.PrinciplesPath)
	if errors.Is(err, os.ErrNotExist) || s.deps.PrinciplesPath == "" {
		NotFoundError("투자 원칙 문서가 없습니다").Write(w)
		return
	}
	if err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Read principles failed", err, log.OpRender, nil)
		InternalServerError("문서를 읽지 못했습니다").Write(w)
		return
	}
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Render markdown failed", err, log.OpRender, nil)
		InternalServerError("문서를 표시할 수 없습니다").Write(w)
		return
	}
	s.render(w, r, "principles.html", struct {
		page
		Body template.HTML
	}{page{Title: "투자 원칙", Active: "principles"}, template.HTML(buf.String())})
}
