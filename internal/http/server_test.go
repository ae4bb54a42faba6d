package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
	"findash/internal/storage"
)

type fakeStats struct {
	tables []core.StatTable
	items  []core.StatItem
}

func (f fakeStats) SearchStatTables(ctx context.Context, q string, onlySearchable bool, limit int) ([]core.StatTable, error) {
	var out []core.StatTable
	for _, t := range f.tables {
		if onlySearchable && !t.Searchable {
			continue
		}
		if q != "" && !strings.Contains(t.StatName, q) && !strings.Contains(t.StatCode, q) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f fakeStats) CountStatTables(ctx context.Context) (int64, error) {
	return int64(len(f.tables)), nil
}

func (f fakeStats) GetStatTable(ctx context.Context, code string) (core.StatTable, error) {
	for _, t := range f.tables {
		if t.StatCode == code {
			return t, nil
		}
	}
	return core.StatTable{}, fmt.Errorf("stat table %s: %w", code, storage.ErrNotFound)
}

func (f fakeStats) ListStatItems(ctx context.Context, tableID int64) ([]core.StatItem, error) {
	return f.items, nil
}

type fakeFlows []core.InvestorFlow

func (f fakeFlows) ListInvestorFlows(ctx context.Context, market string, since time.Time, limit int) ([]core.InvestorFlow, error) {
	out := []core.InvestorFlow(f)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeAlerts []core.Alert

func (f fakeAlerts) ListAlertEvents(ctx context.Context, limit int) ([]core.Alert, error) {
	return f, nil
}

type fakeSeries struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSeries) FetchWide(ctx context.Context, s ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	t := &ecos.WideTable{Series: s, Columns: s.Items}
	for i, key := range []string{"20240103", "20240102"} {
		start, _ := core.ParseDateKey(key)
		row := ecos.WideRow{Time: key, PeriodStart: start, Values: make([]float64, len(s.Items))}
		for j := range row.Values {
			row.Values[j] = float64(1000 - i*10 + j)
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// fakeStored holds one stored table per series key.
type fakeStored struct {
	tables map[string]*ecos.WideTable
	err    error
}

func (f fakeStored) ReadWide(ctx context.Context, s ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, error) {
	if f.err != nil {
		return nil, f.err
	}
	if t, ok := f.tables[s.Key]; ok {
		return t, nil
	}
	return &ecos.WideTable{Series: s, Columns: s.Items}, nil
}

type fakeDB struct{ err error }

func (f fakeDB) Ping(ctx context.Context) error { return f.err }

func testDeps() Deps {
	day, _ := core.ParseDateKey("20240103")
	return Deps{
		Stats: fakeStats{
			tables: []core.StatTable{
				{ID: 1, StatCode: "101Y006", StatName: "1.1.3.2.1. M2 경제주체별 보유현황", Cycle: core.Monthly, Searchable: true, OrgName: "한국은행"},
				{ID: 2, StatCode: "100Y001", StatName: "1. 통화 및 유동성", Searchable: false},
			},
			items: []core.StatItem{{ID: 1, TableID: 1, ItemCode: "BBHS00", ItemName: "M2(평잔, 계절조정계열)", Cycle: core.Monthly}},
		},
		Flows: fakeFlows{{
			Market:              "KSP",
			Date:                day,
			IndexClose:          decimal.RequireFromString("2607.31"),
			ChangeRate:          decimal.RequireFromString("-2.34"),
			ForeignNetAmount:    -512345,
			IndividualNetAmount: 498000,
		}},
		Alerts: fakeAlerts{{ID: "a1", Code: "005930.KS", Name: "삼성전자", Price: 71300, Reasons: []string{"📉 최고가 하락"}, CreatedAt: day}},
		Series: &fakeSeries{},
		DB:     fakeDB{},
		Logger: log.New(log.Config{Output: io.Discard}),
	}
}

func newTestServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	srv := NewServer(":0", deps)
	srv.now = func() time.Time { return time.Date(2024, 1, 3, 15, 0, 0, 0, core.KST) }
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestPages(t *testing.T) {
	srv := newTestServer(t, testDeps())

	tests := []struct {
		path string
		want string
	}{
		{"/", "M2 경제주체별 보유현황"},
		{"/flows", "2,607.31"},
		{"/flows?market=KSQ&period=1y", "최근 1년"},
		{"/stats", "M2 경제주체별 보유현황"},
		{"/stats/items?stat=101Y006", "BBHS00"},
		{"/alerts", "삼성전자"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := get(t, srv, tt.path)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body missing %q", tt.want)
			}
		})
	}
}

func TestIndexWithoutUpstream(t *testing.T) {
	deps := testDeps()
	deps.Series = &fakeSeries{err: errors.New("ecos down")}
	srv := newTestServer(t, deps)

	rr := get(t, srv, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "시계열을 불러오지 못했습니다") {
		t.Error("expected empty headline message")
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, testDeps())
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := get(t, srv, path); rr.Code != http.StatusOK {
			t.Fatalf("%s status = %d", path, rr.Code)
		}
	}

	deps := testDeps()
	deps.DB = fakeDB{err: errors.New("disk gone")}
	down := newTestServer(t, deps)
	rr := get(t, down, "/readyz")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status = %d, want 503", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "not_ready") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	srv := newTestServer(t, testDeps())
	get(t, srv, "/healthz")
	rr := get(t, srv, "/metrics")
	body := rr.Body.String()
	for _, name := range []string{"http_requests_total", "series_cache_entries", "rate_limit_hits_total", "suspicious_requests_total"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics missing %s", name)
		}
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t, testDeps())
	rr := get(t, srv, "/healthz")
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if rr.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing CSP")
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, testDeps())
	paths := []string{"/", "/flows", "/stats", "/alerts", "/api/series", "/healthz", "/readyz", "/metrics"}
	for _, path := range paths {
		for _, method := range []string{http.MethodPost, http.MethodDelete} {
			rr := httptest.NewRecorder()
			srv.Handler.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s = %d, want 405", method, path, rr.Code)
			}
			if got := rr.Header().Get("Allow"); got != "GET, HEAD" {
				t.Errorf("%s %s Allow = %q", method, path, got)
			}
		}
	}
}

func TestStatItemsErrors(t *testing.T) {
	srv := newTestServer(t, testDeps())
	if rr := get(t, srv, "/stats/items?stat=999X999"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown stat = %d, want 404", rr.Code)
	}
	if rr := get(t, srv, "/stats/items"); rr.Code != http.StatusBadRequest {
		t.Errorf("missing stat = %d, want 400", rr.Code)
	}
}

func TestStatsSearchPartial(t *testing.T) {
	srv := newTestServer(t, testDeps())

	rr := get(t, srv, "/stats/search?q=M2")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "<nav") {
		t.Error("partial should not include the layout")
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"count":1`) {
		t.Errorf("HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}

	rr = get(t, srv, "/stats/search?all=1")
	if !strings.Contains(rr.Header().Get("HX-Trigger"), `"count":2`) {
		t.Errorf("all tables HX-Trigger = %q", rr.Header().Get("HX-Trigger"))
	}
}

func TestAPISeries(t *testing.T) {
	deps := testDeps()
	series := &fakeSeries{}
	deps.Series = series
	srv := newTestServer(t, deps)

	var body seriesResponse
	for range 2 {
		rr := get(t, srv, "/api/series?series=usdkrw&period=30d")
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	if n := series.calls.Load(); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
	if body.Series != "usdkrw" || body.Period != "30d" || body.End != "20240103" || body.Start != "20231204" {
		t.Errorf("unexpected header fields: %+v", body)
	}
	if len(body.Columns) != 1 || len(body.Columns[0].Points) != 2 {
		t.Fatalf("columns = %+v", body.Columns)
	}
	if body.Columns[0].Points[0].Time != "20240102" {
		t.Errorf("points not oldest first: %+v", body.Columns[0].Points)
	}
}

func TestAPISeriesDefaultsAndErrors(t *testing.T) {
	srv := newTestServer(t, testDeps())

	rr := get(t, srv, "/api/series")
	var body seriesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Series != "m2" || body.Period != "14d" || len(body.Columns) != len(ecos.M2ByHolder.Items) {
		t.Errorf("defaults = %+v", body)
	}

	if rr := get(t, srv, "/api/series?series=nope"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown series = %d, want 404", rr.Code)
	}

	deps := testDeps()
	deps.Series = &fakeSeries{err: errors.New("timeout")}
	down := newTestServer(t, deps)
	if rr := get(t, down, "/api/series?series=kospi"); rr.Code != http.StatusBadGateway {
		t.Errorf("upstream failure = %d, want 502", rr.Code)
	}
}

func TestAPISeriesPrefersStored(t *testing.T) {
	day, _ := core.ParseDateKey("20231229")
	stored := fakeStored{tables: map[string]*ecos.WideTable{
		"kospi": {
			Series:  ecos.KOSPI,
			Columns: ecos.KOSPI.Items,
			Rows:    []ecos.WideRow{{Time: "20231229", PeriodStart: day, Values: []float64{2655.28}}},
		},
	}}

	tests := []struct {
		name      string
		stored    fakeStored
		series    string
		wantCode  int
		wantCalls int32
		wantFirst string
	}{
		{"stored rows served while ECOS is down", stored, "kospi", http.StatusOK, 0, "20231229"},
		{"empty store falls back to ECOS", stored, "usdkrw", http.StatusBadGateway, 1, ""},
		{"store error falls back to ECOS", fakeStored{err: errors.New("disk I/O error")}, "kospi", http.StatusBadGateway, 1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := testDeps()
			live := &fakeSeries{err: errors.New("ecos down")}
			deps.Series = live
			deps.Stored = tt.stored
			srv := newTestServer(t, deps)

			rr := get(t, srv, "/api/series?series="+tt.series+"&period=30d")
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body = %s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if n := live.calls.Load(); n != tt.wantCalls {
				t.Errorf("ECOS calls = %d, want %d", n, tt.wantCalls)
			}
			if tt.wantFirst == "" {
				return
			}
			var body seriesResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Columns) != 1 || len(body.Columns[0].Points) != 1 || body.Columns[0].Points[0].Time != tt.wantFirst {
				t.Errorf("columns = %+v", body.Columns)
			}
		})
	}
}

func TestIndexHeadlinesFromStore(t *testing.T) {
	day, _ := core.ParseDateKey("20231229")
	prev, _ := core.ParseDateKey("20231228")
	deps := testDeps()
	deps.Series = &fakeSeries{err: errors.New("ecos down")}
	deps.Stored = fakeStored{tables: map[string]*ecos.WideTable{
		"kospi": {
			Series:  ecos.KOSPI,
			Columns: ecos.KOSPI.Items,
			Rows: []ecos.WideRow{
				{Time: "20231229", PeriodStart: day, Values: []float64{2655.28}},
				{Time: "20231228", PeriodStart: prev, Values: []float64{2613.5}},
			},
		},
	}}
	srv := newTestServer(t, deps)

	rr := get(t, srv, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "KOSPI지수") {
		t.Errorf("index missing stored KOSPI headline")
	}
	if strings.Contains(body, "시계열을 불러오지 못했습니다") {
		t.Errorf("index reported no headlines")
	}
}

func TestAPIFlows(t *testing.T) {
	srv := newTestServer(t, testDeps())
	rr := get(t, srv, "/api/flows?market=KSP&period=7d")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body struct {
		Market string     `json:"market"`
		Flows  []flowJSON `json:"flows"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Market != "KSP" || len(body.Flows) != 1 {
		t.Fatalf("body = %+v", body)
	}
	if f := body.Flows[0]; f.Date != "20240103" || f.ForeignNetAmount != -512345 || !f.IndexClose.Equal(decimal.RequireFromString("2607.31")) {
		t.Errorf("flow = %+v", f)
	}
}

func TestPrinciples(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "principles.md")
	if err := os.WriteFile(path, []byte("# 원칙\n\n- 분산 투자\n- 손절 기준 지키기\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	deps := testDeps()
	deps.PrinciplesPath = path
	srv := newTestServer(t, deps)

	rr := get(t, srv, "/principles")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<h1>원칙</h1>") || !strings.Contains(rr.Body.String(), "<li>분산 투자</li>") {
		t.Errorf("markdown not rendered: %s", rr.Body.String())
	}

	deps.PrinciplesPath = filepath.Join(dir, "missing.md")
	missing := newTestServer(t, deps)
	if rr := get(t, missing, "/principles"); rr.Code != http.StatusNotFound {
		t.Errorf("missing doc = %d, want 404", rr.Code)
	}
}

func TestAlertsWatchlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.json")
	wl := `{"interval_min": 5, "stocks": [{"code": "069500.KS", "name": "KODEX 200", "strategies": ["max_drop", "atr_trailing"]}]}`
	if err := os.WriteFile(path, []byte(wl), 0o644); err != nil {
		t.Fatal(err)
	}
	deps := testDeps()
	deps.WatchlistPath = path
	srv := newTestServer(t, deps)

	body := get(t, srv, "/alerts").Body.String()
	for _, want := range []string{"KODEX 200", "069500", "max_drop, atr_trailing", "5분", "90일"} {
		if !strings.Contains(body, want) {
			t.Errorf("alerts page missing %q", want)
		}
	}

	deps.WatchlistPath = filepath.Join(t.TempDir(), "none.json")
	if body := get(t, newTestServer(t, deps), "/alerts").Body.String(); !strings.Contains(body, "watchlist not found") {
		t.Error("expected watchlist error on page")
	}
}

func TestStaticAssets(t *testing.T) {
	srv := newTestServer(t, testDeps())
	rr := get(t, srv, "/static/app.css")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}
}
