package http

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"findash/internal/cache"
	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
	"findash/internal/middleware/ratelimit"
	"findash/internal/middleware/security"
	"findash/internal/middleware/trace"
	appweb "findash/web"
)

// StatReader lists ECOS metadata stored locally.
type StatReader interface {
	SearchStatTables(ctx context.Context, query string, onlySearchable bool, limit int) ([]core.StatTable, error)
	CountStatTables(ctx context.Context) (int64, error)
	GetStatTable(ctx context.Context, statCode string) (core.StatTable, error)
	ListStatItems(ctx context.Context, tableID int64) ([]core.StatItem, error)
}

// FlowReader lists stored investor flows, newest first.
type FlowReader interface {
	ListInvestorFlows(ctx context.Context, market string, since time.Time, limit int) ([]core.InvestorFlow, error)
}

// AlertReader lists recorded alerts, newest first.
type AlertReader interface {
	ListAlertEvents(ctx context.Context, limit int) ([]core.Alert, error)
}

// SeriesFetcher downloads a named series for charting.
type SeriesFetcher interface {
	FetchWide(ctx context.Context, s ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, error)
}

// StoredSeries reads named series from the local store. A table without rows
// means nothing is stored for the window.
type StoredSeries interface {
	ReadWide(ctx context.Context, s ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the server's collaborators. Nil readers disable their pages.
type Deps struct {
	Stats  StatReader
	Flows  FlowReader
	Alerts AlertReader
	Stored StoredSeries
	Series SeriesFetcher
	DB     Pinger

	Market         string
	WatchlistPath  string
	PrinciplesPath string
	HistoryFloor   time.Time
	Logger         *log.Logger
}

const (
	seriesCacheSize = 100
	seriesCacheTTL  = 10 * time.Minute
	cacheSweepEvery = 10 * time.Minute
	upstreamTimeout = 15 * time.Second
)

type Server struct {
	http.Server
	deps      Deps
	logger    *log.Logger
	templates *template.Template
	now       func() time.Time
	started   time.Time

	seriesCache *cache.LRUCache[*ecos.WideTable]
	caches      *cache.Manager
	limiter     *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.Config{Component: log.ComponentHTTP})
	}
	if deps.Market == "" {
		deps.Market = "KSP"
	}
	s := &Server{
		deps:        deps,
		logger:      deps.Logger.WithComponent(log.ComponentHTTP),
		now:         time.Now,
		started:     time.Now(),
		seriesCache: cache.NewLRUCache[*ecos.WideTable](seriesCacheSize, seriesCacheTTL),
		caches:      cache.NewManager(),
		limiter:     ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:    security.NewDetector(),
	}
	s.tracer = trace.NewMiddleware(s.detector.ClientIP)
	s.caches.Register(s.seriesCache)
	s.caches.StartCleanup(context.Background(), cacheSweepEvery)

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err, log.FieldComponent, log.ComponentTemplate)
	}
	s.templates = t

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		mux.Handle("/static/", security.StaticAssets(3600)(http.StripPrefix("/static/", http.FileServer(http.FS(sub)))))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/flows", s.handleFlows)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/search", s.handleStatsSearch)
	mux.HandleFunc("/stats/items", s.handleStatItems)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/principles", s.handlePrinciples)

	api := http.NewServeMux()
	api.HandleFunc("/api/series", s.handleAPISeries)
	api.HandleFunc("/api/flows", s.handleAPIFlows)
	mux.Handle("/api/", s.limiter.Middleware(s.detector.ClientIP)(api))

	var h http.Handler = mux
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = s.detector.Middleware(h)
	h = s.tracer.Handler(deps.Logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// render executes a page template into a buffer first so a failing template
// does not leave a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", log.FieldPath, r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.FromContext(r.Context()).LogError(r.Context(), "Template execution failed", err, log.OpRender,
			log.LogFields{"template": name})
		InternalServerError("페이지를 표시할 수 없습니다").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// loadSeries returns s over the preset window, memoized per day. Stored
// observations are served first; ECOS is asked only when none are stored.
func (s *Server) loadSeries(ctx context.Context, ns ecos.NamedSeries, preset core.Preset) (*ecos.WideTable, time.Time, time.Time, error) {
	start, end := core.PeriodRange(preset.Key, s.now(), s.deps.HistoryFloor)
	if s.deps.Stored == nil && s.deps.Series == nil {
		return nil, start, end, fmt.Errorf("series source not configured")
	}
	key := ns.Key + "|" + preset.Key + "|" + core.DateKey(end)
	table, err := s.seriesCache.GetOrLoad(ctx, key, func(ctx context.Context) (*ecos.WideTable, error) {
		if s.deps.Stored != nil {
			table, err := s.deps.Stored.ReadWide(ctx, ns, start, end)
			if err != nil {
				log.FromContext(ctx).LogError(ctx, "Stored series read failed", err, log.OpFetch,
					log.NewFields().WithSeries(ns.StatCode, "", string(ns.Cycle)))
			} else if len(table.Rows) > 0 {
				return table, nil
			}
		}
		if s.deps.Series == nil {
			return nil, fmt.Errorf("%s: nothing stored and no series source", ns.Key)
		}
		ctx, cancel := context.WithTimeout(ctx, upstreamTimeout)
		defer cancel()
		return s.deps.Series.FetchWide(ctx, ns, start, end)
	})
	return table, start, end, err
}
