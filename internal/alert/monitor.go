package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"findash/internal/core"
	"findash/internal/log"
)

// historyPad is added to a watch item's window when fetching prices so the
// ATR has enough bars once weekends and holidays are skipped.
const historyPad = 30

// PriceSource returns daily candles, oldest first.
type PriceSource interface {
	DailyPrices(ctx context.Context, code string, from, to time.Time) ([]core.PriceBar, error)
}

// EventStore records triggered alerts.
type EventStore interface {
	InsertAlertEvent(ctx context.Context, a core.Alert) (bool, error)
}

// Notifier delivers a triggered alert.
type Notifier interface {
	Notify(ctx context.Context, a core.Alert) error
}

// Monitor polls the watchlist and checks every stock once its interval has
// elapsed.
type Monitor struct {
	prices   PriceSource
	events   EventStore
	notifier Notifier
	path     string
	poll     time.Duration
	logger   *log.Logger

	now       func() time.Time
	newID     func() string
	lastCheck time.Time
}

type MonitorOption func(*Monitor)

func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) { m.now = now }
}

func WithIDs(newID func() string) MonitorOption {
	return func(m *Monitor) { m.newID = newID }
}

func WithLogger(l *log.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

func NewMonitor(prices PriceSource, events EventStore, notifier Notifier, watchlistPath string, poll time.Duration, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prices:   prices,
		events:   events,
		notifier: notifier,
		path:     watchlistPath,
		poll:     poll,
		logger:   log.New(log.Config{Component: log.ComponentAlert}),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Alert monitor started", "watchlist", m.path, "poll", m.poll.String())
	ticker := time.NewTicker(m.poll)
	defer ticker.Stop()
	for {
		m.Poll(ctx)
		select {
		case <-ctx.Done():
			m.logger.InfoContext(ctx, "Alert monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Poll reloads the watchlist and runs a check cycle if the watchlist's
// interval has passed since the last one.
func (m *Monitor) Poll(ctx context.Context) {
	wl, err := LoadWatchlist(m.path)
	if err != nil {
		m.logger.LogError(ctx, "Failed to load watchlist", err, log.OpEvaluate, nil)
		return
	}
	now := m.now()
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < wl.Interval() {
		return
	}
	m.lastCheck = now
	alerts := m.CheckAll(ctx, wl.Stocks)
	m.logger.InfoContext(ctx, "Watchlist checked", "stocks", len(wl.Stocks), "alerts", len(alerts))
}

// CheckAll checks every item and returns the alerts that fired. Errors are
// logged per item and do not stop the cycle.
func (m *Monitor) CheckAll(ctx context.Context, items []core.WatchItem) []core.Alert {
	var fired []core.Alert
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		a, err := m.Check(ctx, item)
		if err != nil {
			m.logger.LogError(ctx, "Watch item check failed", err, log.OpEvaluate, log.LogFields{log.FieldStockCode: item.Code})
			continue
		}
		if a != nil {
			fired = append(fired, *a)
		}
	}
	return fired
}

// Check evaluates one item. A fired alert is recorded before it is sent; a
// failed delivery is logged and the alert is still returned.
func (m *Monitor) Check(ctx context.Context, item core.WatchItem) (*core.Alert, error) {
	item = item.WithDefaults()
	now := m.now()
	from := now.AddDate(0, 0, -(item.Days + historyPad))
	bars, err := m.prices.DailyPrices(ctx, item.BaseCode(), from, now)
	if err != nil {
		return nil, fmt.Errorf("prices for %s: %w", item.Code, err)
	}
	if len(bars) == 0 {
		m.logger.DebugContext(ctx, "No price data", log.FieldStockCode, item.Code)
		return nil, nil
	}

	reasons := Evaluate(item, bars)
	if len(reasons) == 0 {
		return nil, nil
	}
	a := core.Alert{
		ID:        m.newID(),
		Code:      item.Code,
		Name:      item.Name,
		Price:     bars[len(bars)-1].Close,
		Reasons:   reasons,
		CreatedAt: now,
	}
	if a.Name == "" {
		a.Name = item.BaseCode()
	}
	if _, err := m.events.InsertAlertEvent(ctx, a); err != nil {
		return nil, fmt.Errorf("record alert for %s: %w", item.Code, err)
	}
	m.logger.InfoContext(ctx, "Alert fired", log.FieldEventID, a.ID, log.FieldStockCode, a.Code, "reasons", len(reasons))
	if m.notifier != nil {
		if err := m.notifier.Notify(ctx, a); err != nil {
			m.logger.LogError(ctx, "Alert delivery failed", err, log.OpNotify, log.LogFields{log.FieldEventID: a.ID})
		}
	}
	return &a, nil
}
