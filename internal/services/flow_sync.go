package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"findash/internal/core"
	"findash/internal/kis"
)

// FlowSource pages investor flows backwards in time.
type FlowSource interface {
	InvestorDailyByMarket(ctx context.Context, q kis.InvestorQuery) ([]core.InvestorFlow, error)
}

type FlowStore interface {
	LatestFlowDate(ctx context.Context, market string) (string, error)
	UpsertInvestorFlows(ctx context.Context, market string, flows []core.InvestorFlow) (int, error)
	ListInvestorFlows(ctx context.Context, market string, since time.Time, limit int) ([]core.InvestorFlow, error)
}

// FlowSync brings the stored daily investor flows of one market up to date.
type FlowSync struct {
	source FlowSource
	store  FlowStore
	market string
}

func NewFlowSync(source FlowSource, store FlowStore, market string) *FlowSync {
	return &FlowSync{source: source, store: store, market: market}
}

// Sync downloads the flows newer than the latest stored date and returns
// every stored row, newest first.
func (s *FlowSync) Sync(ctx context.Context, now time.Time) ([]core.InvestorFlow, error) {
	latest, err := s.store.LatestFlowDate(ctx, s.market)
	if err != nil {
		return nil, err
	}
	today := core.StartOfDay(now)
	if latest == core.DateKey(today) {
		slog.InfoContext(ctx, "Investor flows already up to date", "component", "sync", "market", s.market, "latest", latest)
		return s.stored(ctx)
	}

	floor, err := core.ParseDateKey(core.FlowFloorDate)
	if err != nil {
		return nil, err
	}
	// An empty store reports the floor date, so the floor day itself is never
	// requested.
	latestDay, err := core.ParseDateKey(latest)
	if err != nil {
		return nil, fmt.Errorf("stored flow date: %w", err)
	}
	from := latestDay.AddDate(0, 0, 1)

	fetched, err := s.fetch(ctx, from, today, floor)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.UpsertInvestorFlows(ctx, s.market, fetched); err != nil {
		return nil, fmt.Errorf("store flows: %w", err)
	}
	slog.InfoContext(ctx, "Investor flows synced", "component", "sync", "market", s.market,
		"from", core.DateKey(from), "to", core.DateKey(today), "rows", len(fetched))
	return s.stored(ctx)
}

// fetch walks pages from today back to from. Each page is filtered to
// [from, cursor] and the cursor moves to the day before the oldest row kept.
func (s *FlowSync) fetch(ctx context.Context, from, today, floor time.Time) ([]core.InvestorFlow, error) {
	byDate := make(map[string]core.InvestorFlow)
	cursor := today
	for !cursor.Before(from) {
		rows, err := s.source.InvestorDailyByMarket(ctx, kis.InvestorQuery{Market: s.market, Date: cursor, From: from})
		if err != nil {
			return nil, fmt.Errorf("fetch flows before %s: %w", core.DateKey(cursor), err)
		}
		if len(rows) == 0 {
			break
		}

		oldest := time.Time{}
		kept := 0
		for _, f := range rows {
			if f.Date.Before(from) || f.Date.After(cursor) {
				continue
			}
			byDate[f.DateKey()] = f
			kept++
			if oldest.IsZero() || f.Date.Before(oldest) {
				oldest = f.Date
			}
		}
		if kept == 0 || !oldest.After(from) || !oldest.After(floor) {
			break
		}
		cursor = oldest.AddDate(0, 0, -1)
	}

	out := make([]core.InvestorFlow, 0, len(byDate))
	for _, f := range byDate {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *FlowSync) stored(ctx context.Context) ([]core.InvestorFlow, error) {
	flows, err := s.store.ListInvestorFlows(ctx, s.market, time.Time{}, 0)
	if err != nil {
		return nil, fmt.Errorf("read stored flows: %w", err)
	}
	return flows, nil
}
