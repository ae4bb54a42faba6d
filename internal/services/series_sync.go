package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"findash/internal/core"
	"findash/internal/ecos"
)

type SeriesSource interface {
	Search(ctx context.Context, req ecos.SearchRequest) ([]core.Observation, error)
}

type SeriesStore interface {
	EnsureStatItem(ctx context.Context, table core.StatTable, item core.StatItem) (core.StatItem, error)
	LatestStatTime(ctx context.Context, itemID int64) (time.Time, bool, error)
	UpsertStatValues(ctx context.Context, itemID int64, obs []core.Observation) (int, error)
}

// SeriesSync keeps the stored observations of named ECOS series current.
type SeriesSync struct {
	source SeriesSource
	store  SeriesStore
	floor  time.Time
}

// NewSeriesSync creates a SeriesSync that downloads from floor when an item
// has no stored data.
func NewSeriesSync(source SeriesSource, store SeriesStore, floor time.Time) *SeriesSync {
	return &SeriesSync{source: source, store: store, floor: floor}
}

// Sync updates every item of s and returns the number of rows written.
// The latest stored period is fetched again so revised values replace it.
func (s *SeriesSync) Sync(ctx context.Context, series ecos.NamedSeries, now time.Time) (int, error) {
	table := core.StatTable{StatCode: series.StatCode, StatName: series.Name, Cycle: series.Cycle}
	total := 0
	for _, it := range series.Items {
		item, err := s.store.EnsureStatItem(ctx, table, core.StatItem{ItemCode: it.Code, ItemName: it.Name, Cycle: series.Cycle})
		if err != nil {
			return total, fmt.Errorf("%s %s: %w", series.Key, it.Code, err)
		}
		start := s.floor
		if latest, ok, err := s.store.LatestStatTime(ctx, item.ID); err != nil {
			return total, fmt.Errorf("%s %s: %w", series.Key, it.Code, err)
		} else if ok {
			start = latest
		}

		obs, err := s.source.Search(ctx, series.Request(it.Code, start, now))
		if err != nil {
			return total, fmt.Errorf("%s %s: %w", series.Key, it.Code, err)
		}
		n, err := s.store.UpsertStatValues(ctx, item.ID, obs)
		if err != nil {
			return total, fmt.Errorf("%s %s: %w", series.Key, it.Code, err)
		}
		total += n
		slog.InfoContext(ctx, "Series item synced", "component", "sync", "stat_code", series.StatCode,
			"item_code", it.Code, "from", start.Format("20060102"), "rows", n)
	}
	return total, nil
}

// SyncAll syncs each series in turn. A failing series is logged and the rest
// still run; the joined errors are returned.
func (s *SeriesSync) SyncAll(ctx context.Context, series []ecos.NamedSeries, now time.Time) error {
	var errs []error
	for _, ser := range series {
		if _, err := s.Sync(ctx, ser, now); err != nil {
			slog.ErrorContext(ctx, "Series sync failed", "component", "sync", "series", ser.Key, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
