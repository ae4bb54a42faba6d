package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/storage"
)

type SeriesValueStore interface {
	GetStatTable(ctx context.Context, statCode string) (core.StatTable, error)
	GetStatItem(ctx context.Context, tableID int64, itemCode string, cycle core.Cycle) (core.StatItem, error)
	ListStatValues(ctx context.Context, itemID int64, since time.Time) ([]core.Observation, error)
}

// SeriesReader serves named series from the observations SeriesSync stored.
type SeriesReader struct {
	store SeriesValueStore
}

func NewSeriesReader(store SeriesValueStore) *SeriesReader {
	return &SeriesReader{store: store}
}

// ReadWide returns the stored periods of s between start and end merged by
// period. Items never synced contribute zeros; a table with no rows means
// nothing is stored for the window.
func (r *SeriesReader) ReadWide(ctx context.Context, s ecos.NamedSeries, start, end time.Time) (*ecos.WideTable, error) {
	results := make([][]core.Observation, len(s.Items))

	table, err := r.store.GetStatTable(ctx, s.StatCode)
	if errors.Is(err, storage.ErrNotFound) {
		return ecos.MergeWide(s, results), nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.Key, err)
	}

	for i, it := range s.Items {
		item, err := r.store.GetStatItem(ctx, table.ID, it.Code, s.Cycle)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", s.Key, it.Code, err)
		}
		obs, err := r.store.ListStatValues(ctx, item.ID, start)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", s.Key, it.Code, err)
		}
		kept := obs[:0]
		for _, o := range obs {
			if !o.PeriodStart.After(end) {
				kept = append(kept, o)
			}
		}
		results[i] = kept
	}
	return ecos.MergeWide(s, results), nil
}
