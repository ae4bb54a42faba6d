package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"findash/internal/core"
)

type MetadataSource interface {
	TableList(ctx context.Context) ([]core.StatTable, error)
	ItemList(ctx context.Context, statCode string) ([]core.StatItem, error)
}

type MetadataStore interface {
	UpsertStatTables(ctx context.Context, tables []core.StatTable) (map[string]int64, error)
	UpsertStatItems(ctx context.Context, tableID int64, items []core.StatItem) error
	SetStatTableExtraInfo(ctx context.Context, statCode, info string) error
}

// ImportResult summarises a metadata import.
type ImportResult struct {
	Tables int
	Items  int
	Failed int
}

// MetadataImport downloads the ECOS table list and the item list of every
// searchable table.
type MetadataImport struct {
	source      MetadataSource
	store       MetadataStore
	concurrency int
	pause       time.Duration
}

// NewMetadataImport creates an importer. pause is waited between item list
// requests of one worker.
func NewMetadataImport(source MetadataSource, store MetadataStore, concurrency int, pause time.Duration) *MetadataImport {
	if concurrency < 1 {
		concurrency = 1
	}
	return &MetadataImport{source: source, store: store, concurrency: concurrency, pause: pause}
}

// Run imports all metadata. A table whose item list cannot be downloaded gets
// the error recorded in its extra info and does not stop the import.
func (m *MetadataImport) Run(ctx context.Context) (ImportResult, error) {
	var res ImportResult
	tables, err := m.source.TableList(ctx)
	if err != nil {
		return res, fmt.Errorf("download table list: %w", err)
	}
	ids, err := m.store.UpsertStatTables(ctx, tables)
	if err != nil {
		return res, err
	}
	res.Tables = len(tables)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for _, t := range tables {
		if !t.Searchable {
			continue
		}
		g.Go(func() error {
			items, err := m.source.ItemList(gctx, t.StatCode)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.WarnContext(gctx, "Item list download failed", "component", "sync", "stat_code", t.StatCode, "error", err)
				if err := m.store.SetStatTableExtraInfo(gctx, t.StatCode, err.Error()); err != nil {
					return err
				}
				mu.Lock()
				res.Failed++
				mu.Unlock()
				return m.wait(gctx)
			}
			if err := m.store.UpsertStatItems(gctx, ids[t.StatCode], items); err != nil {
				return fmt.Errorf("store items of %s: %w", t.StatCode, err)
			}
			mu.Lock()
			res.Items += len(items)
			mu.Unlock()
			return m.wait(gctx)
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	slog.InfoContext(ctx, "Metadata import finished", "component", "sync",
		"tables", res.Tables, "items", res.Items, "failed", res.Failed)
	return res, nil
}

func (m *MetadataImport) wait(ctx context.Context) error {
	if m.pause <= 0 {
		return nil
	}
	select {
	case <-time.After(m.pause):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
