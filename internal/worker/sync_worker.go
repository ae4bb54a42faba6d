// Package worker runs the background jobs of the sync and notifier binaries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
	"findash/internal/sheets"
)

type FlowSyncer interface {
	Sync(ctx context.Context, now time.Time) ([]core.InvestorFlow, error)
}

type SeriesSyncer interface {
	SyncAll(ctx context.Context, series []ecos.NamedSeries, now time.Time) error
}

// SyncWorker brings investor flows and tracked ECOS series up to date and
// mirrors the flows to a spreadsheet when one is configured.
type SyncWorker struct {
	flows   FlowSyncer
	series  SeriesSyncer
	tracked []ecos.NamedSeries
	sheets  sheets.FlowWriter
	market  string
	now     func() time.Time
	logger  *log.Logger
}

// NewSyncWorker creates a worker. flows and exporter may be nil.
func NewSyncWorker(flows FlowSyncer, series SeriesSyncer, tracked []ecos.NamedSeries, exporter sheets.FlowWriter, market string, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentSync})
	}
	return &SyncWorker{
		flows:   flows,
		series:  series,
		tracked: tracked,
		sheets:  exporter,
		market:  market,
		now:     time.Now,
		logger:  logger.WithComponent(log.ComponentSync),
	}
}

// SyncFlows downloads new investor flows. An export failure is logged and
// does not fail the job, the rows are already stored.
func (w *SyncWorker) SyncFlows(ctx context.Context) error {
	if w.flows == nil {
		w.logger.DebugContext(ctx, "Flow sync skipped, KIS not configured")
		return nil
	}
	start := time.Now()
	flows, err := w.flows.Sync(ctx, w.now())
	if err != nil {
		return fmt.Errorf("sync %s flows: %w", w.market, err)
	}
	w.logger.InfoContext(ctx, "Investor flows synced",
		log.FieldMarket, w.market, log.FieldRows, len(flows), log.FieldDuration, time.Since(start).Milliseconds())

	if w.sheets != nil && len(flows) > 0 {
		ref, err := w.sheets.WriteFlows(ctx, w.market, flows)
		if err != nil {
			w.logger.LogError(ctx, "Flow export failed", err, log.OpExport, log.LogFields{log.FieldMarket: w.market})
			return nil
		}
		w.logger.InfoContext(ctx, "Investor flows exported", log.FieldMarket, w.market, "range", ref)
	}
	return nil
}

// SyncSeries updates every tracked series.
func (w *SyncWorker) SyncSeries(ctx context.Context) error {
	start := time.Now()
	if err := w.series.SyncAll(ctx, w.tracked, w.now()); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Series synced", "series", len(w.tracked), log.FieldDuration, time.Since(start).Milliseconds())
	return nil
}

// StartupSyncCheck runs both jobs once, catching up on anything missed while
// the worker was down.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Performing startup sync check", log.FieldOperation, log.OpStartup)
	return errors.Join(w.SyncFlows(ctx), w.SyncSeries(ctx))
}
