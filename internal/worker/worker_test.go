package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
	"findash/internal/sheets"
	"findash/internal/sheets/memory"
)

type fakeFlows struct {
	flows []core.InvestorFlow
	err   error
	calls int
}

func (f *fakeFlows) Sync(ctx context.Context, now time.Time) ([]core.InvestorFlow, error) {
	f.calls++
	return f.flows, f.err
}

type fakeSeries struct {
	got []ecos.NamedSeries
	err error
}

func (f *fakeSeries) SyncAll(ctx context.Context, series []ecos.NamedSeries, now time.Time) error {
	f.got = series
	return f.err
}

type failingWriter struct{}

func (failingWriter) WriteFlows(ctx context.Context, market string, flows []core.InvestorFlow) (string, error) {
	return "", errors.New("quota exceeded")
}

func discard() *log.Logger {
	return log.New(log.Config{Output: io.Discard})
}

func TestSyncWorker_SyncFlowsExports(t *testing.T) {
	day := time.Date(2024, 1, 3, 0, 0, 0, 0, core.KST)
	flows := &fakeFlows{flows: []core.InvestorFlow{{Market: "KSP", Date: day}}}
	store := memory.New()
	w := NewSyncWorker(flows, &fakeSeries{}, nil, store, "KSP", discard())

	if err := w.SyncFlows(context.Background()); err != nil {
		t.Fatalf("SyncFlows: %v", err)
	}
	rows, ok := store.Tab("flows_KSP")
	if !ok || len(rows) != 2 || rows[1][0] != "20240103" {
		t.Errorf("exported rows = %v", rows)
	}
}

func TestSyncWorker_SyncFlowsErrors(t *testing.T) {
	tests := []struct {
		name    string
		flows   *fakeFlows
		writer  sheets.FlowWriter
		wantErr bool
	}{
		{"source failure", &fakeFlows{err: errors.New("kis down")}, nil, true},
		{"export failure is logged", &fakeFlows{flows: []core.InvestorFlow{{Market: "KSP"}}}, failingWriter{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewSyncWorker(tt.flows, &fakeSeries{}, nil, tt.writer, "KSP", discard())
			err := w.SyncFlows(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSyncWorker_NoKIS(t *testing.T) {
	w := NewSyncWorker(nil, &fakeSeries{}, nil, nil, "KSP", discard())
	if err := w.SyncFlows(context.Background()); err != nil {
		t.Errorf("SyncFlows without source = %v", err)
	}
}

func TestSyncWorker_StartupSyncCheck(t *testing.T) {
	flows := &fakeFlows{}
	series := &fakeSeries{err: errors.New("ecos down")}
	w := NewSyncWorker(flows, series, ecos.Tracked, nil, "KSP", discard())

	err := w.StartupSyncCheck(context.Background())
	if err == nil {
		t.Fatal("expected series error")
	}
	if flows.calls != 1 {
		t.Errorf("flow sync calls = %d, want 1", flows.calls)
	}
	if len(series.got) != len(ecos.Tracked) {
		t.Errorf("series synced = %d, want %d", len(series.got), len(ecos.Tracked))
	}
}

type fakeNotifier struct {
	got []core.Alert
	err error
}

func (f *fakeNotifier) Notify(ctx context.Context, a core.Alert) error {
	f.got = append(f.got, a)
	return f.err
}

func TestAlertRelay(t *testing.T) {
	n := &fakeNotifier{}
	r := NewAlertRelay(n, discard())
	a := core.Alert{ID: "e1", Code: "005930.KS"}
	if err := r.HandleAlert(context.Background(), a); err != nil {
		t.Fatalf("HandleAlert: %v", err)
	}
	if len(n.got) != 1 || n.got[0].ID != "e1" {
		t.Errorf("notified = %v", n.got)
	}

	n.err = errors.New("telegram down")
	if err := r.HandleAlert(context.Background(), a); err == nil {
		t.Error("expected delivery error")
	}
}
