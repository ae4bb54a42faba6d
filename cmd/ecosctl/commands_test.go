package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/log"
)

func TestSeriesFlags_Named(t *testing.T) {
	tests := []struct {
		name    string
		flags   seriesFlags
		wantKey string
		wantErr bool
	}{
		{"named series", seriesFlags{series: "kospi"}, "kospi", false},
		{"unknown series", seriesFlags{series: "nikkei"}, "", true},
		{"raw stat", seriesFlags{stat: "731Y001", item: "0000001", cycle: "d"}, "731Y001_0000001", false},
		{"missing item", seriesFlags{stat: "731Y001"}, "", true},
		{"bad cycle", seriesFlags{stat: "731Y001", item: "0000001", cycle: "W"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, err := tt.flags.named()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && ns.Key != tt.wantKey {
				t.Errorf("Key = %q, want %q", ns.Key, tt.wantKey)
			}
		})
	}
}

func TestSeriesFlags_Window(t *testing.T) {
	floor := time.Date(2000, 1, 1, 0, 0, 0, 0, core.KST)

	s := seriesFlags{period: "1y", from: "20240101", to: "20240131"}
	start, end, err := s.window(floor)
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if core.DateKey(start) != "20240101" || core.DateKey(end) != "20240131" {
		t.Errorf("window = %s..%s", core.DateKey(start), core.DateKey(end))
	}

	if _, _, err := (&seriesFlags{period: "1y", from: "20240201", to: "20240101"}).window(floor); err == nil {
		t.Error("expected error for inverted range")
	}
	if _, _, err := (&seriesFlags{period: "1y", from: "2024-01-01"}).window(floor); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestCommandsRegisterFlags(t *testing.T) {
	logger := log.New(log.Config{Output: io.Discard})
	for _, c := range commands(logger) {
		fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
		c.SetFlags(fs)
		if c.Synopsis() == "" || c.Usage() == "" {
			t.Errorf("%s: missing help text", c.Name())
		}
	}
	fs := flag.NewFlagSet("export-sheets", flag.ContinueOnError)
	(&exportSheetsCmd{}).SetFlags(fs)
	if got := fs.Lookup("period").DefValue; got != "5y" {
		t.Errorf("export-sheets period default = %q", got)
	}
}

type stubWide struct {
	rows  int
	err   error
	calls int
}

func (s *stubWide) table(ns ecos.NamedSeries) (*ecos.WideTable, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ecos.WideTable{Series: ns, Columns: ns.Items, Rows: make([]ecos.WideRow, s.rows)}, nil
}

func (s *stubWide) ReadWide(_ context.Context, ns ecos.NamedSeries, _, _ time.Time) (*ecos.WideTable, error) {
	return s.table(ns)
}

func (s *stubWide) FetchWide(_ context.Context, ns ecos.NamedSeries, _, _ time.Time) (*ecos.WideTable, error) {
	return s.table(ns)
}

func TestStoredOrLive(t *testing.T) {
	tests := []struct {
		name       string
		stored     *stubWide
		live       *stubWide
		wantSource string
		wantRows   int
		wantLive   int
		wantErr    bool
	}{
		{"stored rows win", &stubWide{rows: 3}, &stubWide{rows: 5}, "store", 3, 0, false},
		{"empty store downloads", &stubWide{}, &stubWide{rows: 5}, "ecos", 5, 1, false},
		{"store error downloads", &stubWide{err: errors.New("locked")}, &stubWide{rows: 2}, "ecos", 2, 1, false},
		{"both fail", &stubWide{}, &stubWide{err: errors.New("ecos down")}, "ecos", 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, source, err := storedOrLive(context.Background(), tt.stored, tt.live, ecos.KOSPI, time.Time{}, time.Time{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if source != tt.wantSource {
				t.Errorf("source = %q, want %q", source, tt.wantSource)
			}
			if tt.live.calls != tt.wantLive {
				t.Errorf("live calls = %d, want %d", tt.live.calls, tt.wantLive)
			}
			if err == nil && len(table.Rows) != tt.wantRows {
				t.Errorf("rows = %d, want %d", len(table.Rows), tt.wantRows)
			}
		})
	}
}
