// Package memory is an in-process spreadsheet used for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/sheets"
)

var _ sheets.Exporter = (*Store)(nil)

// Store keeps every written tab in memory, keyed by tab name.
type Store struct {
	mu   sync.Mutex
	tabs map[string][][]any
}

func New() *Store {
	return &Store{tabs: make(map[string][][]any)}
}

func (s *Store) WriteSeries(_ context.Context, t *ecos.WideTable) (string, error) {
	if t == nil {
		return "", fmt.Errorf("nil series table")
	}
	return s.put(t.Series.Key, sheets.SeriesRows(t)), nil
}

func (s *Store) WriteFlows(_ context.Context, market string, flows []core.InvestorFlow) (string, error) {
	if market == "" {
		return "", fmt.Errorf("empty market")
	}
	return s.put("flows_"+market, sheets.FlowRows(flows)), nil
}

func (s *Store) put(tab string, rows [][]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tabs[tab] = rows
	return fmt.Sprintf("mem:%s!A1:%s%d", tab, columnName(width(rows)), len(rows))
}

// Tab returns a copy of the rows last written to tab.
func (s *Store) Tab(tab string) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tabs[tab]
	if !ok {
		return nil, false
	}
	return append([][]any(nil), rows...), true
}

// Tabs lists written tab names in order.
func (s *Store) Tabs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tabs))
	for k := range s.tabs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func width(rows [][]any) int {
	w := 0
	for _, r := range rows {
		w = max(w, len(r))
	}
	return w
}

// columnName converts a 1-based column count to A1 notation letters.
func columnName(n int) string {
	if n < 1 {
		return "A"
	}
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('A' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}
