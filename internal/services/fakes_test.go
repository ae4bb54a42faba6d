package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"findash/internal/core"
	"findash/internal/ecos"
	"findash/internal/kis"
	"findash/internal/storage"
)

type memFlowStore struct {
	rows map[string]core.InvestorFlow
}

func newMemFlowStore(dates ...string) *memFlowStore {
	s := &memFlowStore{rows: map[string]core.InvestorFlow{}}
	for _, d := range dates {
		t, _ := core.ParseDateKey(d)
		s.rows[d] = core.InvestorFlow{Date: t}
	}
	return s
}

func (s *memFlowStore) LatestFlowDate(_ context.Context, _ string) (string, error) {
	latest := ""
	for k := range s.rows {
		if k > latest {
			latest = k
		}
	}
	if latest == "" {
		return core.FlowFloorDate, nil
	}
	return latest, nil
}

func (s *memFlowStore) UpsertInvestorFlows(_ context.Context, market string, flows []core.InvestorFlow) (int, error) {
	for _, f := range flows {
		f.Market = market
		s.rows[f.DateKey()] = f
	}
	return len(flows), nil
}

func (s *memFlowStore) ListInvestorFlows(_ context.Context, _ string, _ time.Time, _ int) ([]core.InvestorFlow, error) {
	out := make([]core.InvestorFlow, 0, len(s.rows))
	for _, f := range s.rows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

// pagedFlows serves at most pageSize rows at or before the query date,
// newest first, ignoring the lower bound like the real API may.
type pagedFlows struct {
	dates    []time.Time
	pageSize int
	calls    []kis.InvestorQuery
	err      error
}

func (p *pagedFlows) InvestorDailyByMarket(_ context.Context, q kis.InvestorQuery) ([]core.InvestorFlow, error) {
	p.calls = append(p.calls, q)
	if p.err != nil {
		return nil, p.err
	}
	var out []core.InvestorFlow
	for i := len(p.dates) - 1; i >= 0 && len(out) < p.pageSize; i-- {
		if !p.dates[i].After(q.Date) {
			out = append(out, core.InvestorFlow{Market: q.Market, Date: p.dates[i]})
		}
	}
	return out, nil
}

type memSeriesStore struct {
	tables map[string]core.StatTable
	items  map[string]core.StatItem
	values map[int64]map[string]core.Observation
	nextID int64
}

func newMemSeriesStore() *memSeriesStore {
	return &memSeriesStore{
		tables: map[string]core.StatTable{},
		items:  map[string]core.StatItem{},
		values: map[int64]map[string]core.Observation{},
	}
}

func (s *memSeriesStore) EnsureStatItem(_ context.Context, table core.StatTable, item core.StatItem) (core.StatItem, error) {
	t, ok := s.tables[table.StatCode]
	if !ok {
		t = table
		t.ID = int64(len(s.tables) + 1)
		s.tables[table.StatCode] = t
	}
	key := fmt.Sprintf("%d/%s/%s", t.ID, item.ItemCode, item.Cycle)
	if it, ok := s.items[key]; ok {
		return it, nil
	}
	s.nextID++
	item.ID = s.nextID
	item.TableID = t.ID
	s.items[key] = item
	return item, nil
}

func (s *memSeriesStore) GetStatTable(_ context.Context, statCode string) (core.StatTable, error) {
	t, ok := s.tables[statCode]
	if !ok {
		return core.StatTable{}, fmt.Errorf("stat table %s: %w", statCode, storage.ErrNotFound)
	}
	return t, nil
}

func (s *memSeriesStore) GetStatItem(_ context.Context, tableID int64, itemCode string, cycle core.Cycle) (core.StatItem, error) {
	it, ok := s.items[fmt.Sprintf("%d/%s/%s", tableID, itemCode, cycle)]
	if !ok {
		return core.StatItem{}, fmt.Errorf("stat item %s: %w", itemCode, storage.ErrNotFound)
	}
	return it, nil
}

func (s *memSeriesStore) ListStatValues(_ context.Context, itemID int64, since time.Time) ([]core.Observation, error) {
	var out []core.Observation
	for _, o := range s.values[itemID] {
		if !o.PeriodStart.Before(since) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}

func (s *memSeriesStore) LatestStatTime(_ context.Context, itemID int64) (time.Time, bool, error) {
	var latest time.Time
	for _, o := range s.values[itemID] {
		if o.PeriodStart.After(latest) {
			latest = o.PeriodStart
		}
	}
	return latest, !latest.IsZero(), nil
}

func (s *memSeriesStore) UpsertStatValues(_ context.Context, itemID int64, obs []core.Observation) (int, error) {
	if s.values[itemID] == nil {
		s.values[itemID] = map[string]core.Observation{}
	}
	for _, o := range obs {
		s.values[itemID][o.Time] = o
	}
	return len(obs), nil
}

type fakeSeriesSource struct {
	mu       sync.Mutex
	requests []ecos.SearchRequest
	failItem string
}

func (f *fakeSeriesSource) Search(_ context.Context, req ecos.SearchRequest) ([]core.Observation, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if len(req.ItemCodes) == 1 && req.ItemCodes[0] == f.failItem {
		return nil, errors.New("ecos down")
	}
	var out []core.Observation
	for d := req.Start; !d.After(req.End); d = d.AddDate(0, 1, 0) {
		p, _ := ecos.FormatPeriod(req.Cycle, d)
		start, _ := ecos.ParsePeriod(req.Cycle, p)
		out = append(out, core.Observation{Time: p, PeriodStart: start, ItemCode: req.ItemCodes[0]})
	}
	return out, nil
}

type fakeMetadata struct {
	tables   []core.StatTable
	items    map[string][]core.StatItem
	failCode string

	mu        sync.Mutex
	saved     map[int64][]core.StatItem
	extraInfo map[string]string
}

func (f *fakeMetadata) TableList(context.Context) ([]core.StatTable, error) {
	return f.tables, nil
}

func (f *fakeMetadata) ItemList(_ context.Context, code string) ([]core.StatItem, error) {
	if code == f.failCode {
		return nil, errors.New("ERROR-602: too many requests")
	}
	return f.items[code], nil
}

func (f *fakeMetadata) UpsertStatTables(_ context.Context, tables []core.StatTable) (map[string]int64, error) {
	ids := map[string]int64{}
	for i, t := range tables {
		ids[t.StatCode] = int64(i + 1)
	}
	return ids, nil
}

func (f *fakeMetadata) UpsertStatItems(_ context.Context, tableID int64, items []core.StatItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[int64][]core.StatItem{}
	}
	f.saved[tableID] = items
	return nil
}

func (f *fakeMetadata) SetStatTableExtraInfo(_ context.Context, code, info string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extraInfo == nil {
		f.extraInfo = map[string]string{}
	}
	f.extraInfo[code] = info
	return nil
}
