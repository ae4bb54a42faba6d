package ecos

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"findash/internal/core"
)

// Item is one column of a named series.
type Item struct {
	Code string
	Name string
}

// NamedSeries is a statistic the dashboard tracks by name.
type NamedSeries struct {
	Key      string
	Name     string
	StatCode string
	Cycle    core.Cycle
	Items    []Item
}

var (
	M2ByHolder = NamedSeries{
		Key: "m2", Name: "M2 경제주체별 보유현황", StatCode: "101Y006", Cycle: core.Monthly,
		Items: []Item{
			{"BBHS00", "M2(평잔, 계절조정계열)"},
			{"BBHSJ1", "가계 및 비영리단체"},
			{"BBHSJ2", "기업"},
			{"BBHSJ3", "기타금융기관"},
			{"BBHSJ4", "기타부문"},
		},
	}
	ExchangeRate = NamedSeries{
		Key: "usdkrw", Name: "원/미국달러 환율", StatCode: "731Y001", Cycle: core.Daily,
		Items: []Item{{"0000001", "원/미국달러(매매기준율)"}},
	}
	KOSPI = NamedSeries{
		Key: "kospi", Name: "KOSPI", StatCode: "802Y001", Cycle: core.Daily,
		Items: []Item{{"0001000", "KOSPI지수"}},
	}
	MarketFunds = NamedSeries{
		Key: "funds", Name: "증시자금 동향", StatCode: "901Y056", Cycle: core.Monthly,
		Items: []Item{
			{"S23A", "투자자예탁금"},
			{"S23B", "파생상품거래예수금"},
			{"S23C", "RP 매도잔고"},
			{"S23D", "위탁매매 미수금"},
			{"S23E", "반대매매금액"},
			{"S23F", "미수금 대비 반대매매비중"},
		},
	}
)

// Tracked lists the named series in display order.
var Tracked = []NamedSeries{M2ByHolder, ExchangeRate, KOSPI, MarketFunds}

func LookupSeries(key string) (NamedSeries, bool) {
	for _, s := range Tracked {
		if s.Key == key {
			return s, true
		}
	}
	return NamedSeries{}, false
}

// Request returns the search for a single item of s.
func (s NamedSeries) Request(itemCode string, start, end time.Time) SearchRequest {
	return SearchRequest{StatCode: s.StatCode, ItemCodes: []string{itemCode}, Cycle: s.Cycle, Start: start, End: end}
}

// WideRow is one period of a WideTable.
type WideRow struct {
	Time        string
	PeriodStart time.Time
	Values      []float64
}

// WideTable holds several items of a series side by side, newest period first.
type WideTable struct {
	Series  NamedSeries
	Columns []Item
	Rows    []WideRow
}

// maxParallelItems bounds concurrent item downloads for one series.
const maxParallelItems = 3

// FetchWide downloads every item of s concurrently and merges them by period.
// Periods missing for an item are filled with zero.
func (c *Client) FetchWide(ctx context.Context, s NamedSeries, start, end time.Time) (*WideTable, error) {
	results := make([][]core.Observation, len(s.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelItems)
	for i, item := range s.Items {
		g.Go(func() error {
			obs, err := c.Search(gctx, s.Request(item.Code, start, end))
			if err != nil {
				return fmt.Errorf("%s %s: %w", s.Key, item.Code, err)
			}
			results[i] = obs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeWide(s, results), nil
}

// MergeWide joins per-item observations of s into one table keyed by period,
// newest first. results[i] holds the observations of s.Items[i].
func MergeWide(s NamedSeries, results [][]core.Observation) *WideTable {
	byTime := make(map[string]*WideRow)
	for col, obs := range results {
		for _, o := range obs {
			row, ok := byTime[o.Time]
			if !ok {
				row = &WideRow{Time: o.Time, PeriodStart: o.PeriodStart, Values: make([]float64, len(s.Items))}
				byTime[o.Time] = row
			}
			row.Values[col] = o.Value.InexactFloat64()
		}
	}
	t := &WideTable{Series: s, Columns: s.Items, Rows: make([]WideRow, 0, len(byTime))}
	for _, r := range byTime {
		t.Rows = append(t.Rows, *r)
	}
	sort.Slice(t.Rows, func(i, j int) bool { return t.Rows[i].PeriodStart.After(t.Rows[j].PeriodStart) })
	return t
}

// Column returns the points of one column oldest first, for charting.
func (t *WideTable) Column(i int) core.Series {
	item := t.Columns[i]
	out := core.Series{Code: item.Code, Name: item.Name, Points: make([]core.SeriesPoint, 0, len(t.Rows))}
	for j := len(t.Rows) - 1; j >= 0; j-- {
		out.Points = append(out.Points, core.SeriesPoint{Time: t.Rows[j].Time, Value: t.Rows[j].Values[i]})
	}
	return out
}
