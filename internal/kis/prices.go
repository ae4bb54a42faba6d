package kis

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"findash/internal/core"
)

const (
	pathDailyItemChartPrice = "/uapi/domestic-stock/v1/quotations/inquire-daily-itemchartprice"
	trDailyItemChartPrice   = "FHKST03010100"

	// chartPageSize is the most rows one chart request returns.
	chartPageSize = 100
)

type chartRow struct {
	Date   string `json:"stck_bsop_date"`
	Open   string `json:"stck_oprc"`
	High   string `json:"stck_hgpr"`
	Low    string `json:"stck_lwpr"`
	Close  string `json:"stck_clpr"`
	Volume string `json:"acml_vol"`
}

// DailyPrices returns daily bars of a domestic stock between from and to,
// oldest first. It pages backwards from to until from is covered.
func (c *Client) DailyPrices(ctx context.Context, code string, from, to time.Time) ([]core.PriceBar, error) {
	from, to = core.StartOfDay(from), core.StartOfDay(to)
	byDate := make(map[string]core.PriceBar)
	cursor := to
	for !cursor.Before(from) {
		rows, err := c.chartPage(ctx, code, from, cursor)
		if err != nil {
			return nil, err
		}
		oldest := cursor
		for _, b := range rows {
			if b.Date.Before(from) || b.Date.After(to) {
				continue
			}
			byDate[core.DateKey(b.Date)] = b
			if b.Date.Before(oldest) {
				oldest = b.Date
			}
		}
		if len(rows) < chartPageSize || !oldest.Before(cursor) {
			break
		}
		cursor = oldest.AddDate(0, 0, -1)
	}

	bars := make([]core.PriceBar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}

func (c *Client) chartPage(ctx context.Context, code string, from, to time.Time) ([]core.PriceBar, error) {
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "J")
	params.Set("FID_INPUT_ISCD", code)
	params.Set("FID_INPUT_DATE_1", core.DateKey(from))
	params.Set("FID_INPUT_DATE_2", core.DateKey(to))
	params.Set("FID_PERIOD_DIV_CODE", "D")
	params.Set("FID_ORG_ADJ_PRC", "0")

	var resp struct {
		envelope
		Output2 []chartRow `json:"output2"`
	}
	if err := c.quote(ctx, pathDailyItemChartPrice, trDailyItemChartPrice, params, &resp); err != nil {
		return nil, fmt.Errorf("daily prices %s: %w", code, err)
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	bars := make([]core.PriceBar, 0, len(resp.Output2))
	for _, r := range resp.Output2 {
		if r.Date == "" {
			continue
		}
		date, err := core.ParseDateKey(r.Date)
		if err != nil {
			return nil, err
		}
		p := parser{}
		b := core.PriceBar{
			Date:   date,
			Open:   p.float(r.Open),
			High:   p.float(r.High),
			Low:    p.float(r.Low),
			Close:  p.float(r.Close),
			Volume: p.int(r.Volume),
		}
		if p.err != nil {
			return nil, fmt.Errorf("daily prices %s row %s: %w", code, r.Date, p.err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}
