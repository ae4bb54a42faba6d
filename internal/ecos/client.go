// Package ecos is a client for the Bank of Korea Economic Statistics System
// (ECOS) open API.
package ecos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"golang.org/x/time/rate"

	"findash/internal/core"
)

const (
	DefaultBaseURL  = "https://ecos.bok.or.kr/api"
	DefaultPageSize = 1000

	// CodeNoData is the RESULT code ECOS answers with when a query matches nothing.
	CodeNoData = "INFO-200"
)

// APIError is a RESULT envelope other than CodeNoData.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ecos: %s: %s", e.Code, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type Option func(*Client)

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRate limits outgoing requests to rps per second.
func WithRate(rps float64) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		pageSize:   DefaultPageSize,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Inf, 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the first page URL Search would request.
func (c *Client) URL(req SearchRequest) (string, error) {
	n := ExpectedCount(req.Cycle, req.Start, req.End)
	return BuildURL(c.baseURL, c.apiKey, req, 1, min(n, c.pageSize))
}

type searchRow struct {
	Time      string `json:"TIME"`
	Value     string `json:"DATA_VALUE"`
	StatCode  string `json:"STAT_CODE"`
	StatName  string `json:"STAT_NAME"`
	ItemCode1 string `json:"ITEM_CODE1"`
	ItemName1 string `json:"ITEM_NAME1"`
	UnitName  string `json:"UNIT_NAME"`
}

// Search downloads every observation of req, newest first.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]core.Observation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	first := min(ExpectedCount(req.Cycle, req.Start, req.End), c.pageSize)
	rows, err := fetchAll[searchRow](ctx, c, "StatisticSearch", first, func(start, end int) (string, error) {
		return BuildURL(c.baseURL, c.apiKey, req, start, end)
	})
	if err != nil {
		return nil, fmt.Errorf("search %s/%s: %w", req.StatCode, strings.Join(req.ItemCodes, ","), err)
	}

	out := make([]core.Observation, 0, len(rows))
	for _, r := range rows {
		v, err := core.ParseNumber(r.Value)
		if err != nil {
			continue
		}
		start, err := ParsePeriod(req.Cycle, r.Time)
		if err != nil {
			c.logger.WarnContext(ctx, "Skipping ECOS row with bad period", "component", "ecos", "time", r.Time, "error", err)
			continue
		}
		out = append(out, core.Observation{
			Time:        r.Time,
			PeriodStart: start,
			Value:       v,
			StatCode:    r.StatCode,
			StatName:    r.StatName,
			ItemCode:    r.ItemCode1,
			ItemName:    r.ItemName1,
			UnitName:    r.UnitName,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, nil
}

type tableRow struct {
	ParentStatCode string `json:"P_STAT_CODE"`
	StatCode       string `json:"STAT_CODE"`
	StatName       string `json:"STAT_NAME"`
	Cycle          string `json:"CYCLE"`
	SearchYN       string `json:"SRCH_YN"`
	OrgName        string `json:"ORG_NAME"`
}

// TableList downloads the whole StatisticTableList.
func (c *Client) TableList(ctx context.Context) ([]core.StatTable, error) {
	rows, err := fetchAll[tableRow](ctx, c, "StatisticTableList", c.pageSize, func(start, end int) (string, error) {
		return TableListURL(c.baseURL, c.apiKey, start, end), nil
	})
	if err != nil {
		return nil, fmt.Errorf("table list: %w", err)
	}
	out := make([]core.StatTable, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.StatTable{
			StatCode:       r.StatCode,
			ParentStatCode: r.ParentStatCode,
			StatName:       r.StatName,
			Cycle:          core.Cycle(r.Cycle),
			Searchable:     r.SearchYN == "Y",
			OrgName:        r.OrgName,
		})
	}
	return out, nil
}

type itemRow struct {
	GroupCode      string   `json:"GRP_CODE"`
	GroupName      string   `json:"GRP_NAME"`
	ItemCode       string   `json:"ITEM_CODE"`
	ItemName       string   `json:"ITEM_NAME"`
	ParentItemCode string   `json:"P_ITEM_CODE"`
	ParentItemName string   `json:"P_ITEM_NAME"`
	Cycle          string   `json:"CYCLE"`
	StartTime      string   `json:"START_TIME"`
	EndTime        string   `json:"END_TIME"`
	DataCount      flexInt  `json:"DATA_CNT"`
	UnitName       string   `json:"UNIT_NAME"`
	Weight         flexText `json:"WEIGHT"`
}

// ItemList downloads the StatisticItemList of one table.
func (c *Client) ItemList(ctx context.Context, statCode string) ([]core.StatItem, error) {
	if strings.TrimSpace(statCode) == "" {
		return nil, core.ErrEmptyStatCode
	}
	rows, err := fetchAll[itemRow](ctx, c, "StatisticItemList", c.pageSize, func(start, end int) (string, error) {
		return ItemListURL(c.baseURL, c.apiKey, statCode, start, end), nil
	})
	if err != nil {
		return nil, fmt.Errorf("item list %s: %w", statCode, err)
	}
	out := make([]core.StatItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, core.StatItem{
			GroupCode:      r.GroupCode,
			GroupName:      r.GroupName,
			ItemCode:       r.ItemCode,
			ItemName:       r.ItemName,
			ParentItemCode: r.ParentItemCode,
			ParentItemName: r.ParentItemName,
			Cycle:          core.Cycle(r.Cycle),
			StartTime:      r.StartTime,
			EndTime:        r.EndTime,
			DataCount:      int64(r.DataCount),
			UnitName:       r.UnitName,
			Weight:         string(r.Weight),
		})
	}
	return out, nil
}

// fetchAll pages through service. The first page covers 1..first, later
// pages start after the rows received so far.
func fetchAll[T any](ctx context.Context, c *Client, service string, first int, pageURL func(start, end int) (string, error)) ([]T, error) {
	var all []T
	start, end := 1, first
	for {
		u, err := pageURL(start, end)
		if err != nil {
			return nil, err
		}
		var rows []T
		total, err := c.page(ctx, u, service, &rows)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		c.logger.DebugContext(ctx, "ECOS page fetched", "component", "ecos", "service", service, "start", start, "rows", len(rows), "total", total)
		if len(rows) == 0 || len(all) >= total {
			return all, nil
		}
		start = len(all) + 1
		end = start + c.pageSize - 1
	}
}

// page fetches one page into rows and returns list_total_count.
// A no-data RESULT leaves rows empty.
func (c *Client) page(ctx context.Context, u, service string, rows any) (int, error) {
	body, err := c.get(ctx, u)
	if err != nil {
		return 0, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if code, err := jsonpath.Get("$.RESULT.CODE", doc); err == nil {
		msg, _ := jsonpath.Get("$.RESULT.MESSAGE", doc)
		apiErr := &APIError{Code: fmt.Sprint(code), Message: fmt.Sprint(msg)}
		if apiErr.Code == CodeNoData {
			return 0, nil
		}
		return 0, apiErr
	}

	var env map[string]struct {
		ListTotalCount flexInt         `json:"list_total_count"`
		Row            json.RawMessage `json:"row"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, fmt.Errorf("decode %s envelope: %w", service, err)
	}
	payload, ok := env[service]
	if !ok {
		return 0, fmt.Errorf("response has no %s envelope", service)
	}
	if len(payload.Row) > 0 {
		if err := json.Unmarshal(payload.Row, rows); err != nil {
			return 0, fmt.Errorf("decode %s rows: %w", service, err)
		}
	}
	return int(payload.ListTotalCount), nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body[:min(len(body), 200)]))
	}
	return body, nil
}

// flexInt accepts both JSON numbers and numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse count %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}

// flexText accepts strings, numbers and null.
type flexText string

func (f *flexText) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexText(s)
		return nil
	}
	*f = flexText(b)
	return nil
}
