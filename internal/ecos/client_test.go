package ecos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"findash/internal/core"
)

// fakeECOS serves StatisticSearch pages out of a fixed row set per item code.
type fakeECOS struct {
	mu       sync.Mutex
	rows     map[string][]map[string]string
	ranges   [][2]int
	result   string
	totalStr bool
}

func (f *fakeECOS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// StatisticSearch/KEY/json/kr/start/end/stat/cycle/from/to/item
	if len(parts) < 10 || parts[0] != "StatisticSearch" {
		http.NotFound(w, r)
		return
	}
	if f.result != "" {
		fmt.Fprintf(w, `{"RESULT":{"CODE":%q,"MESSAGE":"message"}}`, f.result)
		return
	}
	start, _ := strconv.Atoi(parts[4])
	end, _ := strconv.Atoi(parts[5])
	item := ""
	if len(parts) > 10 {
		item = parts[10]
	}

	f.mu.Lock()
	f.ranges = append(f.ranges, [2]int{start, end})
	f.mu.Unlock()

	all := f.rows[item]
	var page []map[string]string
	for i := start - 1; i < end && i < len(all); i++ {
		page = append(page, all[i])
	}
	var total any = len(all)
	if f.totalStr {
		total = strconv.Itoa(len(all))
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"StatisticSearch": map[string]any{"list_total_count": total, "row": page},
	})
}

func dailyRows(item string, n int) []map[string]string {
	rows := make([]map[string]string, n)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, core.KST)
	for i := range rows {
		rows[i] = map[string]string{
			"TIME":       day.AddDate(0, 0, i).Format("20060102"),
			"DATA_VALUE": fmt.Sprintf("1,30%d.5", i),
			"STAT_CODE":  "731Y001",
			"STAT_NAME":  "3.1.1.1. 주요국 통화의 대원화환율",
			"ITEM_CODE1": item,
			"ITEM_NAME1": "원/미국달러(매매기준율)",
			"UNIT_NAME":  "원",
		}
	}
	return rows
}

func dailyRequest(item string) SearchRequest {
	return SearchRequest{
		StatCode:  "731Y001",
		ItemCodes: []string{item},
		Cycle:     core.Daily,
		Start:     time.Date(2024, 1, 1, 0, 0, 0, 0, core.KST),
		End:       time.Date(2024, 1, 31, 0, 0, 0, 0, core.KST),
	}
}

func TestClient_SearchPages(t *testing.T) {
	fake := &fakeECOS{rows: map[string][]map[string]string{"0000001": dailyRows("0000001", 7)}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := NewClient(srv.URL, "KEY", WithPageSize(3))
	obs, err := c.Search(context.Background(), dailyRequest("0000001"))
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(obs) != 7 {
		t.Fatalf("Search() returned %d rows, want 7", len(obs))
	}
	if obs[0].Time != "20240107" || obs[6].Time != "20240101" {
		t.Errorf("rows not newest first: %s .. %s", obs[0].Time, obs[6].Time)
	}
	if obs[6].Value.String() != "1300.5" {
		t.Errorf("value = %s, want 1300.5", obs[6].Value)
	}

	want := [][2]int{{1, 3}, {4, 6}, {7, 9}}
	if fmt.Sprint(fake.ranges) != fmt.Sprint(want) {
		t.Errorf("requested ranges = %v, want %v", fake.ranges, want)
	}
}

func TestClient_SearchFirstPageBoundedByExpectedCount(t *testing.T) {
	fake := &fakeECOS{rows: map[string][]map[string]string{"0000001": dailyRows("0000001", 2)}, totalStr: true}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	req := dailyRequest("0000001")
	req.End = req.Start.AddDate(0, 0, 4)
	c := NewClient(srv.URL, "KEY")
	obs, err := c.Search(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 2 {
		t.Errorf("got %d rows, want 2", len(obs))
	}
	if len(fake.ranges) != 1 || fake.ranges[0] != [2]int{1, 5} {
		t.Errorf("ranges = %v, want [[1 5]]", fake.ranges)
	}
}

func TestClient_SearchSkipsBlankValues(t *testing.T) {
	rows := dailyRows("0000001", 3)
	rows[1]["DATA_VALUE"] = ""
	srv := httptest.NewServer(&fakeECOS{rows: map[string][]map[string]string{"0000001": rows}})
	defer srv.Close()

	obs, err := NewClient(srv.URL, "KEY").Search(context.Background(), dailyRequest("0000001"))
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 2 {
		t.Errorf("got %d observations, want 2", len(obs))
	}
}

func TestClient_SearchResultCodes(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		srv := httptest.NewServer(&fakeECOS{result: CodeNoData})
		defer srv.Close()
		obs, err := NewClient(srv.URL, "KEY").Search(context.Background(), dailyRequest("0000001"))
		if err != nil || len(obs) != 0 {
			t.Errorf("Search() = %v, %v; want empty, nil", obs, err)
		}
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(&fakeECOS{result: "ERROR-100"})
		defer srv.Close()
		_, err := NewClient(srv.URL, "KEY").Search(context.Background(), dailyRequest("0000001"))
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Code != "ERROR-100" || apiErr.Message != "message" {
			t.Errorf("error = %v, want APIError ERROR-100", err)
		}
	})

	t.Run("http status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()
		_, err := NewClient(srv.URL, "KEY").Search(context.Background(), dailyRequest("0000001"))
		if err == nil || !strings.Contains(err.Error(), "502") {
			t.Errorf("error = %v, want status 502", err)
		}
	})
}

func TestClient_SearchValidates(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "KEY")
	if _, err := c.Search(context.Background(), SearchRequest{Cycle: core.Daily}); !errors.Is(err, core.ErrEmptyStatCode) {
		t.Errorf("error = %v, want ErrEmptyStatCode", err)
	}
}

func TestClient_TableAndItemList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/StatisticTableList/"):
			fmt.Fprint(w, `{"StatisticTableList":{"list_total_count":"2","row":[
				{"P_STAT_CODE":"0000000001","STAT_CODE":"101Y006","STAT_NAME":"1.1.3.2.1. M2 경제주체별 보유현황","CYCLE":"M","SRCH_YN":"Y","ORG_NAME":"한국은행"},
				{"P_STAT_CODE":"*","STAT_CODE":"0000000001","STAT_NAME":"1. 통화","CYCLE":null,"SRCH_YN":"N","ORG_NAME":null}]}}`)
		case strings.HasSuffix(r.URL.Path, "/101Y006"):
			fmt.Fprint(w, `{"StatisticItemList":{"list_total_count":1,"row":[
				{"STAT_CODE":"101Y006","GRP_CODE":"Group1","GRP_NAME":"계정항목","ITEM_CODE":"BBHS00","ITEM_NAME":"M2(평잔, 계절조정계열)","P_ITEM_CODE":null,"P_ITEM_NAME":null,"CYCLE":"M","START_TIME":"200101","END_TIME":"202409","DATA_CNT":285,"UNIT_NAME":"십억원","WEIGHT":null}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "KEY")
	tables, err := c.TableList(context.Background())
	if err != nil {
		t.Fatalf("TableList() error = %v", err)
	}
	if len(tables) != 2 || !tables[0].Searchable || tables[1].Searchable {
		t.Fatalf("tables = %+v", tables)
	}
	if tables[0].CleanName() != "M2 경제주체별 보유현황" {
		t.Errorf("CleanName() = %q", tables[0].CleanName())
	}

	items, err := c.ItemList(context.Background(), "101Y006")
	if err != nil {
		t.Fatalf("ItemList() error = %v", err)
	}
	if len(items) != 1 || items[0].ItemCode != "BBHS00" || items[0].DataCount != 285 || items[0].Cycle != core.Monthly {
		t.Errorf("items = %+v", items)
	}
}

func TestClient_FetchWide(t *testing.T) {
	a := dailyRows("A", 3)
	b := dailyRows("B", 2)
	b[0]["DATA_VALUE"] = "7"
	srv := httptest.NewServer(&fakeECOS{rows: map[string][]map[string]string{"A": a, "B": b}})
	defer srv.Close()

	s := NamedSeries{Key: "t", StatCode: "731Y001", Cycle: core.Daily, Items: []Item{{"A", "a"}, {"B", "b"}}}
	tbl, err := NewClient(srv.URL, "KEY").FetchWide(context.Background(), s,
		time.Date(2024, 1, 1, 0, 0, 0, 0, core.KST), time.Date(2024, 1, 3, 0, 0, 0, 0, core.KST))
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(tbl.Rows))
	}
	if tbl.Rows[0].Time != "20240103" || tbl.Rows[0].Values[1] != 0 {
		t.Errorf("newest row = %+v, want missing B filled with 0", tbl.Rows[0])
	}
	if tbl.Rows[2].Values[1] != 7 {
		t.Errorf("oldest row B = %v, want 7", tbl.Rows[2].Values[1])
	}

	col := tbl.Column(0)
	if len(col.Points) != 3 || col.Points[0].Time != "20240101" {
		t.Errorf("Column(0) = %+v", col)
	}
}

func TestLookupSeries(t *testing.T) {
	s, ok := LookupSeries("m2")
	if !ok || s.StatCode != "101Y006" || len(s.Items) != 5 {
		t.Errorf("LookupSeries(m2) = %+v, %v", s, ok)
	}
	if _, ok := LookupSeries("nope"); ok {
		t.Error("LookupSeries(nope) found")
	}
	for _, s := range Tracked {
		if len(s.Items) > 0 && len(s.Items[0].Code) == 0 {
			t.Errorf("%s has empty item code", s.Key)
		}
	}
}
