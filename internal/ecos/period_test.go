package ecos

import (
	"errors"
	"testing"
	"time"

	"findash/internal/core"
)

func TestFormatPeriod(t *testing.T) {
	ts := time.Date(2024, 8, 5, 0, 0, 0, 0, core.KST)
	tests := []struct {
		cycle core.Cycle
		want  string
	}{
		{core.Daily, "20240805"},
		{core.Monthly, "202408"},
		{core.Quarterly, "2024Q3"},
		{core.Annual, "2024"},
	}
	for _, tt := range tests {
		t.Run(string(tt.cycle), func(t *testing.T) {
			got, err := FormatPeriod(tt.cycle, ts)
			if err != nil || got != tt.want {
				t.Errorf("FormatPeriod(%s) = %q, %v; want %q", tt.cycle, got, err, tt.want)
			}
		})
	}
	if _, err := FormatPeriod("W", ts); !errors.Is(err, core.ErrInvalidCycle) {
		t.Errorf("FormatPeriod(W) error = %v", err)
	}
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		cycle   core.Cycle
		in      string
		want    time.Time
		wantErr bool
	}{
		{core.Daily, "20240105", time.Date(2024, 1, 5, 0, 0, 0, 0, core.KST), false},
		{core.Monthly, "202402", time.Date(2024, 2, 1, 0, 0, 0, 0, core.KST), false},
		{core.Quarterly, "2024Q4", time.Date(2024, 10, 1, 0, 0, 0, 0, core.KST), false},
		{core.Annual, "1999", time.Date(1999, 1, 1, 0, 0, 0, 0, core.KST), false},
		{core.Quarterly, "2024Q5", time.Time{}, true},
		{core.Quarterly, "202401", time.Time{}, true},
		{core.Monthly, "2024-01", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.cycle)+"/"+tt.in, func(t *testing.T) {
			got, err := ParsePeriod(tt.cycle, tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil || !got.Equal(tt.want) {
				t.Fatalf("ParsePeriod = %v, %v; want %v", got, err, tt.want)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	ts := time.Date(2023, 5, 1, 0, 0, 0, 0, core.KST)
	for _, c := range []core.Cycle{core.Daily, core.Monthly, core.Annual} {
		s, _ := FormatPeriod(c, ts)
		back, err := ParsePeriod(c, s)
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		again, _ := FormatPeriod(c, back)
		if again != s {
			t.Errorf("%s: %q -> %q", c, s, again)
		}
	}
}

func TestExpectedCount(t *testing.T) {
	d := func(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, core.KST) }
	tests := []struct {
		name       string
		cycle      core.Cycle
		start, end time.Time
		want       int
	}{
		{"same day", core.Daily, d(2024, 1, 1), d(2024, 1, 1), 1},
		{"leap year days", core.Daily, d(2024, 1, 1), d(2024, 12, 31), 366},
		{"months across years", core.Monthly, d(2023, 11, 20), d(2024, 2, 1), 4},
		{"quarters", core.Quarterly, d(2023, 3, 31), d(2024, 4, 1), 6},
		{"years", core.Annual, d(2000, 6, 1), d(2024, 1, 1), 25},
		{"end before start", core.Monthly, d(2024, 5, 1), d(2024, 1, 1), 1},
		{"unknown cycle", "X", d(2024, 1, 1), d(2024, 5, 1), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExpectedCount(tt.cycle, tt.start, tt.end); got != tt.want {
				t.Errorf("ExpectedCount = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestBuildURL(t *testing.T) {
	req := SearchRequest{
		StatCode:  "731Y001",
		ItemCodes: []string{"0000001"},
		Cycle:     core.Daily,
		Start:     time.Date(2020, 11, 11, 0, 0, 0, 0, core.KST),
		End:       time.Date(2025, 11, 10, 0, 0, 0, 0, core.KST),
	}
	got, err := BuildURL("https://ecos.bok.or.kr/api/", "KEY", req, 1, 1825)
	if err != nil {
		t.Fatal(err)
	}
	want := "https://ecos.bok.or.kr/api/StatisticSearch/KEY/json/kr/1/1825/731Y001/D/20201111/20251110/0000001"
	if got != want {
		t.Errorf("BuildURL =\n %s\nwant\n %s", got, want)
	}

	req.ItemCodes = []string{"A", "", "B"}
	req.Cycle = core.Quarterly
	got, _ = BuildURL("http://x", "K", req, 1, 10)
	if want := "http://x/StatisticSearch/K/json/kr/1/10/731Y001/Q/2020Q4/2025Q4/A/B"; got != want {
		t.Errorf("BuildURL(Q) = %s, want %s", got, want)
	}

	if _, err := BuildURL("http://x", "K", SearchRequest{Cycle: core.Daily}, 1, 1); !errors.Is(err, core.ErrEmptyStatCode) {
		t.Errorf("empty stat code error = %v", err)
	}
	req.ItemCodes = []string{"1", "2", "3", "4", "5"}
	if _, err := BuildURL("http://x", "K", req, 1, 1); !errors.Is(err, ErrTooManyItems) {
		t.Errorf("five items error = %v", err)
	}
}

func TestMetadataURLs(t *testing.T) {
	if got := TableListURL("http://x", "K", 1, 100); got != "http://x/StatisticTableList/K/json/kr/1/100/" {
		t.Errorf("TableListURL = %s", got)
	}
	if got := ItemListURL("http://x", "K", "101Y006", 1, 100); got != "http://x/StatisticItemList/K/json/kr/1/100/101Y006" {
		t.Errorf("ItemListURL = %s", got)
	}
}
