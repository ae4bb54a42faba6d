package ecos

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"findash/internal/core"
)

// FormatPeriod renders t as the ECOS period text of the given cycle.
//
//	D: 20240105  M: 202401  Q: 2024Q1  A: 2024
func FormatPeriod(cycle core.Cycle, t time.Time) (string, error) {
	switch cycle {
	case core.Daily:
		return t.Format("20060102"), nil
	case core.Monthly:
		return t.Format("200601"), nil
	case core.Quarterly:
		return fmt.Sprintf("%04dQ%d", t.Year(), quarter(t.Month())), nil
	case core.Annual:
		return t.Format("2006"), nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrInvalidCycle, cycle)
}

// ParsePeriod is the inverse of FormatPeriod and returns the first day of the
// period in KST.
func ParsePeriod(cycle core.Cycle, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch cycle {
	case core.Daily:
		return time.ParseInLocation("20060102", s, core.KST)
	case core.Monthly:
		return time.ParseInLocation("200601", s, core.KST)
	case core.Annual:
		return time.ParseInLocation("2006", s, core.KST)
	case core.Quarterly:
		year, q, ok := strings.Cut(strings.ToUpper(s), "Q")
		if !ok {
			return time.Time{}, fmt.Errorf("parse quarter %q: missing Q", s)
		}
		y, err := strconv.Atoi(year)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse quarter %q: %w", s, err)
		}
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 4 {
			return time.Time{}, fmt.Errorf("parse quarter %q: bad quarter number", s)
		}
		return time.Date(y, time.Month((n-1)*3+1), 1, 0, 0, 0, 0, core.KST), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", core.ErrInvalidCycle, cycle)
}

// ExpectedCount is the number of periods of cycle in the inclusive range
// [start, end]. It is at least 1.
func ExpectedCount(cycle core.Cycle, start, end time.Time) int {
	if end.Before(start) {
		return 1
	}
	var n int
	switch cycle {
	case core.Daily:
		n = int(core.StartOfDay(end).Sub(core.StartOfDay(start)).Hours()/24) + 1
	case core.Monthly:
		n = monthIndex(end) - monthIndex(start) + 1
	case core.Quarterly:
		n = quarterIndex(end) - quarterIndex(start) + 1
	case core.Annual:
		n = end.Year() - start.Year() + 1
	}
	if n < 1 {
		return 1
	}
	return n
}

func quarter(m time.Month) int {
	return (int(m)-1)/3 + 1
}

func monthIndex(t time.Time) int {
	return t.Year()*12 + int(t.Month()) - 1
}

func quarterIndex(t time.Time) int {
	return t.Year()*4 + quarter(t.Month()) - 1
}
