package core

import (
	"fmt"
	"time"
)

// KST is the calendar every date key in the system is computed in.
var KST = time.FixedZone("KST", 9*60*60)

const DateKeyLayout = "20060102"

// FlowFloorDate is the earliest investor flow date KIS serves.
const FlowFloorDate = "19830104"

// DateKey formats t as YYYYMMDD in KST.
func DateKey(t time.Time) string {
	return t.In(KST).Format(DateKeyLayout)
}

// ParseDateKey parses a YYYYMMDD key as midnight KST.
func ParseDateKey(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateKeyLayout, s, KST)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date key %q: %w", s, err)
	}
	return t, nil
}

// StartOfDay truncates t to midnight KST.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.In(KST).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, KST)
}

// Preset is a named look-back window offered by the dashboard.
type Preset struct {
	Key   string
	Label string
	Days  int // 0 means the whole history
}

// Presets in display order.
var Presets = []Preset{
	{"1d", "어제", 1},
	{"7d", "최근 7일", 7},
	{"14d", "최근 14일", 14},
	{"30d", "최근 30일", 30},
	{"90d", "최근 90일", 90},
	{"1y", "최근 1년", 365},
	{"2y", "최근 2년", 730},
	{"3y", "최근 3년", 1095},
	{"4y", "최근 4년", 1460},
	{"5y", "최근 5년", 1825},
	{"10y", "최근 10년", 3650},
	{"20y", "최근 20년", 7300},
	{"30y", "최근 30년", 10950},
	{"40y", "최근 40년", 14600},
	{"50y", "최근 50년", 18250},
	{"all", "전체 기간", 0},
}

const DefaultPresetKey = "14d"

// LookupPreset returns the preset for key, falling back to the 14 day window.
func LookupPreset(key string) Preset {
	var fallback Preset
	for _, p := range Presets {
		if p.Key == key {
			return p
		}
		if p.Key == DefaultPresetKey {
			fallback = p
		}
	}
	return fallback
}

// PeriodRange resolves a preset to a [start, end] date range ending today.
// The "all" preset starts at floor.
func PeriodRange(key string, now, floor time.Time) (time.Time, time.Time) {
	end := StartOfDay(now)
	p := LookupPreset(key)
	if p.Days == 0 {
		return StartOfDay(floor), end
	}
	return end.AddDate(0, 0, -p.Days), end
}
