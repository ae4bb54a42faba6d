package http

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/core"
)

// sanitizeInput drops control characters other than tab and newlines, then
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// formatDecimal renders d with thousands separators and places decimals.
func formatDecimal(d decimal.Decimal, places int32) string {
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(places)
	intPart, frac, _ := strings.Cut(fixed, ".")
	whole := decimal.RequireFromString(intPart)
	out := core.FormatAmount(whole.IntPart())
	if frac != "" {
		out += "." + frac
	}
	if neg && !d.Round(places).IsZero() {
		out = "-" + out
	}
	return out
}

// signClass maps a value's sign to a CSS class.
func signClass(v any) string {
	var sign int
	switch x := v.(type) {
	case int64:
		sign = compare(x, 0)
	case float64:
		sign = compare(x, 0)
	case decimal.Decimal:
		sign = x.Sign()
	}
	switch {
	case sign > 0:
		return "up"
	case sign < 0:
		return "down"
	default:
		return "flat"
	}
}

func compare[T int64 | float64](a, b T) int {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	default:
		return 0
	}
}

// dateKeyLabel turns 20240105 into 2024-01-05; other period texts pass through.
func dateKeyLabel(key string) string {
	if t, err := core.ParseDateKey(key); err == nil {
		return t.Format("2006-01-02")
	}
	return key
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"krw":       core.FormatKRW,
		"amount":    core.FormatAmount,
		"dec":       formatDecimal,
		"signClass": signClass,
		"pct":       func(v float64) string { return fmt.Sprintf("%+.2f%%", v) },
		"num":       func(v float64) string { return formatDecimal(decimal.NewFromFloat(v), 2) },
		"date":      func(t time.Time) string { return t.In(core.KST).Format("2006-01-02") },
		"datetime":  func(t time.Time) string { return t.In(core.KST).Format("2006-01-02 15:04") },
		"dateKey":   dateKeyLabel,
		"join":      strings.Join,
	}
}
