// Package core provides number parsing and KRW formatting utilities.
//
// Both public APIs report numbers as strings, sometimes with thousands
// separators or blanks for missing values. These helpers turn them into
// decimals and integers and format amounts for display.
package core

import (
	"errors"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var ErrEmptyNumber = errors.New("empty number")

// ParseNumber converts an API number string to a decimal.
//
// Thousands separators and surrounding blanks are ignored. Blank strings and
// the "-" placeholder used for missing values return ErrEmptyNumber.
//
// Examples:
//
//	ParseNumber("3,912.3") -> 3912.3, nil
//	ParseNumber(" -12 ")   -> -12, nil
//	ParseNumber("")        -> 0, ErrEmptyNumber
func ParseNumber(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return decimal.Zero, ErrEmptyNumber
	}
	return decimal.NewFromString(s)
}

// ParseInt is ParseNumber truncated to an integer. Missing values are 0.
func ParseInt(s string) (int64, error) {
	d, err := ParseNumber(s)
	if errors.Is(err, ErrEmptyNumber) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

// ParseFloat is ParseNumber as a float64. Missing values are 0.
func ParseFloat(s string) (float64, error) {
	d, err := ParseNumber(s)
	if errors.Is(err, ErrEmptyNumber) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// FormatKRW renders v rounded to whole won, e.g. "₩71,300".
func FormatKRW(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return money.New(int64(math.Round(v)), money.KRW).Display()
}

// FormatAmount renders an integer with thousands separators and no symbol.
func FormatAmount(v int64) string {
	s := money.New(v, money.KRW).Display()
	return strings.TrimPrefix(strings.Replace(s, "₩", "", 1), " ")
}
