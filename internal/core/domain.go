package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cycles supported by the ECOS StatisticSearch service.
const (
	Daily     Cycle = "D"
	Monthly   Cycle = "M"
	Quarterly Cycle = "Q"
	Annual    Cycle = "A"
)

// Alert strategies evaluated by the price monitor.
const (
	MaxDrop     Strategy = "max_drop"
	MinRise     Strategy = "min_rise"
	AvgGap      Strategy = "avg_gap"
	ATRTrailing Strategy = "atr_trailing"
)

// Watch item defaults, applied when a watchlist entry omits the field.
const (
	DefaultDays    = 90
	DefaultRatio   = -5.0
	DefaultATRMult = 2.0
)

type (
	Cycle    string
	Strategy string

	// StatTable is one row of the ECOS StatisticTableList.
	StatTable struct {
		ID             int64
		StatCode       string
		ParentStatCode string
		StatName       string
		Cycle          Cycle
		Searchable     bool
		OrgName        string
		ExtraInfo      string
	}

	// StatItem is one row of the ECOS StatisticItemList for a table.
	StatItem struct {
		ID             int64
		TableID        int64
		GroupCode      string
		GroupName      string
		ItemCode       string
		ItemName       string
		ParentItemCode string
		ParentItemName string
		Cycle          Cycle
		StartTime      string
		EndTime        string
		DataCount      int64
		UnitName       string
		Weight         string
	}

	// Observation is a single value of a statistic item at a period.
	Observation struct {
		Time        string // ECOS period text: 20240105, 202401, 2024Q1, 2024
		PeriodStart time.Time
		Value       decimal.Decimal
		StatCode    string
		StatName    string
		ItemCode    string
		ItemName    string
		UnitName    string
	}

	// InvestorFlow is the daily net buying of each investor group on a market.
	InvestorFlow struct {
		Market string
		Date   time.Time

		IndexClose  decimal.Decimal
		IndexChange decimal.Decimal
		ChangeSign  string
		ChangeRate  decimal.Decimal
		IndexOpen   decimal.Decimal
		IndexHigh   decimal.Decimal
		IndexLow    decimal.Decimal
		PrevClose   decimal.Decimal

		ForeignNetQty     int64
		IndividualNetQty  int64
		InstitutionNetQty int64

		// Amounts are in millions of KRW as reported by KIS.
		ForeignNetAmount       int64
		IndividualNetAmount    int64
		InstitutionNetAmount   int64
		SecuritiesNetAmount    int64
		TrustNetAmount         int64
		PrivateEquityNetAmount int64
		BankNetAmount          int64
		InsuranceNetAmount     int64
		MerchantBankNetAmount  int64
		PensionNetAmount       int64
		OtherCorpNetAmount     int64
	}

	// PriceBar is one daily OHLC candle of a stock or ETF.
	PriceBar struct {
		Date   time.Time
		Open   float64
		High   float64
		Low    float64
		Close  float64
		Volume int64
	}

	// WatchItem is a monitored stock with its alert strategies.
	WatchItem struct {
		Code       string     `json:"code"`
		Name       string     `json:"name"`
		Days       int        `json:"days,omitempty"`
		Ratio      *float64   `json:"ratio,omitempty"`
		ATRMult    *float64   `json:"atr_mult,omitempty"`
		Strategies []Strategy `json:"strategies"`
	}

	// Alert is a triggered watch item with the reasons it fired.
	Alert struct {
		ID        string    `json:"id"`
		Code      string    `json:"code"`
		Name      string    `json:"name"`
		Price     float64   `json:"price"`
		Reasons   []string  `json:"reasons"`
		CreatedAt time.Time `json:"created_at"`
	}
)

var (
	ErrInvalidCycle       = errors.New("invalid cycle")
	ErrInvalidStrategy    = errors.New("invalid strategy")
	ErrEmptyCode          = errors.New("empty stock code")
	ErrInvalidWatchDays   = errors.New("invalid watch period")
	ErrInvalidWatchItem   = errors.New("invalid watch item")
	ErrEmptyStatCode      = errors.New("empty stat code")
	ErrInvalidObservation = errors.New("invalid observation")
)

func ParseCycle(s string) (Cycle, error) {
	c := Cycle(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCycle, s)
	}
	return c, nil
}

func (c Cycle) Valid() bool {
	switch c {
	case Daily, Monthly, Quarterly, Annual:
		return true
	}
	return false
}

func (s Strategy) Valid() bool {
	switch s {
	case MaxDrop, MinRise, AvgGap, ATRTrailing:
		return true
	}
	return false
}

// CleanName drops the leading section number ECOS puts in table names,
// e.g. "1.1.3.2.1. M2 경제주체별 보유현황" becomes "M2 경제주체별 보유현황".
func (t StatTable) CleanName() string {
	if i := strings.IndexByte(t.StatName, ' '); i >= 0 {
		return t.StatName[i+1:]
	}
	return t.StatName
}

func (o Observation) Validate() error {
	if strings.TrimSpace(o.Time) == "" {
		return fmt.Errorf("%w: empty time", ErrInvalidObservation)
	}
	if o.PeriodStart.IsZero() {
		return fmt.Errorf("%w: zero period start for %s", ErrInvalidObservation, o.Time)
	}
	return nil
}

// DateKey returns the YYYYMMDD key the flow is stored under.
func (f InvestorFlow) DateKey() string {
	return DateKey(f.Date)
}

// WithDefaults returns a copy with missing fields filled in.
func (w WatchItem) WithDefaults() WatchItem {
	if w.Days == 0 {
		w.Days = DefaultDays
	}
	if w.Ratio == nil {
		r := DefaultRatio
		w.Ratio = &r
	}
	if w.ATRMult == nil {
		m := DefaultATRMult
		w.ATRMult = &m
	}
	return w
}

// RatioValue returns the configured ratio or the default.
func (w WatchItem) RatioValue() float64 {
	if w.Ratio == nil {
		return DefaultRatio
	}
	return *w.Ratio
}

// ATRMultValue returns the configured ATR multiplier or the default.
func (w WatchItem) ATRMultValue() float64 {
	if w.ATRMult == nil {
		return DefaultATRMult
	}
	return *w.ATRMult
}

// BaseCode strips a market suffix such as ".KS" or ".KQ".
func (w WatchItem) BaseCode() string {
	if i := strings.IndexByte(w.Code, '.'); i >= 0 {
		return w.Code[:i]
	}
	return w.Code
}

func (w WatchItem) Validate() error {
	if strings.TrimSpace(w.Code) == "" {
		return ErrEmptyCode
	}
	if w.Days < 0 {
		return fmt.Errorf("%w: %d days", ErrInvalidWatchDays, w.Days)
	}
	if w.ATRMult != nil && *w.ATRMult < 0 {
		return fmt.Errorf("%w: negative atr multiplier", ErrInvalidWatchItem)
	}
	for _, s := range w.Strategies {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStrategy, s)
		}
	}
	return nil
}

// Message renders the alert text sent to chat.
func (a Alert) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 [감시 조건 도달] %s(%s)\n", a.Name, (WatchItem{Code: a.Code}).BaseCode())
	fmt.Fprintf(&b, "현재가: %s\n", FormatKRW(a.Price))
	b.WriteString(strings.Join(a.Reasons, "\n"))
	return b.String()
}
