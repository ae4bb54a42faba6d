package kis

import (
	"errors"

	"github.com/shopspring/decimal"

	"findash/internal/core"
)

// parser converts KIS number strings and keeps the first error.
type parser struct {
	err error
}

func (p *parser) decimal(s string) decimal.Decimal {
	d, err := core.ParseNumber(s)
	if errors.Is(err, core.ErrEmptyNumber) {
		return decimal.Zero
	}
	if err != nil && p.err == nil {
		p.err = err
	}
	return d
}

func (p *parser) int(s string) int64 {
	v, err := core.ParseInt(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}

func (p *parser) float(s string) float64 {
	v, err := core.ParseFloat(s)
	if err != nil && p.err == nil {
		p.err = err
	}
	return v
}
