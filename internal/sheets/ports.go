// Package sheets defines the spreadsheet export ports.
package sheets

import (
	"context"

	"findash/internal/core"
	"findash/internal/ecos"
)

type (
	// SeriesWriter replaces a tab with the rows of a wide series table.
	SeriesWriter interface {
		WriteSeries(ctx context.Context, t *ecos.WideTable) (ref string, err error)
	}

	// FlowWriter replaces a tab with daily investor flows.
	FlowWriter interface {
		WriteFlows(ctx context.Context, market string, flows []core.InvestorFlow) (ref string, err error)
	}

	Exporter interface {
		SeriesWriter
		FlowWriter
	}
)

// SeriesHeader is the header row of an exported series tab.
func SeriesHeader(t *ecos.WideTable) []any {
	row := make([]any, 0, len(t.Columns)+1)
	row = append(row, "시점")
	for _, c := range t.Columns {
		row = append(row, c.Name)
	}
	return row
}

// SeriesRows renders t oldest period first, one value per column.
func SeriesRows(t *ecos.WideTable) [][]any {
	rows := make([][]any, 0, len(t.Rows)+1)
	rows = append(rows, SeriesHeader(t))
	for i := len(t.Rows) - 1; i >= 0; i-- {
		r := t.Rows[i]
		row := make([]any, 0, len(r.Values)+1)
		row = append(row, r.Time)
		for _, v := range r.Values {
			row = append(row, v)
		}
		rows = append(rows, row)
	}
	return rows
}

var flowHeader = []any{"일자", "지수", "등락률", "외국인", "개인", "기관", "금융투자", "투신", "사모", "은행", "보험", "종금", "연기금", "기타법인"}

// FlowRows renders flows oldest first. Amounts are in millions of KRW.
func FlowRows(flows []core.InvestorFlow) [][]any {
	rows := make([][]any, 0, len(flows)+1)
	rows = append(rows, flowHeader)
	for i := len(flows) - 1; i >= 0; i-- {
		f := flows[i]
		rows = append(rows, []any{
			f.DateKey(),
			f.IndexClose.InexactFloat64(),
			f.ChangeRate.InexactFloat64(),
			f.ForeignNetAmount,
			f.IndividualNetAmount,
			f.InstitutionNetAmount,
			f.SecuritiesNetAmount,
			f.TrustNetAmount,
			f.PrivateEquityNetAmount,
			f.BankNetAmount,
			f.InsuranceNetAmount,
			f.MerchantBankNetAmount,
			f.PensionNetAmount,
			f.OtherCorpNetAmount,
		})
	}
	return rows
}
