package storage

import (
	"context"
	"database/sql"
)

const upsertInvestorFlow = `
INSERT INTO investor_flows (
    market, date, index_close, index_change, change_sign, change_rate, index_open, index_high, index_low, prev_close,
    foreign_net_qty, individual_net_qty, institution_net_qty,
    foreign_net_amount, individual_net_amount, institution_net_amount,
    securities_net_amount, trust_net_amount, private_equity_net_amount, bank_net_amount,
    insurance_net_amount, merchant_bank_net_amount, pension_net_amount, other_corp_net_amount, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(market, date) DO UPDATE SET
    index_close               = excluded.index_close,
    index_change              = excluded.index_change,
    change_sign               = excluded.change_sign,
    change_rate               = excluded.change_rate,
    index_open                = excluded.index_open,
    index_high                = excluded.index_high,
    index_low                 = excluded.index_low,
    prev_close                = excluded.prev_close,
    foreign_net_qty           = excluded.foreign_net_qty,
    individual_net_qty        = excluded.individual_net_qty,
    institution_net_qty       = excluded.institution_net_qty,
    foreign_net_amount        = excluded.foreign_net_amount,
    individual_net_amount     = excluded.individual_net_amount,
    institution_net_amount    = excluded.institution_net_amount,
    securities_net_amount     = excluded.securities_net_amount,
    trust_net_amount          = excluded.trust_net_amount,
    private_equity_net_amount = excluded.private_equity_net_amount,
    bank_net_amount           = excluded.bank_net_amount,
    insurance_net_amount      = excluded.insurance_net_amount,
    merchant_bank_net_amount  = excluded.merchant_bank_net_amount,
    pension_net_amount        = excluded.pension_net_amount,
    other_corp_net_amount     = excluded.other_corp_net_amount,
    updated_at                = CURRENT_TIMESTAMP`

func (q *Queries) UpsertInvestorFlow(ctx context.Context, arg InvestorFlow) error {
	_, err := q.db.ExecContext(ctx, upsertInvestorFlow,
		arg.Market, arg.Date,
		arg.IndexClose, arg.IndexChange, arg.ChangeSign, arg.ChangeRate,
		arg.IndexOpen, arg.IndexHigh, arg.IndexLow, arg.PrevClose,
		arg.ForeignNetQty, arg.IndividualNetQty, arg.InstitutionNetQty,
		arg.ForeignNetAmount, arg.IndividualNetAmount, arg.InstitutionNetAmount,
		arg.SecuritiesNetAmount, arg.TrustNetAmount, arg.PrivateEquityNetAmount, arg.BankNetAmount,
		arg.InsuranceNetAmount, arg.MerchantBankNetAmount, arg.PensionNetAmount, arg.OtherCorpNetAmount,
	)
	return err
}

const latestFlowDate = `SELECT MAX(date) FROM investor_flows WHERE market = ?`

func (q *Queries) LatestFlowDate(ctx context.Context, market string) (sql.NullString, error) {
	var s sql.NullString
	err := q.db.QueryRowContext(ctx, latestFlowDate, market).Scan(&s)
	return s, err
}

const listInvestorFlows = `
SELECT market, date, index_close, index_change, change_sign, change_rate, index_open, index_high, index_low, prev_close,
       foreign_net_qty, individual_net_qty, institution_net_qty,
       foreign_net_amount, individual_net_amount, institution_net_amount,
       securities_net_amount, trust_net_amount, private_equity_net_amount, bank_net_amount,
       insurance_net_amount, merchant_bank_net_amount, pension_net_amount, other_corp_net_amount
FROM investor_flows
WHERE market = ? AND date >= ?
ORDER BY date DESC
LIMIT ?`

type ListInvestorFlowsParams struct {
	Market string
	Since  string
	Limit  int64
}

func (q *Queries) ListInvestorFlows(ctx context.Context, arg ListInvestorFlowsParams) ([]InvestorFlow, error) {
	rows, err := q.db.QueryContext(ctx, listInvestorFlows, arg.Market, arg.Since, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InvestorFlow
	for rows.Next() {
		var f InvestorFlow
		if err := rows.Scan(
			&f.Market, &f.Date,
			&f.IndexClose, &f.IndexChange, &f.ChangeSign, &f.ChangeRate,
			&f.IndexOpen, &f.IndexHigh, &f.IndexLow, &f.PrevClose,
			&f.ForeignNetQty, &f.IndividualNetQty, &f.InstitutionNetQty,
			&f.ForeignNetAmount, &f.IndividualNetAmount, &f.InstitutionNetAmount,
			&f.SecuritiesNetAmount, &f.TrustNetAmount, &f.PrivateEquityNetAmount, &f.BankNetAmount,
			&f.InsuranceNetAmount, &f.MerchantBankNetAmount, &f.PensionNetAmount, &f.OtherCorpNetAmount,
		); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
