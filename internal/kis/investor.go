package kis

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"findash/internal/core"
)

const (
	pathInvestorDailyByMarket = "/uapi/domestic-stock/v1/quotations/inquire-investor-daily-by-market"
	trInvestorDailyByMarket   = "FHPTJ04040000"
)

// Market index codes keyed by the market code KIS uses in FID_INPUT_ISCD_1.
var marketIndexCodes = map[string]string{
	"KSP": "0001", // KOSPI
	"KSQ": "1001", // KOSDAQ
}

// InvestorQuery asks for daily investor flows of Market going backwards from
// Date. From is passed as the lower bound; KIS may still return older rows.
type InvestorQuery struct {
	Market string
	Date   time.Time
	From   time.Time
}

type investorRow struct {
	Date            string `json:"stck_bsop_date"`
	IndexClose      string `json:"bstp_nmix_prpr"`
	IndexChange     string `json:"bstp_nmix_prdy_vrss"`
	ChangeSign      string `json:"prdy_vrss_sign"`
	ChangeRate      string `json:"bstp_nmix_prdy_ctrt"`
	IndexOpen       string `json:"bstp_nmix_oprc"`
	IndexHigh       string `json:"bstp_nmix_hgpr"`
	IndexLow        string `json:"bstp_nmix_lwpr"`
	PrevClose       string `json:"stck_prdy_clpr"`
	ForeignQty      string `json:"frgn_ntby_qty"`
	IndividualQty   string `json:"prsn_ntby_qty"`
	InstitutionQty  string `json:"orgn_ntby_qty"`
	ForeignAmt      string `json:"frgn_ntby_tr_pbmn"`
	IndividualAmt   string `json:"prsn_ntby_tr_pbmn"`
	InstitutionAmt  string `json:"orgn_ntby_tr_pbmn"`
	SecuritiesAmt   string `json:"scrt_ntby_tr_pbmn"`
	TrustAmt        string `json:"ivtr_ntby_tr_pbmn"`
	PrivateEqAmt    string `json:"pe_fund_ntby_tr_pbmn"`
	BankAmt         string `json:"bank_ntby_tr_pbmn"`
	InsuranceAmt    string `json:"insu_ntby_tr_pbmn"`
	MerchantBankAmt string `json:"mrbn_ntby_tr_pbmn"`
	PensionAmt      string `json:"fund_ntby_tr_pbmn"`
	OtherCorpAmt    string `json:"etc_corp_ntby_tr_pbmn"`
}

// InvestorDailyByMarket returns one page of daily investor flows, newest first.
func (c *Client) InvestorDailyByMarket(ctx context.Context, q InvestorQuery) ([]core.InvestorFlow, error) {
	index, ok := marketIndexCodes[q.Market]
	if !ok {
		return nil, fmt.Errorf("kis: unknown market %q", q.Market)
	}
	params := url.Values{}
	params.Set("FID_COND_MRKT_DIV_CODE", "U")
	params.Set("FID_INPUT_ISCD", index)
	params.Set("FID_INPUT_DATE_1", core.DateKey(q.Date))
	params.Set("FID_INPUT_ISCD_1", q.Market)
	params.Set("FID_INPUT_DATE_2", core.DateKey(q.From))
	params.Set("FID_INPUT_ISCD_2", index)

	var resp struct {
		envelope
		Output []investorRow `json:"output"`
	}
	if err := c.quote(ctx, pathInvestorDailyByMarket, trInvestorDailyByMarket, params, &resp); err != nil {
		return nil, fmt.Errorf("investor daily %s %s: %w", q.Market, core.DateKey(q.Date), err)
	}
	if err := resp.err(); err != nil {
		return nil, err
	}

	out := make([]core.InvestorFlow, 0, len(resp.Output))
	for _, r := range resp.Output {
		if r.Date == "" {
			continue
		}
		f, err := r.toFlow(q.Market)
		if err != nil {
			return nil, fmt.Errorf("investor daily row %s: %w", r.Date, err)
		}
		out = append(out, f)
	}
	return out, nil
}

func (r investorRow) toFlow(market string) (core.InvestorFlow, error) {
	date, err := core.ParseDateKey(r.Date)
	if err != nil {
		return core.InvestorFlow{}, err
	}
	f := core.InvestorFlow{Market: market, Date: date, ChangeSign: r.ChangeSign}

	p := parser{}
	f.IndexClose = p.decimal(r.IndexClose)
	f.IndexChange = p.decimal(r.IndexChange)
	f.ChangeRate = p.decimal(r.ChangeRate)
	f.IndexOpen = p.decimal(r.IndexOpen)
	f.IndexHigh = p.decimal(r.IndexHigh)
	f.IndexLow = p.decimal(r.IndexLow)
	f.PrevClose = p.decimal(r.PrevClose)
	f.ForeignNetQty = p.int(r.ForeignQty)
	f.IndividualNetQty = p.int(r.IndividualQty)
	f.InstitutionNetQty = p.int(r.InstitutionQty)
	f.ForeignNetAmount = p.int(r.ForeignAmt)
	f.IndividualNetAmount = p.int(r.IndividualAmt)
	f.InstitutionNetAmount = p.int(r.InstitutionAmt)
	f.SecuritiesNetAmount = p.int(r.SecuritiesAmt)
	f.TrustNetAmount = p.int(r.TrustAmt)
	f.PrivateEquityNetAmount = p.int(r.PrivateEqAmt)
	f.BankNetAmount = p.int(r.BankAmt)
	f.InsuranceNetAmount = p.int(r.InsuranceAmt)
	f.MerchantBankNetAmount = p.int(r.MerchantBankAmt)
	f.PensionNetAmount = p.int(r.PensionAmt)
	f.OtherCorpNetAmount = p.int(r.OtherCorpAmt)
	return f, p.err
}
