// Package storage persists statistics, investor flows and alert events in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"findash/internal/core"

	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

const (
	periodLayout = "2006-01-02"
	// eventTimeLayout has a fixed width so stored values sort as text.
	eventTimeLayout = "2006-01-02T15:04:05.000000Z07:00"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db)}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// inTx runs fn inside a transaction and commits when it returns nil.
func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// UpsertStatTables stores table metadata keyed by stat code and returns the
// row id of every code. Existing rows keep their ids.
func (r *SQLiteRepository) UpsertStatTables(ctx context.Context, tables []core.StatTable) (map[string]int64, error) {
	ids := make(map[string]int64, len(tables))
	err := r.inTx(ctx, func(q *Queries) error {
		for _, t := range tables {
			id, err := q.UpsertStatTable(ctx, UpsertStatTableParams{
				StatCode:       t.StatCode,
				ParentStatCode: t.ParentStatCode,
				StatName:       t.StatName,
				Cycle:          string(t.Cycle),
				Searchable:     t.Searchable,
				OrgName:        t.OrgName,
				ExtraInfo:      t.ExtraInfo,
			})
			if err != nil {
				return fmt.Errorf("upsert stat table %s: %w", t.StatCode, err)
			}
			ids[t.StatCode] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "Stat tables saved", "component", "storage", "rows", len(tables))
	return ids, nil
}

// UpsertStatItems stores the items of one table.
func (r *SQLiteRepository) UpsertStatItems(ctx context.Context, tableID int64, items []core.StatItem) error {
	return r.inTx(ctx, func(q *Queries) error {
		for _, it := range items {
			if _, err := q.UpsertStatItem(ctx, toStatItemRow(tableID, it)); err != nil {
				return fmt.Errorf("upsert stat item %s: %w", it.ItemCode, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) SetStatTableExtraInfo(ctx context.Context, statCode, info string) error {
	if err := r.queries.SetStatTableExtraInfo(ctx, statCode, info); err != nil {
		return fmt.Errorf("set extra info %s: %w", statCode, err)
	}
	return nil
}

func (r *SQLiteRepository) SearchStatTables(ctx context.Context, query string, onlySearchable bool, limit int) ([]core.StatTable, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.queries.SearchStatTables(ctx, SearchStatTablesParams{
		Query:          strings.TrimSpace(query),
		OnlySearchable: onlySearchable,
		Limit:          int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("search stat tables: %w", err)
	}
	out := make([]core.StatTable, 0, len(rows))
	for _, t := range rows {
		out = append(out, fromStatTableRow(t))
	}
	return out, nil
}

func (r *SQLiteRepository) CountStatTables(ctx context.Context) (int64, error) {
	return r.queries.CountStatTables(ctx)
}

func (r *SQLiteRepository) GetStatTable(ctx context.Context, statCode string) (core.StatTable, error) {
	t, err := r.queries.GetStatTable(ctx, statCode)
	if errors.Is(err, sql.ErrNoRows) {
		return core.StatTable{}, fmt.Errorf("stat table %s: %w", statCode, ErrNotFound)
	}
	if err != nil {
		return core.StatTable{}, fmt.Errorf("get stat table %s: %w", statCode, err)
	}
	return fromStatTableRow(t), nil
}

func (r *SQLiteRepository) ListStatItems(ctx context.Context, tableID int64) ([]core.StatItem, error) {
	rows, err := r.queries.ListStatItems(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("list stat items: %w", err)
	}
	out := make([]core.StatItem, 0, len(rows))
	for _, it := range rows {
		out = append(out, fromStatItemRow(it))
	}
	return out, nil
}

func (r *SQLiteRepository) GetStatItem(ctx context.Context, tableID int64, itemCode string, cycle core.Cycle) (core.StatItem, error) {
	it, err := r.queries.GetStatItem(ctx, GetStatItemParams{TableID: tableID, ItemCode: itemCode, Cycle: string(cycle)})
	if errors.Is(err, sql.ErrNoRows) {
		return core.StatItem{}, fmt.Errorf("stat item %s/%s: %w", itemCode, cycle, ErrNotFound)
	}
	if err != nil {
		return core.StatItem{}, fmt.Errorf("get stat item %s: %w", itemCode, err)
	}
	return fromStatItemRow(it), nil
}

// EnsureStatItem returns the stored item of table, creating minimal table and
// item rows when metadata has not been imported yet.
func (r *SQLiteRepository) EnsureStatItem(ctx context.Context, table core.StatTable, item core.StatItem) (core.StatItem, error) {
	var out StatItem
	err := r.inTx(ctx, func(q *Queries) error {
		if err := q.InsertStatTableIfMissing(ctx, InsertStatTableIfMissingParams{
			StatCode: table.StatCode,
			StatName: table.StatName,
			Cycle:    string(table.Cycle),
		}); err != nil {
			return fmt.Errorf("insert stat table %s: %w", table.StatCode, err)
		}
		t, err := q.GetStatTable(ctx, table.StatCode)
		if err != nil {
			return fmt.Errorf("get stat table %s: %w", table.StatCode, err)
		}
		row := toStatItemRow(t.ID, item)
		if err := q.InsertStatItemIfMissing(ctx, row); err != nil {
			return fmt.Errorf("insert stat item %s: %w", item.ItemCode, err)
		}
		out, err = q.GetStatItem(ctx, GetStatItemParams{TableID: t.ID, ItemCode: item.ItemCode, Cycle: string(item.Cycle)})
		return err
	})
	if err != nil {
		return core.StatItem{}, err
	}
	return fromStatItemRow(out), nil
}

// UpsertStatValues writes observations of one item keyed by period. Writing
// the same period again replaces its value.
func (r *SQLiteRepository) UpsertStatValues(ctx context.Context, itemID int64, obs []core.Observation) (int, error) {
	err := r.inTx(ctx, func(q *Queries) error {
		for _, o := range obs {
			if err := o.Validate(); err != nil {
				return err
			}
			if err := q.UpsertStatValue(ctx, StatValue{
				ItemID:      itemID,
				Time:        o.Time,
				PeriodStart: o.PeriodStart.In(core.KST).Format(periodLayout),
				Value:       o.Value.InexactFloat64(),
				UnitName:    o.UnitName,
				ItemName:    o.ItemName,
			}); err != nil {
				return fmt.Errorf("upsert value %s: %w", o.Time, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(obs), nil
}

// LatestStatTime returns the start of the newest stored period of an item.
func (r *SQLiteRepository) LatestStatTime(ctx context.Context, itemID int64) (time.Time, bool, error) {
	s, err := r.queries.LatestStatPeriod(ctx, itemID)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("latest stat period: %w", err)
	}
	if !s.Valid || s.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.ParseInLocation(periodLayout, s.String, core.KST)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse period %q: %w", s.String, err)
	}
	return t, true, nil
}

// ListStatValues returns observations of an item from since on, oldest first.
func (r *SQLiteRepository) ListStatValues(ctx context.Context, itemID int64, since time.Time) ([]core.Observation, error) {
	rows, err := r.queries.ListStatValues(ctx, ListStatValuesParams{ItemID: itemID, Since: since.In(core.KST).Format(periodLayout)})
	if err != nil {
		return nil, fmt.Errorf("list stat values: %w", err)
	}
	out := make([]core.Observation, 0, len(rows))
	for _, v := range rows {
		start, err := time.ParseInLocation(periodLayout, v.PeriodStart, core.KST)
		if err != nil {
			return nil, fmt.Errorf("parse period %q: %w", v.PeriodStart, err)
		}
		out = append(out, core.Observation{
			Time:        v.Time,
			PeriodStart: start,
			Value:       decimal.NewFromFloat(v.Value),
			ItemName:    v.ItemName,
			UnitName:    v.UnitName,
		})
	}
	return out, nil
}

// LatestFlowDate returns the newest stored date of market as YYYYMMDD, or
// core.FlowFloorDate when nothing is stored.
func (r *SQLiteRepository) LatestFlowDate(ctx context.Context, market string) (string, error) {
	s, err := r.queries.LatestFlowDate(ctx, market)
	if err != nil {
		return "", fmt.Errorf("latest flow date %s: %w", market, err)
	}
	if !s.Valid || s.String == "" {
		return core.FlowFloorDate, nil
	}
	return s.String, nil
}

// UpsertInvestorFlows writes flows keyed by (market, date).
func (r *SQLiteRepository) UpsertInvestorFlows(ctx context.Context, market string, flows []core.InvestorFlow) (int, error) {
	err := r.inTx(ctx, func(q *Queries) error {
		for _, f := range flows {
			if err := q.UpsertInvestorFlow(ctx, toFlowRow(market, f)); err != nil {
				return fmt.Errorf("upsert flow %s: %w", f.DateKey(), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(flows) > 0 {
		slog.InfoContext(ctx, "Investor flows saved", "component", "storage", "market", market, "rows", len(flows))
	}
	return len(flows), nil
}

// ListInvestorFlows returns flows of market from since on, newest first.
// A limit of zero or less returns every row.
func (r *SQLiteRepository) ListInvestorFlows(ctx context.Context, market string, since time.Time, limit int) ([]core.InvestorFlow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.queries.ListInvestorFlows(ctx, ListInvestorFlowsParams{Market: market, Since: core.DateKey(since), Limit: int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("list investor flows %s: %w", market, err)
	}
	out := make([]core.InvestorFlow, 0, len(rows))
	for _, row := range rows {
		f, err := fromFlowRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// InsertAlertEvent records an alert once per event id. It reports whether a
// new row was written.
func (r *SQLiteRepository) InsertAlertEvent(ctx context.Context, a core.Alert) (bool, error) {
	if a.ID == "" {
		return false, errors.New("insert alert event: empty event id")
	}
	n, err := r.queries.InsertAlertEvent(ctx, AlertEvent{
		EventID:   a.ID,
		Code:      a.Code,
		Name:      a.Name,
		Price:     a.Price,
		Reasons:   strings.Join(a.Reasons, "\n"),
		CreatedAt: a.CreatedAt.UTC().Format(eventTimeLayout),
	})
	if err != nil {
		return false, fmt.Errorf("insert alert event: %w", err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListAlertEvents(ctx context.Context, limit int) ([]core.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.queries.ListAlertEvents(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list alert events: %w", err)
	}
	out := make([]core.Alert, 0, len(rows))
	for _, e := range rows {
		created, err := time.Parse(eventTimeLayout, e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("parse alert time %q: %w", e.CreatedAt, err)
		}
		var reasons []string
		if e.Reasons != "" {
			reasons = strings.Split(e.Reasons, "\n")
		}
		out = append(out, core.Alert{
			ID:        e.EventID,
			Code:      e.Code,
			Name:      e.Name,
			Price:     e.Price,
			Reasons:   reasons,
			CreatedAt: created,
		})
	}
	return out, nil
}

func fromStatTableRow(t StatTable) core.StatTable {
	return core.StatTable{
		ID:             t.ID,
		StatCode:       t.StatCode,
		ParentStatCode: t.ParentStatCode,
		StatName:       t.StatName,
		Cycle:          core.Cycle(t.Cycle),
		Searchable:     t.Searchable,
		OrgName:        t.OrgName,
		ExtraInfo:      t.ExtraInfo,
	}
}

func toStatItemRow(tableID int64, it core.StatItem) StatItem {
	return StatItem{
		TableID:        tableID,
		GrpCode:        it.GroupCode,
		GrpName:        it.GroupName,
		ItemCode:       it.ItemCode,
		ItemName:       it.ItemName,
		ParentItemCode: it.ParentItemCode,
		ParentItemName: it.ParentItemName,
		Cycle:          string(it.Cycle),
		StartTime:      it.StartTime,
		EndTime:        it.EndTime,
		DataCount:      it.DataCount,
		UnitName:       it.UnitName,
		Weight:         it.Weight,
	}
}

func fromStatItemRow(it StatItem) core.StatItem {
	return core.StatItem{
		ID:             it.ID,
		TableID:        it.TableID,
		GroupCode:      it.GrpCode,
		GroupName:      it.GrpName,
		ItemCode:       it.ItemCode,
		ItemName:       it.ItemName,
		ParentItemCode: it.ParentItemCode,
		ParentItemName: it.ParentItemName,
		Cycle:          core.Cycle(it.Cycle),
		StartTime:      it.StartTime,
		EndTime:        it.EndTime,
		DataCount:      it.DataCount,
		UnitName:       it.UnitName,
		Weight:         it.Weight,
	}
}

func toFlowRow(market string, f core.InvestorFlow) InvestorFlow {
	return InvestorFlow{
		Market:                 market,
		Date:                   f.DateKey(),
		IndexClose:             f.IndexClose.InexactFloat64(),
		IndexChange:            f.IndexChange.InexactFloat64(),
		ChangeSign:             f.ChangeSign,
		ChangeRate:             f.ChangeRate.InexactFloat64(),
		IndexOpen:              f.IndexOpen.InexactFloat64(),
		IndexHigh:              f.IndexHigh.InexactFloat64(),
		IndexLow:               f.IndexLow.InexactFloat64(),
		PrevClose:              f.PrevClose.InexactFloat64(),
		ForeignNetQty:          f.ForeignNetQty,
		IndividualNetQty:       f.IndividualNetQty,
		InstitutionNetQty:      f.InstitutionNetQty,
		ForeignNetAmount:       f.ForeignNetAmount,
		IndividualNetAmount:    f.IndividualNetAmount,
		InstitutionNetAmount:   f.InstitutionNetAmount,
		SecuritiesNetAmount:    f.SecuritiesNetAmount,
		TrustNetAmount:         f.TrustNetAmount,
		PrivateEquityNetAmount: f.PrivateEquityNetAmount,
		BankNetAmount:          f.BankNetAmount,
		InsuranceNetAmount:     f.InsuranceNetAmount,
		MerchantBankNetAmount:  f.MerchantBankNetAmount,
		PensionNetAmount:       f.PensionNetAmount,
		OtherCorpNetAmount:     f.OtherCorpNetAmount,
	}
}

func fromFlowRow(row InvestorFlow) (core.InvestorFlow, error) {
	date, err := core.ParseDateKey(row.Date)
	if err != nil {
		return core.InvestorFlow{}, err
	}
	return core.InvestorFlow{
		Market:                 row.Market,
		Date:                   date,
		IndexClose:             decimal.NewFromFloat(row.IndexClose),
		IndexChange:            decimal.NewFromFloat(row.IndexChange),
		ChangeSign:             row.ChangeSign,
		ChangeRate:             decimal.NewFromFloat(row.ChangeRate),
		IndexOpen:              decimal.NewFromFloat(row.IndexOpen),
		IndexHigh:              decimal.NewFromFloat(row.IndexHigh),
		IndexLow:               decimal.NewFromFloat(row.IndexLow),
		PrevClose:              decimal.NewFromFloat(row.PrevClose),
		ForeignNetQty:          row.ForeignNetQty,
		IndividualNetQty:       row.IndividualNetQty,
		InstitutionNetQty:      row.InstitutionNetQty,
		ForeignNetAmount:       row.ForeignNetAmount,
		IndividualNetAmount:    row.IndividualNetAmount,
		InstitutionNetAmount:   row.InstitutionNetAmount,
		SecuritiesNetAmount:    row.SecuritiesNetAmount,
		TrustNetAmount:         row.TrustNetAmount,
		PrivateEquityNetAmount: row.PrivateEquityNetAmount,
		BankNetAmount:          row.BankNetAmount,
		InsuranceNetAmount:     row.InsuranceNetAmount,
		MerchantBankNetAmount:  row.MerchantBankNetAmount,
		PensionNetAmount:       row.PensionNetAmount,
		OtherCorpNetAmount:     row.OtherCorpNetAmount,
	}, nil
}
