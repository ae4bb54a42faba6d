package storage

import (
	"context"
)

const upsertStatTable = `
INSERT INTO stat_tables (stat_code, parent_stat_code, stat_name, cycle, searchable, org_name, extra_info, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(stat_code) DO UPDATE SET
    parent_stat_code = excluded.parent_stat_code,
    stat_name        = excluded.stat_name,
    cycle            = excluded.cycle,
    searchable       = excluded.searchable,
    org_name         = excluded.org_name,
    extra_info       = excluded.extra_info,
    updated_at       = CURRENT_TIMESTAMP
RETURNING id`

type UpsertStatTableParams struct {
	StatCode       string
	ParentStatCode string
	StatName       string
	Cycle          string
	Searchable     bool
	OrgName        string
	ExtraInfo      string
}

func (q *Queries) UpsertStatTable(ctx context.Context, arg UpsertStatTableParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertStatTable,
		arg.StatCode,
		arg.ParentStatCode,
		arg.StatName,
		arg.Cycle,
		arg.Searchable,
		arg.OrgName,
		arg.ExtraInfo,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertStatTableIfMissing = `
INSERT INTO stat_tables (stat_code, stat_name, cycle, searchable)
VALUES (?, ?, ?, 1)
ON CONFLICT(stat_code) DO NOTHING`

type InsertStatTableIfMissingParams struct {
	StatCode string
	StatName string
	Cycle    string
}

func (q *Queries) InsertStatTableIfMissing(ctx context.Context, arg InsertStatTableIfMissingParams) error {
	_, err := q.db.ExecContext(ctx, insertStatTableIfMissing, arg.StatCode, arg.StatName, arg.Cycle)
	return err
}

const setStatTableExtraInfo = `UPDATE stat_tables SET extra_info = ?, updated_at = CURRENT_TIMESTAMP WHERE stat_code = ?`

func (q *Queries) SetStatTableExtraInfo(ctx context.Context, statCode, extraInfo string) error {
	_, err := q.db.ExecContext(ctx, setStatTableExtraInfo, extraInfo, statCode)
	return err
}

const statTableColumns = `id, stat_code, parent_stat_code, stat_name, cycle, searchable, org_name, extra_info`

func scanStatTable(row interface{ Scan(...any) error }) (StatTable, error) {
	var t StatTable
	err := row.Scan(&t.ID, &t.StatCode, &t.ParentStatCode, &t.StatName, &t.Cycle, &t.Searchable, &t.OrgName, &t.ExtraInfo)
	return t, err
}

const getStatTable = `SELECT ` + statTableColumns + ` FROM stat_tables WHERE stat_code = ?`

func (q *Queries) GetStatTable(ctx context.Context, statCode string) (StatTable, error) {
	return scanStatTable(q.db.QueryRowContext(ctx, getStatTable, statCode))
}

const searchStatTables = `SELECT ` + statTableColumns + ` FROM stat_tables
WHERE (stat_name LIKE '%' || ?1 || '%' OR stat_code LIKE ?1 || '%')
  AND (?2 = 0 OR searchable = 1)
ORDER BY stat_code
LIMIT ?3`

type SearchStatTablesParams struct {
	Query          string
	OnlySearchable bool
	Limit          int64
}

func (q *Queries) SearchStatTables(ctx context.Context, arg SearchStatTablesParams) ([]StatTable, error) {
	rows, err := q.db.QueryContext(ctx, searchStatTables, arg.Query, arg.OnlySearchable, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StatTable
	for rows.Next() {
		t, err := scanStatTable(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countStatTables = `SELECT COUNT(*) FROM stat_tables`

func (q *Queries) CountStatTables(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countStatTables).Scan(&n)
	return n, err
}

const upsertStatItem = `
INSERT INTO stat_items (table_id, grp_code, grp_name, item_code, item_name, parent_item_code, parent_item_name,
                        cycle, start_time, end_time, data_count, unit_name, weight)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(table_id, item_code, cycle) DO UPDATE SET
    grp_code         = excluded.grp_code,
    grp_name         = excluded.grp_name,
    item_name        = excluded.item_name,
    parent_item_code = excluded.parent_item_code,
    parent_item_name = excluded.parent_item_name,
    start_time       = excluded.start_time,
    end_time         = excluded.end_time,
    data_count       = excluded.data_count,
    unit_name        = excluded.unit_name,
    weight           = excluded.weight
RETURNING id`

func (q *Queries) UpsertStatItem(ctx context.Context, arg StatItem) (int64, error) {
	row := q.db.QueryRowContext(ctx, upsertStatItem,
		arg.TableID,
		arg.GrpCode,
		arg.GrpName,
		arg.ItemCode,
		arg.ItemName,
		arg.ParentItemCode,
		arg.ParentItemName,
		arg.Cycle,
		arg.StartTime,
		arg.EndTime,
		arg.DataCount,
		arg.UnitName,
		arg.Weight,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertStatItemIfMissing = `
INSERT INTO stat_items (table_id, item_code, item_name, cycle, unit_name)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(table_id, item_code, cycle) DO NOTHING`

func (q *Queries) InsertStatItemIfMissing(ctx context.Context, arg StatItem) error {
	_, err := q.db.ExecContext(ctx, insertStatItemIfMissing, arg.TableID, arg.ItemCode, arg.ItemName, arg.Cycle, arg.UnitName)
	return err
}

const statItemColumns = `id, table_id, grp_code, grp_name, item_code, item_name, parent_item_code, parent_item_name,
       cycle, start_time, end_time, data_count, unit_name, weight`

func scanStatItem(row interface{ Scan(...any) error }) (StatItem, error) {
	var i StatItem
	err := row.Scan(&i.ID, &i.TableID, &i.GrpCode, &i.GrpName, &i.ItemCode, &i.ItemName, &i.ParentItemCode,
		&i.ParentItemName, &i.Cycle, &i.StartTime, &i.EndTime, &i.DataCount, &i.UnitName, &i.Weight)
	return i, err
}

const getStatItem = `SELECT ` + statItemColumns + ` FROM stat_items WHERE table_id = ? AND item_code = ? AND cycle = ?`

type GetStatItemParams struct {
	TableID  int64
	ItemCode string
	Cycle    string
}

func (q *Queries) GetStatItem(ctx context.Context, arg GetStatItemParams) (StatItem, error) {
	return scanStatItem(q.db.QueryRowContext(ctx, getStatItem, arg.TableID, arg.ItemCode, arg.Cycle))
}

const listStatItems = `SELECT ` + statItemColumns + ` FROM stat_items WHERE table_id = ? ORDER BY id`

func (q *Queries) ListStatItems(ctx context.Context, tableID int64) ([]StatItem, error) {
	rows, err := q.db.QueryContext(ctx, listStatItems, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StatItem
	for rows.Next() {
		i, err := scanStatItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
