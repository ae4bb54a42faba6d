package storage

import (
	"context"
	"database/sql"
)

const upsertStatValue = `
INSERT INTO stat_values (item_id, time, period_start, value, unit_name, item_name, updated_at)
VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(item_id, time) DO UPDATE SET
    period_start = excluded.period_start,
    value        = excluded.value,
    unit_name    = excluded.unit_name,
    item_name    = excluded.item_name,
    updated_at   = CURRENT_TIMESTAMP`

func (q *Queries) UpsertStatValue(ctx context.Context, arg StatValue) error {
	_, err := q.db.ExecContext(ctx, upsertStatValue,
		arg.ItemID,
		arg.Time,
		arg.PeriodStart,
		arg.Value,
		arg.UnitName,
		arg.ItemName,
	)
	return err
}

const latestStatPeriod = `SELECT MAX(period_start) FROM stat_values WHERE item_id = ?`

func (q *Queries) LatestStatPeriod(ctx context.Context, itemID int64) (sql.NullString, error) {
	var s sql.NullString
	err := q.db.QueryRowContext(ctx, latestStatPeriod, itemID).Scan(&s)
	return s, err
}

const listStatValues = `
SELECT item_id, time, period_start, value, unit_name, item_name
FROM stat_values
WHERE item_id = ? AND period_start >= ?
ORDER BY period_start ASC`

type ListStatValuesParams struct {
	ItemID int64
	Since  string
}

func (q *Queries) ListStatValues(ctx context.Context, arg ListStatValuesParams) ([]StatValue, error) {
	rows, err := q.db.QueryContext(ctx, listStatValues, arg.ItemID, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []StatValue
	for rows.Next() {
		var v StatValue
		if err := rows.Scan(&v.ItemID, &v.Time, &v.PeriodStart, &v.Value, &v.UnitName, &v.ItemName); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
