package storage

import (
	"context"
)

const insertAlertEvent = `
INSERT INTO alert_events (event_id, code, name, price, reasons, created_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(event_id) DO NOTHING`

func (q *Queries) InsertAlertEvent(ctx context.Context, arg AlertEvent) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertAlertEvent,
		arg.EventID,
		arg.Code,
		arg.Name,
		arg.Price,
		arg.Reasons,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listAlertEvents = `
SELECT id, event_id, code, name, price, reasons, created_at
FROM alert_events
ORDER BY created_at DESC, id DESC
LIMIT ?`

func (q *Queries) ListAlertEvents(ctx context.Context, limit int64) ([]AlertEvent, error) {
	rows, err := q.db.QueryContext(ctx, listAlertEvents, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AlertEvent
	for rows.Next() {
		var e AlertEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.Code, &e.Name, &e.Price, &e.Reasons, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
