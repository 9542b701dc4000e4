package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ingest-pipeline/pkg/record"
)

type RecordRepository struct {
	pool *pgxpool.Pool
}

// Save upserts by id. A redelivered job may re-save a record it already
// persisted; the second write must land on the same row, not a new one.
func (r *RecordRepository) Save(ctx context.Context, rec *record.Record) error {
	query := `
        INSERT INTO data_records (id, source, value, payload, status)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (id) DO UPDATE SET value = EXCLUDED.value, status = EXCLUDED.status
        RETURNING created_at`
	var payload any
	if len(rec.Payload) > 0 {
		payload = []byte(rec.Payload)
	}
	return r.pool.QueryRow(ctx, query, rec.ID, rec.Source, rec.Value, payload, rec.Status).
		Scan(&rec.CreatedAt)
}

func (r *RecordRepository) History(ctx context.Context, limit int) ([]record.Record, error) {
	query := `SELECT id, source, value, COALESCE(payload, 'null'::jsonb), status, created_at
              FROM data_records ORDER BY created_at DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []record.Record{}
	for rows.Next() {
		var rec record.Record
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Source, &rec.Value, &payload, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if string(payload) != "null" {
			rec.Payload = payload
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
