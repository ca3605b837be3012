package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/querydock/querydock/internal/history"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) InsertQueryHistory(ctx context.Context, record history.Record) error {
	query := `
INSERT INTO query_history (datasource, engine, query, submit_user, query_id)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query,
		record.Datasource,
		record.Engine,
		record.Query,
		record.User,
		record.QueryID,
	); err != nil {
		return fmt.Errorf("insert query history: %w", err)
	}
	return nil
}

func (r *Repository) StoreError(ctx context.Context, record history.ErrorRecord) error {
	query := `
INSERT INTO query_error (datasource, engine, query_id, query, submit_user, message)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query,
		record.Datasource,
		record.Engine,
		record.QueryID,
		record.Query,
		record.User,
		record.Message,
	); err != nil {
		return fmt.Errorf("store query error: %w", err)
	}
	return nil
}

func (r *Repository) ListQueryHistory(ctx context.Context, datasource, user string, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, datasource, engine, query, submit_user, query_id, submitted_at
FROM query_history
WHERE datasource = $1 AND submit_user = $2
ORDER BY submitted_at DESC
LIMIT $3`, datasource, user, limit)
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]history.Record, 0)
	for rows.Next() {
		var record history.Record
		if err := rows.Scan(
			&record.ID,
			&record.Datasource,
			&record.Engine,
			&record.Query,
			&record.User,
			&record.QueryID,
			&record.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return records, nil
}

func (r *Repository) GetQueryError(ctx context.Context, datasource, queryID string) (history.ErrorRecord, error) {
	query := `
SELECT id, datasource, engine, query_id, query, submit_user, message, occurred_at
FROM query_error
WHERE datasource = $1 AND query_id = $2
ORDER BY occurred_at DESC
LIMIT 1`

	var record history.ErrorRecord
	if err := r.db.QueryRowContext(ctx, query, datasource, queryID).Scan(
		&record.ID,
		&record.Datasource,
		&record.Engine,
		&record.QueryID,
		&record.Query,
		&record.User,
		&record.Message,
		&record.OccurredAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.ErrorRecord{}, history.ErrNotFound
		}
		return history.ErrorRecord{}, fmt.Errorf("get query error: %w", err)
	}
	return record, nil
}
