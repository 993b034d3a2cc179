package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hanfang-health/backend/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// ErrorRecorder writes backend failures into system_errors for the admin
// health dashboard. Recording is best-effort; a failing recorder must never
// take a request down with it.
type ErrorRecorder struct {
	pool *pgxpool.Pool
}

func NewErrorRecorder(pool *pgxpool.Pool) *ErrorRecorder {
	return &ErrorRecorder{pool: pool}
}

func (r *ErrorRecorder) Record(ctx context.Context, source, message, detail string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO system_errors (id, source, message, detail, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, uuid.New().String(), source, message, detail)
	return errors.Wrap(err, "failed to record system error")
}

// Recent returns the newest entries, capped at limit.
func (r *ErrorRecorder) Recent(ctx context.Context, limit int) ([]models.SystemError, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, source, message, COALESCE(detail, ''), created_at
		FROM system_errors
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list system errors")
	}
	defer rows.Close()

	var out []models.SystemError
	for rows.Next() {
		var e models.SystemError
		if err := rows.Scan(&e.ID, &e.Source, &e.Message, &e.Detail, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan system error")
		}
		out = append(out, e)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate system errors")
}

// Prune deletes entries older than the retention window.
func (r *ErrorRecorder) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM system_errors WHERE created_at < $1
	`, time.Now().Add(-retention))
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune system errors")
	}
	return tag.RowsAffected(), nil
}
