package storage

import (
	"context"
	"encoding/json"

	"github.com/hanfang-health/backend/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// NotificationStore is the Postgres-backed server copy of notification state.
type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *NotificationStore) LoadPreferences(ctx context.Context, userID string) (models.NotificationPreferences, error) {
	var prefs models.NotificationPreferences
	var categories []byte

	err := s.pool.QueryRow(ctx, `
		SELECT user_id, enabled, categories, quiet_start, quiet_end, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(&prefs.UserID, &prefs.Enabled, &categories,
		&prefs.QuietStart, &prefs.QuietEnd, &prefs.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return prefs, errors.New("preferences not found")
		}
		return prefs, errors.Wrap(err, "failed to load preferences")
	}

	if err := json.Unmarshal(categories, &prefs.Categories); err != nil {
		return prefs, errors.Wrap(err, "failed to decode category toggles")
	}
	return prefs, nil
}

func (s *NotificationStore) SavePreferences(ctx context.Context, prefs models.NotificationPreferences) error {
	categories, err := json.Marshal(prefs.Categories)
	if err != nil {
		return errors.Wrap(err, "failed to encode category toggles")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notification_preferences (user_id, enabled, categories, quiet_start, quiet_end, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			categories = EXCLUDED.categories,
			quiet_start = EXCLUDED.quiet_start,
			quiet_end = EXCLUDED.quiet_end,
			updated_at = now()
	`, prefs.UserID, prefs.Enabled, categories, prefs.QuietStart, prefs.QuietEnd)
	return errors.Wrap(err, "failed to save preferences")
}

func (s *NotificationStore) ListScheduled(ctx context.Context, userID string) ([]models.ScheduledNotification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, COALESCE(body, ''), category, fire_at, data, created_at
		FROM scheduled_notifications
		WHERE user_id = $1
		ORDER BY fire_at ASC
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scheduled notifications")
	}
	defer rows.Close()

	var out []models.ScheduledNotification
	for rows.Next() {
		var n models.ScheduledNotification
		var data []byte
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Body, &n.Category,
			&n.FireAt, &data, &n.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan scheduled notification")
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &n.Data); err != nil {
				return nil, errors.Wrap(err, "failed to decode notification data")
			}
		}
		out = append(out, n)
	}
	return out, errors.Wrap(rows.Err(), "failed to iterate scheduled notifications")
}

func (s *NotificationStore) SaveScheduled(ctx context.Context, n models.ScheduledNotification) error {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return errors.Wrap(err, "failed to encode notification data")
	}
	if n.Data == nil {
		data = []byte("{}")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO scheduled_notifications (id, user_id, title, body, category, fire_at, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			category = EXCLUDED.category,
			fire_at = EXCLUDED.fire_at,
			data = EXCLUDED.data
	`, n.ID, n.UserID, n.Title, n.Body, n.Category, n.FireAt, data, n.CreatedAt)
	return errors.Wrap(err, "failed to save scheduled notification")
}

func (s *NotificationStore) DeleteScheduled(ctx context.Context, userID, id string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM scheduled_notifications WHERE id = $1 AND user_id = $2
	`, id, userID)
	return errors.Wrap(err, "failed to delete scheduled notification")
}
