package storage

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Bootstrap creates the relational tables when they do not exist yet.
// Diagnosis sessions live in MongoDB and are not listed here.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'patient',
			phone TEXT,
			gender TEXT,
			birth_date DATE,
			height_cm DOUBLE PRECISION,
			weight_kg DOUBLE PRECISION,
			constitution TEXT,
			avatar_file TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS family_members (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			relationship TEXT NOT NULL,
			gender TEXT,
			birth_date DATE,
			height_cm DOUBLE PRECISION,
			weight_kg DOUBLE PRECISION,
			allergies TEXT,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS medical_reports (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			family_member_id UUID REFERENCES family_members(id) ON DELETE SET NULL,
			title TEXT NOT NULL,
			file_name TEXT NOT NULL,
			file_type TEXT NOT NULL,
			file_size BIGINT NOT NULL DEFAULT 0,
			object_name TEXT NOT NULL,
			extracted_text TEXT,
			report_date DATE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS notification_preferences (
			user_id UUID PRIMARY KEY REFERENCES profiles(id) ON DELETE CASCADE,
			enabled BOOLEAN NOT NULL DEFAULT true,
			categories JSONB NOT NULL DEFAULT '{}',
			quiet_start INT NOT NULL DEFAULT 0,
			quiet_end INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS scheduled_notifications (
			id TEXT PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			body TEXT,
			category TEXT NOT NULL,
			fire_at TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS system_errors (
			id UUID PRIMARY KEY,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS system_prompts (
			id UUID PRIMARY KEY,
			role TEXT NOT NULL,
			name TEXT NOT NULL,
			content TEXT NOT NULL,
			active BOOLEAN NOT NULL DEFAULT false,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS herbs (
			id SERIAL PRIMARY KEY,
			pinyin TEXT,
			name_cn TEXT,
			name_en TEXT,
			category TEXT,
			properties TEXT,
			meridians TEXT,
			functions TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS admin_settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scheduled_notifications_user
			ON scheduled_notifications (user_id, fire_at)`,
		`CREATE INDEX IF NOT EXISTS idx_medical_reports_owner
			ON medical_reports (owner_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			logger.Error("schema bootstrap statement failed", zap.Error(err))
			return err
		}
	}
	return nil
}
