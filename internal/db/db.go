package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"hire-realtime/internal/config"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", zap.Int("statements", len(migrations)))
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
            id TEXT PRIMARY KEY,
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            title TEXT,
            created_by TEXT NOT NULL,
            direct_key TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_message_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (is_group OR direct_key IS NOT NULL)
        );`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            content JSONB NOT NULL,
            is_forwarded BOOLEAN NOT NULL DEFAULT FALSE,
            state TEXT NOT NULL DEFAULT 'active' CHECK (state IN ('active', 'edited', 'deleted')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            deleted_at TIMESTAMPTZ
        );`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
            ON messages (conversation_id, created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS evaluation_jobs (
            id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            file_url TEXT NOT NULL,
            file_name TEXT NOT NULL,
            file_type TEXT NOT NULL,
            job_description TEXT NOT NULL,
            ocr_text TEXT NOT NULL DEFAULT '',
            step TEXT NOT NULL,
            status TEXT NOT NULL,
            progress INT NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
            attempts INT NOT NULL DEFAULT 0,
            max_attempts INT NOT NULL DEFAULT 0,
            next_retry_at TIMESTAMPTZ,
            last_model TEXT NOT NULL DEFAULT '',
            result JSONB,
            error TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            completed_at TIMESTAMPTZ
        );`,
	`CREATE INDEX IF NOT EXISTS idx_evaluation_jobs_status ON evaluation_jobs (status);`,
	`CREATE INDEX IF NOT EXISTS idx_evaluation_jobs_completed ON evaluation_jobs (completed_at) WHERE step = 'completed';`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
