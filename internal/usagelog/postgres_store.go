package usagelog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS usage_logs (
		id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		request_id    TEXT NOT NULL,
		model         TEXT NOT NULL,
		tokens_used   INTEGER NOT NULL,
		processing_ms BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS usage_logs_model_created_at ON usage_logs (model, created_at);
`

type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the journal table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create usage_logs: %w", err)
	}
	return nil
}

func (s *PostgresStore) LogCompletion(ctx context.Context, entry *Entry) error {
	query := `
		INSERT INTO usage_logs (request_id, model, tokens_used, processing_ms)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := s.db.QueryRow(ctx, query,
		entry.RequestID, entry.Model, entry.TokensUsed, entry.ProcessingMs,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to log completion: %w", err)
	}

	return nil
}
