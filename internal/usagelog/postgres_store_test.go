package usagelog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		}
	}
	return nil
}

type mockDB struct {
	lastSQL  string
	lastArgs []any
	row      *mockRow
	execErr  error
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.lastSQL = sql
	m.lastArgs = args
	return m.row
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.lastSQL = sql
	return pgconn.NewCommandTag("CREATE TABLE"), m.execErr
}

func TestLogCompletion(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	db := &mockDB{row: &mockRow{values: []any{"row-id", created}}}
	s := NewPostgresStore(db)

	entry := &Entry{RequestID: "req-1", Model: "llama2", TokensUsed: 42, ProcessingMs: 1500}
	if err := s.LogCompletion(context.Background(), entry); err != nil {
		t.Fatalf("LogCompletion failed: %v", err)
	}

	if entry.ID != "row-id" || !entry.CreatedAt.Equal(created) {
		t.Errorf("Expected id and created_at to be scanned back, got %+v", entry)
	}
	if !strings.Contains(db.lastSQL, "INSERT INTO usage_logs") {
		t.Errorf("Unexpected SQL %q", db.lastSQL)
	}
	if len(db.lastArgs) != 4 || db.lastArgs[1] != "llama2" || db.lastArgs[2] != 42 {
		t.Errorf("Unexpected args %v", db.lastArgs)
	}
}

func TestLogCompletion_Error(t *testing.T) {
	db := &mockDB{row: &mockRow{err: errors.New("connection reset")}}
	s := NewPostgresStore(db)

	err := s.LogCompletion(context.Background(), &Entry{Model: "llama2"})
	if err == nil || !strings.Contains(err.Error(), "failed to log completion") {
		t.Errorf("Expected wrapped error, got %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db := &mockDB{}
	if err := NewPostgresStore(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	if !strings.Contains(db.lastSQL, "CREATE TABLE IF NOT EXISTS usage_logs") {
		t.Errorf("Unexpected SQL %q", db.lastSQL)
	}

	db.execErr = errors.New("permission denied")
	if err := NewPostgresStore(db).EnsureSchema(context.Background()); err == nil {
		t.Error("Expected error to propagate")
	}
}
