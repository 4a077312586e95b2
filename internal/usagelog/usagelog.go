// Package usagelog keeps an append-only journal of completions in Postgres.
// It complements the expiring Redis usage records and is optional.
package usagelog

import (
	"context"
	"time"
)

type Entry struct {
	ID           string
	RequestID    string
	Model        string
	TokensUsed   int
	ProcessingMs int64
	CreatedAt    time.Time
}

type Store interface {
	LogCompletion(ctx context.Context, entry *Entry) error
}
