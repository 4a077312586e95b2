// Package usage maintains per-model usage records in Redis: a request
// counter, a token sum and an incrementally recomputed average latency.
package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnmchuo/ollama-gateway/internal/cache"
)

// Retention is measured from the last update of a record.
const Retention = 7 * 24 * time.Hour

const (
	fieldRequests = "requests"
	fieldTokens   = "tokens"
	fieldAvgTime  = "avg_time"
)

// recordScript applies one completion to a usage record. Redis runs the
// script atomically, so concurrent Record calls on the same key serialize
// and the prior average is always weighted by the prior request count.
//
// KEYS[1] usage key, ARGV[1] tokens, ARGV[2] processing time (s), ARGV[3] ttl (s).
var recordScript = redis.NewScript(`
local requests = redis.call('HINCRBY', KEYS[1], 'requests', 1)
redis.call('HINCRBY', KEYS[1], 'tokens', ARGV[1])
local elapsed = tonumber(ARGV[2])
local avg = elapsed
local prior = redis.call('HGET', KEYS[1], 'avg_time')
if prior then
  avg = (tonumber(prior) * (requests - 1) + elapsed) / requests
end
redis.call('HSET', KEYS[1], 'avg_time', string.format('%.17g', avg))
redis.call('EXPIRE', KEYS[1], ARGV[3])
return requests
`)

// Stats is the read view of a usage record.
type Stats struct {
	Model         string  `json:"model"`
	TotalRequests int64   `json:"total_requests"`
	TotalTokens   int64   `json:"total_tokens"`
	AvgTime       float64 `json:"avg_processing_time"`
}

// Accountant owns the usage:{model} records. Nothing else writes them.
type Accountant struct {
	store     *cache.Client
	retention time.Duration
}

func NewAccountant(store *cache.Client) *Accountant {
	return &Accountant{store: store, retention: Retention}
}

func Key(model string) string {
	return "usage:" + model
}

// Record adds one completion for model and refreshes the record's expiry.
func (a *Accountant) Record(ctx context.Context, model string, tokens int, processingTime time.Duration) error {
	if model == "" {
		return fmt.Errorf("record usage: empty model")
	}
	if tokens < 0 {
		return fmt.Errorf("record usage for %s: negative token count %d", model, tokens)
	}
	seconds := processingTime.Seconds()
	if seconds < 0 {
		seconds = 0
	}

	_, err := a.store.Run(ctx, recordScript, []string{Key(model)},
		tokens,
		strconv.FormatFloat(seconds, 'g', -1, 64),
		int64(a.retention/time.Second),
	)
	if err != nil {
		return fmt.Errorf("record usage for %s: %w", model, err)
	}
	return nil
}

// Stats returns zeros for a model with no record.
func (a *Accountant) Stats(ctx context.Context, model string) (*Stats, error) {
	data, err := a.store.HGetAll(ctx, Key(model))
	if err != nil {
		return nil, fmt.Errorf("read usage for %s: %w", model, err)
	}

	stats := &Stats{Model: model}
	if len(data) == 0 {
		return stats, nil
	}

	// Unparseable fields read as zero.
	if n, convErr := strconv.ParseInt(data[fieldRequests], 10, 64); convErr == nil {
		stats.TotalRequests = n
	}
	if n, convErr := strconv.ParseInt(data[fieldTokens], 10, 64); convErr == nil {
		stats.TotalTokens = n
	}
	if f, convErr := strconv.ParseFloat(data[fieldAvgTime], 64); convErr == nil {
		stats.AvgTime = f
	}
	return stats, nil
}
