package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Caller-supplied keys live under their own prefix so they can never collide
// with usage records.
const kvPrefix = "kv:"

// PutValue stores a JSON document under a caller key with the given TTL.
func (c *Client) PutValue(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error {
	return c.SetEx(ctx, kvPrefix+key, []byte(value), ttl)
}

// GetValue returns the stored JSON document and whether it was found.
func (c *Client) GetValue(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, err := c.Get(ctx, kvPrefix+key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return json.RawMessage(raw), true, nil
}
