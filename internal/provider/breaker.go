package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker guards a Provider with a circuit breaker. It never retries: an open
// circuit fails fast with ErrUnavailable instead of calling the upstream.
// Ping bypasses the breaker so health probes always reach the backend.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(next Provider) *Breaker {
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		// Rejected prompts or unknown models do not make the backend unhealthy.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var upErr *UpstreamError
			return errors.As(err, &upErr) && upErr.IsClientError()
		},
	}
	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *Breaker) Name() string {
	return b.next.Name()
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func (b *Breaker) ListModels(ctx context.Context) ([]string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ListModels(ctx)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return result.([]string), nil
}

func (b *Breaker) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Generate(ctx, req)
	})
	if err != nil {
		return nil, b.translate(err)
	}
	return result.(*GenerateResponse), nil
}

func (b *Breaker) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func (b *Breaker) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("circuit breaker is open for provider %s: %w", b.Name(), ErrUnavailable)
	}
	return err
}
