package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Probe checks one dependency. A nil error means healthy.
type Probe struct {
	Name    string
	Timeout time.Duration
	Check   func(ctx context.Context) error
}

type Report struct {
	Status    Status            `json:"status"`
	Services  map[string]Status `json:"services"`
	Unhealthy []string          `json:"unhealthy_services,omitempty"` // sorted
}

// Aggregator runs its probes independently and folds them into one status.
// Probe failures are part of the report, never returned as errors.
type Aggregator struct {
	probes []Probe
	logger *zap.Logger
}

func NewAggregator(logger *zap.Logger, probes ...Probe) *Aggregator {
	return &Aggregator{probes: probes, logger: logger}
}

func (a *Aggregator) Check(ctx context.Context) Report {
	results := make(map[string]Status, len(a.probes))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, p := range a.probes {
		wg.Add(1)
		go func(p Probe) {
			defer wg.Done()
			status := StatusHealthy
			if err := a.run(ctx, p); err != nil {
				status = StatusUnhealthy
				a.logger.Warn("health probe failed", zap.String("service", p.Name), zap.Error(err))
			}
			mu.Lock()
			results[p.Name] = status
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	var unhealthy []string
	for name, s := range results {
		if s != StatusHealthy {
			unhealthy = append(unhealthy, name)
		}
	}
	sort.Strings(unhealthy)

	overall := StatusHealthy
	if len(unhealthy) > 0 {
		overall = StatusDegraded
	}
	return Report{Status: overall, Services: results, Unhealthy: unhealthy}
}

// run bounds the probe by its timeout even if Check ignores ctx.
func (a *Aggregator) run(ctx context.Context, p Probe) error {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("probe panicked: %v", r)
			}
		}()
		done <- p.Check(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
