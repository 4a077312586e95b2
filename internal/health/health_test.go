package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"

	"github.com/vnmchuo/ollama-gateway/internal/cache"
)

func ok(ctx context.Context) error { return nil }

func TestCheck_AllHealthy(t *testing.T) {
	a := NewAggregator(zap.NewNop(),
		Probe{Name: "inference", Check: ok},
		Probe{Name: "cache", Check: ok},
	)

	r := a.Check(context.Background())
	if r.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", r.Status)
	}
	if r.Services["inference"] != StatusHealthy || r.Services["cache"] != StatusHealthy {
		t.Errorf("Unexpected services %v", r.Services)
	}
	if r.Unhealthy != nil {
		t.Errorf("Expected no unhealthy services, got %v", r.Unhealthy)
	}
}

func TestCheck_CacheUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := cache.New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}
	defer store.Close()
	mr.Close()

	a := NewAggregator(zap.NewNop(),
		Probe{Name: "inference", Timeout: time.Second, Check: ok},
		Probe{Name: "cache", Timeout: time.Second, Check: store.Ping},
	)

	r := a.Check(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", r.Status)
	}
	if r.Services["cache"] != StatusUnhealthy {
		t.Errorf("Expected cache unhealthy, got %s", r.Services["cache"])
	}
	if r.Services["inference"] != StatusHealthy {
		t.Errorf("Expected inference reported independently as healthy, got %s", r.Services["inference"])
	}
}

func TestCheck_TimeoutIsUnhealthy(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	a := NewAggregator(zap.NewNop(),
		Probe{Name: "inference", Timeout: 20 * time.Millisecond, Check: func(ctx context.Context) error {
			<-block // ignores ctx on purpose
			return nil
		}},
		Probe{Name: "cache", Check: ok},
	)

	start := time.Now()
	r := a.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Errorf("Check did not honour the probe timeout")
	}
	if r.Services["inference"] != StatusUnhealthy || r.Status != StatusDegraded {
		t.Errorf("Expected inference unhealthy and degraded status, got %+v", r)
	}
}

func TestCheck_ErrorsAndPanicsAreData(t *testing.T) {
	a := NewAggregator(zap.NewNop(),
		Probe{Name: "inference", Check: func(ctx context.Context) error { return errors.New("connection refused") }},
		Probe{Name: "cache", Check: func(ctx context.Context) error { panic("nil client") }},
	)

	r := a.Check(context.Background())
	if r.Status != StatusDegraded {
		t.Errorf("Expected degraded, got %s", r.Status)
	}
	if r.Services["inference"] != StatusUnhealthy || r.Services["cache"] != StatusUnhealthy {
		t.Errorf("Expected both unhealthy, got %v", r.Services)
	}
	if len(r.Unhealthy) != 2 || r.Unhealthy[0] != "cache" || r.Unhealthy[1] != "inference" {
		t.Errorf("Expected sorted unhealthy list, got %v", r.Unhealthy)
	}
}
