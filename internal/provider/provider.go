package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Per-call upper bounds applied by inference clients.
const (
	GenerateTimeout   = 60 * time.Second
	ListModelsTimeout = 10 * time.Second
	ProbeTimeout      = 5 * time.Second
)

type GenerateRequest struct {
	Model   string
	Prompt  string
	Options Options
}

type Options struct {
	Temperature float64
	NumPredict  int
}

type GenerateResponse struct {
	Model    string
	Response string
	Done     bool
	// Reported by the backend; informational only.
	EvalCount     int
	TotalDuration time.Duration
}

// Provider is the upstream model-serving backend. Implementations make a
// single attempt per call and never retry.
type Provider interface {
	ListModels(ctx context.Context) ([]string, error)
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Ping(ctx context.Context) error
	Name() string
}

var (
	// ErrTimeout reports that the upstream did not answer within the call bound.
	ErrTimeout = errors.New("upstream timeout")
	// ErrUnavailable reports that the upstream client refuses calls, e.g. an open circuit.
	ErrUnavailable = errors.New("upstream unavailable")
)

// UpstreamError is a reachable upstream answering with a non-success status.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsClientError reports a 4xx answer, which says nothing about upstream health.
func (e *UpstreamError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}
