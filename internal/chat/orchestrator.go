package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vnmchuo/ollama-gateway/internal/metrics"
	"github.com/vnmchuo/ollama-gateway/internal/provider"
	"github.com/vnmchuo/ollama-gateway/internal/usage"
	"github.com/vnmchuo/ollama-gateway/internal/usagelog"
)

// Recorder applies one completion to the usage records.
type Recorder interface {
	Record(ctx context.Context, model string, tokens int, processingTime time.Duration) error
}

// Scheduler runs tasks in the background without blocking the caller.
type Scheduler interface {
	Enqueue(task usage.Task) error
}

type Orchestrator struct {
	provider provider.Provider
	recorder Recorder
	queue    Scheduler
	journal  usagelog.Store
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *zap.Logger
}

type Option func(*Orchestrator)

// WithJournal also appends every completion to a durable journal.
func WithJournal(j usagelog.Store) Option {
	return func(o *Orchestrator) { o.journal = j }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(p provider.Provider, recorder Recorder, queue Scheduler, tracer trace.Tracer, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		provider: p,
		recorder: recorder,
		queue:    queue,
		tracer:   tracer,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Complete validates req, calls the upstream and schedules usage accounting.
// The upstream call is detached from ctx cancellation so a dropped client
// does not abort it; it is still bounded by provider.GenerateTimeout.
func (o *Orchestrator) Complete(ctx context.Context, req *Request, requestID string) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := o.tracer.Start(ctx, "chat.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", requestID),
		attribute.String("model", req.Model),
		attribute.Int("max_tokens", req.MaxTokens),
	)

	upstreamCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), provider.GenerateTimeout)
	defer cancel()

	start := time.Now()
	gen, err := o.provider.Generate(upstreamCtx, &provider.GenerateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Options: provider.Options{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(upstreamCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, provider.ErrTimeout) {
			err = fmt.Errorf("%v: %w", err, provider.ErrTimeout)
		}
		return nil, fmt.Errorf("chat completion for %s: %w", req.Model, err)
	}
	elapsed := time.Since(start)

	resp := &Response{
		Response:       gen.Response,
		Model:          req.Model,
		TokensUsed:     CountTokens(gen.Response),
		ProcessingTime: elapsed.Seconds(),
	}
	span.SetAttributes(
		attribute.Int("tokens_used", resp.TokensUsed),
		attribute.Float64("processing_time", resp.ProcessingTime),
	)
	o.metrics.AddTokens(req.Model, resp.TokensUsed)

	o.scheduleUsage(requestID, req.Model, resp.TokensUsed, elapsed)
	return resp, nil
}

// scheduleUsage hands accounting to the background queue. Failures are
// logged there and never reach the caller.
func (o *Orchestrator) scheduleUsage(requestID, model string, tokens int, elapsed time.Duration) {
	task := usage.Task{
		Name:      "record_usage",
		RequestID: requestID,
		Run: func(ctx context.Context) error {
			var errs []error
			if err := o.recorder.Record(ctx, model, tokens, elapsed); err != nil {
				errs = append(errs, err)
			}
			if o.journal != nil {
				entry := &usagelog.Entry{
					RequestID:    requestID,
					Model:        model,
					TokensUsed:   tokens,
					ProcessingMs: elapsed.Milliseconds(),
				}
				if err := o.journal.LogCompletion(ctx, entry); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		},
	}

	if err := o.queue.Enqueue(task); err != nil {
		o.logger.Warn("usage update not scheduled",
			zap.String("request_id", requestID),
			zap.String("model", model),
			zap.Error(err),
		)
		o.metrics.ObserveUsageUpdate(err)
	}
}

// ListModels returns the upstream catalog.
func (o *Orchestrator) ListModels(ctx context.Context) ([]string, error) {
	ctx, span := o.tracer.Start(ctx, "chat.list_models")
	defer span.End()

	models, err := o.provider.ListModels(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list models: %w", err)
	}
	span.SetAttributes(attribute.Int("models", len(models)))
	return models, nil
}
