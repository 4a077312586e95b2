package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vnmchuo/ollama-gateway/internal/chat"
	"github.com/vnmchuo/ollama-gateway/internal/health"
	"github.com/vnmchuo/ollama-gateway/internal/telemetry"
	"github.com/vnmchuo/ollama-gateway/internal/usage"
)

const (
	defaultCacheTTL = 3600           // seconds
	maxCacheTTL     = 30 * 24 * 3600 // seconds

	maxChatBodyBytes  = 1 << 20
	maxCacheBodyBytes = 1 << 20
)

type UsageReader interface {
	Stats(ctx context.Context, model string) (*usage.Stats, error)
}

type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

type ValueStore interface {
	PutValue(ctx context.Context, key string, value json.RawMessage, ttl time.Duration) error
	GetValue(ctx context.Context, key string) (json.RawMessage, bool, error)
}

// ServiceInfo describes the deployment for / and /api/info. Connection
// strings are redacted before they are served.
type ServiceInfo struct {
	Environment string
	OllamaURL   string
	RedisURL    string
	DatabaseURL string
}

type Handler struct {
	chat   *chat.Orchestrator
	usage  UsageReader
	health HealthChecker
	values ValueStore
	info   ServiceInfo
	logger *zap.Logger
}

func NewHandler(orchestrator *chat.Orchestrator, stats UsageReader, checker HealthChecker, values ValueStore, info ServiceInfo, logger *zap.Logger) *Handler {
	return &Handler{
		chat:   orchestrator,
		usage:  stats,
		health: checker,
		values: values,
		info:   info,
		logger: logger,
	}
}

func requestID(r *http.Request) string {
	return chimiddleware.GetReqID(r.Context())
}

// pathSuffix returns the wildcard part of the route, decoded exactly once.
// chi matches on RawPath when the client escaped a '/', and on the already
// decoded Path otherwise.
func pathSuffix(r *http.Request) (string, error) {
	suffix := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return suffix, nil
	}
	return url.PathUnescape(suffix)
}

func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":     "Ollama Gateway",
		"version":     telemetry.ServiceVersion,
		"environment": h.info.Environment,
		"status":      "running",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	features := []string{"Redis Caching", "Usage Accounting", "Health Monitoring", "Metrics Collection"}
	if h.info.DatabaseURL != "" {
		features = append(features, "PostgreSQL Usage Journal")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "Ollama Gateway",
		"version": telemetry.ServiceVersion,
		"environment": map[string]any{
			"name":         h.info.Environment,
			"ollama_url":   redactURL(h.info.OllamaURL),
			"redis_url":    redactURL(h.info.RedisURL),
			"database_url": redactURL(h.info.DatabaseURL),
		},
		"features": features,
		"endpoints": map[string]string{
			"health":  "/health",
			"models":  "/models",
			"chat":    "/chat",
			"usage":   "/usage/{model}",
			"metrics": "/metrics",
			"cache":   "/cache",
			"info":    "/api/info",
		},
	})
}

// redactURL hides credentials. Unparseable values are hidden entirely.
func redactURL(raw string) any {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	return u.String()
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	body := map[string]any{
		"status":   report.Status,
		"services": report.Services,
		"version":  telemetry.ServiceVersion,
	}
	if len(report.Unhealthy) > 0 {
		body["unhealthy_services"] = report.Unhealthy
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) HandleModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.chat.ListModels(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"models": models})
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, err := chat.DecodeRequest(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp, err := h.chat.Complete(r.Context(), req, requestID(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "usage store not available")
		return
	}

	model, err := pathSuffix(r)
	if err != nil || model == "" {
		writeErrorMessage(w, http.StatusBadRequest, "model is required")
		return
	}

	stats, err := h.usage.Stats(r.Context(), model)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type cacheSetRequest struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
	TTL   *int64          `json:"ttl"`
}

func (h *Handler) HandleCacheSet(w http.ResponseWriter, r *http.Request) {
	if h.values == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "cache not available")
		return
	}

	var req cacheSetRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCacheBodyBytes)).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMessage(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" || len(req.Value) == 0 || string(req.Value) == "null" {
		writeErrorMessage(w, http.StatusBadRequest, "key and value are required")
		return
	}
	ttl := int64(defaultCacheTTL)
	if req.TTL != nil {
		ttl = *req.TTL
	}
	if ttl <= 0 || ttl > maxCacheTTL {
		writeErrorMessage(w, http.StatusBadRequest, "ttl must be between 1 and 2592000 seconds")
		return
	}

	if err := h.values.PutValue(r.Context(), req.Key, req.Value, time.Duration(ttl)*time.Second); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"key":    req.Key,
		"ttl":    ttl,
	})
}

func (h *Handler) HandleCacheGet(w http.ResponseWriter, r *http.Request) {
	if h.values == nil {
		writeErrorMessage(w, http.StatusServiceUnavailable, "cache not available")
		return
	}

	key, err := pathSuffix(r)
	if err != nil || key == "" {
		writeErrorMessage(w, http.StatusBadRequest, "key is required")
		return
	}

	value, found, err := h.values.GetValue(r.Context(), key)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !found {
		value = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":   key,
		"value": value,
		"found": found,
	})
}
