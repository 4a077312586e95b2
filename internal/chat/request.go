package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	DefaultModel       = "llama2"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000

	MinTemperature = 0.0
	MaxTemperature = 2.0
	MaxTokensLimit = 4000
)

type Request struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type Response struct {
	Response       string  `json:"response"`
	Model          string  `json:"model"`
	TokensUsed     int     `json:"tokens_used"`
	ProcessingTime float64 `json:"processing_time"`
}

// ValidationError reports a client-supplied field outside its contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// wireRequest distinguishes omitted fields, which take defaults, from
// explicitly supplied ones, which must be in range.
type wireRequest struct {
	Model       *string  `json:"model"`
	Prompt      *string  `json:"prompt"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// DecodeRequest reads a chat request body, applies defaults for omitted
// fields and validates the result.
func DecodeRequest(r io.Reader) (*Request, error) {
	var wire wireRequest
	dec := json.NewDecoder(r)
	if err := dec.Decode(&wire); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("decode chat request: %w", err)
		}
		return nil, &ValidationError{Field: "body", Reason: "invalid request body"}
	}
	// Exactly one JSON object per request.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Field: "body", Reason: "unexpected data after JSON object"}
	}

	req := &Request{
		Model:       DefaultModel,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
	if wire.Model != nil {
		req.Model = *wire.Model
	}
	if wire.Prompt != nil {
		req.Prompt = *wire.Prompt
	}
	if wire.Temperature != nil {
		req.Temperature = *wire.Temperature
	}
	if wire.MaxTokens != nil {
		req.MaxTokens = *wire.MaxTokens
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

func (r *Request) Validate() error {
	if strings.TrimSpace(r.Model) == "" {
		return &ValidationError{Field: "model", Reason: "must not be empty"}
	}
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	// NaN fails both comparisons, so test for the valid range.
	if !(r.Temperature >= MinTemperature && r.Temperature <= MaxTemperature) {
		return &ValidationError{Field: "temperature", Reason: fmt.Sprintf("must be between %.1f and %.1f", MinTemperature, MaxTemperature)}
	}
	if r.MaxTokens <= 0 || r.MaxTokens > MaxTokensLimit {
		return &ValidationError{Field: "max_tokens", Reason: fmt.Sprintf("must be in (0, %d]", MaxTokensLimit)}
	}
	return nil
}

// CountTokens approximates token usage by whitespace-separated words. It is
// intentionally not a model tokenizer.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}
