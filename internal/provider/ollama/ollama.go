package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/vnmchuo/ollama-gateway/internal/provider"
)

type OllamaProvider struct {
	baseURL string
	client  *http.Client

	generateTimeout   time.Duration
	listModelsTimeout time.Duration
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options requestOptions `json:"options"`
}

type requestOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Model         string `json:"model"`
	Response      string `json:"response"`
	Done          bool   `json:"done"`
	EvalCount     int    `json:"eval_count"`
	TotalDuration int64  `json:"total_duration"` // nanoseconds
}

type tagsResponse struct {
	Models []tagModel `json:"models"`
}

type tagModel struct {
	Name string `json:"name"`
}

func New(baseURL string) *OllamaProvider {
	return &OllamaProvider{
		baseURL:           strings.TrimRight(baseURL, "/"),
		client:            &http.Client{},
		generateTimeout:   provider.GenerateTimeout,
		listModelsTimeout: provider.ListModelsTimeout,
	}
}

func (p *OllamaProvider) Name() string {
	return "ollama"
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.listModelsTimeout)
	defer cancel()

	resp, err := p.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, p.classify(ctx, fmt.Errorf("decode tags: %w", err))
	}

	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

func (p *OllamaProvider) Generate(ctx context.Context, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
		Stream: false,
		Options: requestOptions{
			Temperature: req.Options.Temperature,
			NumPredict:  req.Options.NumPredict,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.do(ctx, http.MethodPost, "/api/generate", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, p.statusError(resp)
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, p.classify(ctx, fmt.Errorf("decode generate response: %w", err))
	}

	return &provider.GenerateResponse{
		Model:         genResp.Model,
		Response:      genResp.Response,
		Done:          genResp.Done,
		EvalCount:     genResp.EvalCount,
		TotalDuration: time.Duration(genResp.TotalDuration),
	}, nil
}

// Ping probes the catalog endpoint under the caller's deadline.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	resp, err := p.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return p.statusError(resp)
	}
	return nil
}

func (p *OllamaProvider) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, p.classify(ctx, err)
	}
	return resp, nil
}

func (p *OllamaProvider) statusError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &provider.UpstreamError{
		Provider:   p.Name(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(respBody)),
	}
}

// classify maps deadline expiry onto provider.ErrTimeout and leaves
// everything else as an ordinary transport error.
func (p *OllamaProvider) classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", p.Name(), provider.ErrTimeout)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%s: %w", p.Name(), provider.ErrTimeout)
	}
	return fmt.Errorf("%s request failed: %w", p.Name(), err)
}
