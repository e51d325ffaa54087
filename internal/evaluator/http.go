package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/inantubek/rmnist/pkg/logger"
	"github.com/inantubek/rmnist/pkg/models"
)

// maxResponseBytes bounds how much of a training service reply is read
const maxResponseBytes = 1 << 20

// HTTPEvaluator posts a configuration to a training service and parses the score from its reply.
type HTTPEvaluator struct {
	url        string
	parser     ScoreParser
	headers    map[string]string
	timeout    time.Duration
	httpClient *http.Client
}

// NewHTTPEvaluator creates an evaluator for the training service at url.
// The client carries no timeout of its own; a training run can take minutes.
func NewHTTPEvaluator(url string, parser ScoreParser) *HTTPEvaluator {
	return &HTTPEvaluator{
		url:        url,
		parser:     parser,
		headers:    map[string]string{},
		httpClient: &http.Client{},
	}
}

// WithHeaders adds request headers
func (e *HTTPEvaluator) WithHeaders(headers map[string]string) *HTTPEvaluator {
	for k, v := range headers {
		e.headers[k] = v
	}
	return e
}

// WithTimeout bounds each evaluation. Zero means no bound.
func (e *HTTPEvaluator) WithTimeout(timeout time.Duration) *HTTPEvaluator {
	e.timeout = timeout
	return e
}

// WithClient replaces the HTTP client
func (e *HTTPEvaluator) WithClient(client *http.Client) *HTTPEvaluator {
	e.httpClient = client
	return e
}

// Evaluate sends cfg as JSON and decodes the score from the response
func (e *HTTPEvaluator) Evaluate(ctx context.Context, cfg models.Configuration) (models.Score, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	payload, err := json.Marshal(cfg)
	if err != nil {
		return models.Score{}, fmt.Errorf("failed to marshal configuration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return models.Score{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "rmnist-tuner/1.0")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	logger.Debug("requesting evaluation", "url", e.url, "config", cfg.String())
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return models.Score{}, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return models.Score{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return models.Score{}, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, snippet)
	}

	return e.parser.Parse(body)
}
