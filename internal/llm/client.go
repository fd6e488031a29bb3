// Package llm provides the HTTP client for the local generation
// backend (Ollama's /api/tags and /api/generate contract).
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/thelocalai/thelocalai/internal/httpkit"
)

// errBodyLimit bounds how much of a failure response is embedded in
// error messages.
const errBodyLimit = 400

// SamplingParams are the per-request generation options.
type SamplingParams struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

// Client talks to an Ollama-compatible generation backend. The connect
// and read budgets are deliberately separate: connecting to a local
// daemon should fail fast, while a large model may legitimately take
// minutes to produce a response.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	baseDelay  time.Duration
	logger     *slog.Logger

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

// Config controls client timeouts and retry behavior.
type Config struct {
	URL            string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retries        int           // attempts beyond the first
	BaseDelay      time.Duration // backoff base; doubles per attempt
}

// New creates a generation client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = "http://127.0.0.1:11434"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 240 * time.Second
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(cfg.ReadTimeout),
			httpkit.WithDialTimeout(cfg.ConnectTimeout),
		),
		retries:   cfg.Retries,
		baseDelay: cfg.BaseDelay,
		logger:    logger,
		sleep:     time.Sleep,
	}
}

// tagsResponse is the /api/tags model catalog.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ListModels fetches the backend's model catalog and returns a
// deduplicated, sorted list of model names. Any failure yields an
// empty list; model listing is advisory and must never break the UI.
func (c *Client) ListModels(ctx context.Context, timeout time.Duration) []string {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		c.logger.Warn("ollama: list models failed", "error", err)
		return nil
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("ollama: list models failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("ollama: list models failed", "status", resp.StatusCode)
		httpkit.DrainAndClose(resp.Body, 1024)
		return nil
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		c.logger.Warn("ollama: decode model list failed", "error", err)
		return nil
	}

	seen := make(map[string]bool, len(tags.Models))
	var names []string
	for _, m := range tags.Models {
		if m.Name == "" || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// generateRequest is the /api/generate payload.
type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options SamplingParams `json:"options"`
}

// generateResponse is the /api/generate success body.
type generateResponse struct {
	Response string `json:"response"`
}

// Generate issues a generation call, retrying the full request with
// exponential backoff on any transport error or non-success status.
// On exhaustion it fails with the last underlying error embedded.
// Success returns the trimmed response text.
func (c *Client) Generate(ctx context.Context, model, prompt string, params SamplingParams) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: params,
	})
	if err != nil {
		return "", fmt.Errorf("ollama: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.sleep(c.baseDelay * (1 << (attempt - 1)))
		}

		text, err := c.generateOnce(ctx, model, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		c.logger.Warn("ollama: generate attempt failed",
			"model", model,
			"attempt", attempt+1,
			"error", err,
		)
	}

	return "", fmt.Errorf("ollama: failed after retries: %w", lastErr)
}

func (c *Client) generateOnce(ctx context.Context, model string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama error (%s) %d: %s", model, resp.StatusCode, errorDetail(resp.Body))
	}

	var gr generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return strings.TrimSpace(gr.Response), nil
}

// errorDetail extracts the structured error field from a failure body
// when present, falling back to the raw text, truncated for messages.
func errorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}

	detail := string(raw)
	var structured struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &structured) == nil && structured.Error != "" {
		detail = structured.Error
	}

	if len(detail) > errBodyLimit {
		detail = detail[:errBodyLimit]
	}
	return strings.TrimSpace(detail)
}
