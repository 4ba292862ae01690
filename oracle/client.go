package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AditiPrabhuA/gomarble/scrape"
)

// Client talks to an Ollama-compatible completion endpoint. The service
// is an opaque capability: one prompt in, one completion out.
type Client struct {
	baseURL string
	model   string
	hc      *http.Client
	logger  *slog.Logger
}

// NewClient creates a completion client for baseURL (e.g.
// "http://localhost:11434") and model.
func NewClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		model:   model,
		hc:      &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete sends one prompt and returns the raw completion text.
// HTTP 429 surfaces as scrape.ErrRateLimit so callers can back off.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
	})
	if err != nil {
		return "", fmt.Errorf("oracle: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("oracle: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("oracle: completion request", "model", c.model, "prompt_bytes", len(payload))
	start := time.Now()

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle: completion request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: completion endpoint throttled", scrape.ErrRateLimit)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("oracle: completion status %d: %s", resp.StatusCode, body)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("oracle: decode response: %w", err)
	}

	c.logger.Debug("oracle: completion done",
		"elapsed", time.Since(start), "response_bytes", len(out.Response))
	return out.Response, nil
}
