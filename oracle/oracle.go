// Package oracle resolves CSS selector maps for unknown page layouts by
// asking an external reasoning service.
//
// A page is reduced to a size-bounded sample (structural skeleton plus a
// visible-text digest), the service proposes selectors for the review
// container and its subfields, and the answer is validated against a
// strict selector-syntax whitelist before anyone applies it. Validated
// maps are cached per (host, DOM-shape fingerprint) with a TTL, and
// concurrent resolutions for the same key share one in-flight call.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AditiPrabhuA/gomarble/scrape"
)

// Config configures the oracle.
type Config struct {
	// OllamaURL is the base URL of the completion endpoint
	// (default: http://localhost:11434).
	OllamaURL string `yaml:"ollama_url"`

	// Model is the completion model name (default: mistral).
	Model string `yaml:"model"`

	// MaxSampleBytes bounds the page evidence sent per request
	// (default: 15000).
	MaxSampleBytes int `yaml:"max_sample_bytes"`

	// Attempts is the total prompt attempts before a schema failure
	// surfaces; attempt two reformulates the request (default: 2).
	Attempts int `yaml:"attempts"`

	// RateLimitRetries bounds backoff retries on throttling
	// (default: 3).
	RateLimitRetries int `yaml:"rate_limit_retries"`

	// RequestTimeout bounds one completion call (default: 60s).
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.OllamaURL == "" {
		c.OllamaURL = "http://localhost:11434"
	}
	if c.Model == "" {
		c.Model = "mistral"
	}
	if c.MaxSampleBytes <= 0 {
		c.MaxSampleBytes = 15000
	}
	if c.Attempts <= 0 {
		c.Attempts = 2
	}
	if c.RateLimitRetries <= 0 {
		c.RateLimitRetries = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Oracle implements scrape.Resolver.
type Oracle struct {
	cfg    Config
	client completer
	cache  *Cache
	group  singleflight.Group
}

// completer is the one-call contract with the reasoning service.
type completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New creates an Oracle using cache for cross-session selector reuse.
func New(cfg Config, cache *Cache) *Oracle {
	cfg.defaults()
	return &Oracle{
		cfg:    cfg,
		client: NewClient(cfg.OllamaURL, cfg.Model, cfg.RequestTimeout, cfg.Logger),
		cache:  cache,
	}
}

// Resolve returns the selector map for a snapshot, from cache when the
// page's host and DOM shape are already known, otherwise via the
// reasoning service. Concurrent misses on the same key share a single
// external call.
func (o *Oracle) Resolve(ctx context.Context, snap *scrape.PageSnapshot) (scrape.SelectorMap, error) {
	host := scrape.HostOf(snap.URL)
	key := CacheKey(host, Fingerprint(snap.HTML))

	if m, ok := o.cache.Get(key); ok {
		o.cfg.Logger.Debug("oracle: cache hit", "host", host)
		return m, nil
	}

	v, err, _ := o.group.Do(key, func() (any, error) {
		// Re-check: an earlier flight may have filled the cache
		// between our miss and joining the group.
		if m, ok := o.cache.Get(key); ok {
			return m, nil
		}
		m, err := o.resolveRemote(ctx, snap)
		if err != nil {
			return scrape.SelectorMap{}, err
		}
		o.cache.Put(key, m)
		return m, nil
	})
	if err != nil {
		return scrape.SelectorMap{}, err
	}
	return v.(scrape.SelectorMap), nil
}

// resolveRemote asks the reasoning service, reformulating once on a
// malformed answer before surfacing a schema failure.
func (o *Oracle) resolveRemote(ctx context.Context, snap *scrape.PageSnapshot) (scrape.SelectorMap, error) {
	sample := BuildSample(snap.HTML, o.cfg.MaxSampleBytes)

	var lastErr error
	for attempt := 0; attempt < o.cfg.Attempts; attempt++ {
		prompt := buildPrompt(sample, attempt > 0)

		completion, err := o.complete(ctx, prompt)
		if err != nil {
			return scrape.SelectorMap{}, err
		}

		m, err := parseSelectorMap(completion)
		if err == nil {
			err = ValidateSelectorMap(&m)
		}
		if err == nil {
			o.cfg.Logger.Info("oracle: selectors resolved",
				"url", snap.URL, "attempt", attempt+1, "container", m.ReviewContainer)
			return m, nil
		}

		lastErr = err
		o.cfg.Logger.Warn("oracle: malformed selector response",
			"url", snap.URL, "attempt", attempt+1, "error", err)
	}

	if errors.Is(lastErr, scrape.ErrSchema) {
		return scrape.SelectorMap{}, lastErr
	}
	return scrape.SelectorMap{}, fmt.Errorf("%w: %v", scrape.ErrSchema, lastErr)
}

// complete calls the service with bounded exponential backoff on
// throttling.
func (o *Oracle) complete(ctx context.Context, prompt string) (string, error) {
	backoff := time.Second
	var lastErr error

	for attempt := 0; attempt <= o.cfg.RateLimitRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		out, err := o.client.Complete(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, scrape.ErrRateLimit) {
			return "", err
		}
	}
	return "", lastErr
}

const promptHeader = `You are given evidence about one e-commerce product page: a structural
outline of its HTML and an excerpt of its visible text. Identify CSS
selectors that locate customer reviews.

Respond with a single JSON object and nothing else:
{
  "review_container": "<selector matching one review block>",
  "title": "<selector for the review title, or empty string>",
  "body": "<selector for the review text>",
  "rating": "<selector for the rating element, or empty string>",
  "reviewer": "<selector for the reviewer name, or empty string>",
  "next_page": "<selector for the next-page control, or empty string>"
}

review_container and body are required. Selectors are evaluated relative
to the container except review_container and next_page. Use only plain
CSS selector syntax.`

const promptReformulation = `Your previous answer was not a valid selector map. Respond again with
ONLY the JSON object described below: no prose, no code fences, no
explanations. Every value must be a plain CSS selector or an empty
string.`

func buildPrompt(sample Sample, reformulated bool) string {
	var b strings.Builder
	if reformulated {
		b.WriteString(promptReformulation)
		b.WriteString("\n\n")
	}
	b.WriteString(promptHeader)
	b.WriteString("\n\nPAGE OUTLINE:\n")
	b.WriteString(sample.Skeleton)
	if sample.Digest != "" {
		b.WriteString("\nVISIBLE TEXT:\n")
		b.WriteString(sample.Digest)
	}
	return b.String()
}

// parseSelectorMap extracts the JSON object from a completion, tolerating
// prose or code fences around it.
func parseSelectorMap(completion string) (scrape.SelectorMap, error) {
	start := strings.IndexByte(completion, '{')
	end := strings.LastIndexByte(completion, '}')
	if start < 0 || end <= start {
		return scrape.SelectorMap{}, fmt.Errorf("%w: no JSON object in response", scrape.ErrSchema)
	}

	var m scrape.SelectorMap
	if err := json.Unmarshal([]byte(completion[start:end+1]), &m); err != nil {
		return scrape.SelectorMap{}, fmt.Errorf("%w: %v", scrape.ErrSchema, err)
	}
	return m, nil
}
