package scrape

import (
	"log/slog"
	"time"
)

// Config controls session behaviour.
type Config struct {
	// MaxPages is the hard ceiling on page fetches per session, the
	// final guard against pagination loops the stall detector cannot
	// see (default: 50).
	MaxPages int `yaml:"max_pages"`

	// DefaultMaxCount is the review cap applied when the caller does
	// not supply one (default: 10000).
	DefaultMaxCount int `yaml:"default_max_count"`

	// FetchAttempts is how many times a page fetch is tried before the
	// session fails (default: 2).
	FetchAttempts int `yaml:"fetch_attempts"`

	// RetryBackoff is the initial delay between fetch attempts,
	// doubling each retry (default: 2s).
	RetryBackoff time.Duration `yaml:"retry_backoff"`

	// PageTimeout bounds readiness waiting for a single page
	// (default: 30s).
	PageTimeout time.Duration `yaml:"page_timeout"`

	// SessionBudget is the wall-clock limit for a whole session;
	// on expiry the session returns whatever it has (default: 5m).
	SessionBudget time.Duration `yaml:"session_budget"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.DefaultMaxCount <= 0 {
		c.DefaultMaxCount = 10000
	}
	if c.FetchAttempts <= 0 {
		c.FetchAttempts = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 30 * time.Second
	}
	if c.SessionBudget <= 0 {
		c.SessionBudget = 5 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
