package scrape

import "errors"

// ErrInvalidInput is returned when the target URL fails validation.
// Never retried; maps to HTTP 400.
var ErrInvalidInput = errors.New("scrape: invalid input")

// ErrNavigation is returned when the target is unreachable or refuses
// the connection. Retried locally with backoff, then maps to HTTP 502.
var ErrNavigation = errors.New("scrape: navigation failed")

// ErrTimeout is returned when page readiness is not reached in time.
// Retried locally with backoff, then maps to HTTP 504.
var ErrTimeout = errors.New("scrape: timeout")

// ErrSchema is returned when the reasoning service output fails
// validation after the reformulation budget. Maps to HTTP 500.
var ErrSchema = errors.New("scrape: selector schema invalid")

// ErrRateLimit is returned when an external service throttles us past
// the backoff budget. Maps to HTTP 503.
var ErrRateLimit = errors.New("scrape: rate limited")
