// Package scrape is the adaptive review extraction pipeline.
//
// Given a product page URL it discovers, at request time, where review
// text, ratings, authors and pagination controls live in the rendered
// markup, then walks the paginated result pages collecting deduplicated
// review records until the site is exhausted or a caller cap is reached.
//
// The pipeline:
//
//	browser fetch → oracle selector resolution → extract → aggregate → next page
//
// Selector resolution is delegated to a Resolver (the oracle package);
// page rendering is delegated to a Fetcher (the browser package). Both
// are interfaces here so the paginator can be driven by fakes in tests.
package scrape

import (
	"context"
	"time"
)

// PageSnapshot is the rendered markup of one page at one instant.
// Immutable once captured.
type PageSnapshot struct {
	URL       string
	HTML      string
	FetchedAt time.Time
}

// SelectorMap locates review fields within rendered markup. Selectors are
// opaque CSS strings produced by an external reasoning service and must be
// validated before use. ReviewContainer and Body are mandatory; empty
// optional selectors degrade to null fields in extracted records.
type SelectorMap struct {
	ReviewContainer string `json:"review_container"`
	Title           string `json:"title,omitempty"`
	Body            string `json:"body"`
	Rating          string `json:"rating,omitempty"`
	Reviewer        string `json:"reviewer,omitempty"`
	NextPage        string `json:"next_page,omitempty"`
}

// RawReview is one extracted review candidate before aggregation.
// Rating is on the canonical 0.0–5.0 scale, nil when no numeric pattern
// was recoverable.
type RawReview struct {
	Title      *string
	Body       string
	Rating     *float64
	Reviewer   *string
	SourcePage int
}

// Review is the wire form served to the frontend.
type Review struct {
	Title    *string  `json:"title"`
	Body     string   `json:"body"`
	Rating   *float64 `json:"rating"`
	Reviewer *string  `json:"reviewer"`
}

// Result is the final output contract of a scrape session.
type Result struct {
	ReviewsCount           int      `json:"reviews_count"`
	Reviews                []Review `json:"reviews"`
	PagesWithUniqueReviews int      `json:"pages_with_unique_reviews"`
	URL                    string   `json:"url"`
	ScrapeDate             string   `json:"scrape_date"`
}

// WaitPolicy tells a Fetcher when a page counts as ready: load complete,
// plus visibility of ContainerSelector when one is already known.
type WaitPolicy struct {
	ContainerSelector string
	Timeout           time.Duration
}

// Fetcher drives one browser tab for the duration of a session.
type Fetcher interface {
	// Navigate loads a URL and returns a snapshot of the settled DOM.
	Navigate(ctx context.Context, url string, wait WaitPolicy) (*PageSnapshot, error)
	// Click activates a next-page control on the current page and
	// returns a snapshot of the resulting DOM.
	Click(ctx context.Context, selector string, wait WaitPolicy) (*PageSnapshot, error)
}

// Pool hands out Fetchers from a bounded set of browser contexts.
// Acquire blocks until a slot is free or ctx is done; the returned
// release func must be called on every exit path.
type Pool interface {
	Acquire(ctx context.Context) (Fetcher, func(), error)
}

// Resolver produces a validated SelectorMap for a snapshot.
type Resolver interface {
	Resolve(ctx context.Context, snap *PageSnapshot) (SelectorMap, error)
}
