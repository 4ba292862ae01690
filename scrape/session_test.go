package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

// fakeFetcher serves canned HTML per URL. Unknown URLs fail with
// ErrNavigation, the way a dead page= probe does in production.
type fakeFetcher struct {
	pages     map[string]string
	clickHTML string
	clickURL  string
	navigated []string
}

func (f *fakeFetcher) Navigate(_ context.Context, url string, _ WaitPolicy) (*PageSnapshot, error) {
	f.navigated = append(f.navigated, url)
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("%w: no route to %s", ErrNavigation, url)
	}
	return &PageSnapshot{URL: url, HTML: html, FetchedAt: time.Now()}, nil
}

func (f *fakeFetcher) Click(context.Context, string, WaitPolicy) (*PageSnapshot, error) {
	if f.clickHTML == "" {
		return nil, fmt.Errorf("%w: click target gone", ErrNavigation)
	}
	snap := &PageSnapshot{URL: f.clickURL, HTML: f.clickHTML, FetchedAt: time.Now()}
	f.clickHTML = ""
	return snap, nil
}

type fakePool struct{ f *fakeFetcher }

func (p *fakePool) Acquire(context.Context) (Fetcher, func(), error) {
	return p.f, func() {}, nil
}

type fakeResolver struct {
	selectors SelectorMap
	err       error
}

func (r *fakeResolver) Resolve(context.Context, *PageSnapshot) (SelectorMap, error) {
	if r.err != nil {
		return SelectorMap{}, r.err
	}
	return r.selectors, nil
}

func testService(f *fakeFetcher, r Resolver) *Service {
	return NewService(&fakePool{f: f}, r, Config{
		FetchAttempts: 1,
		RetryBackoff:  time.Millisecond,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

// reviewPageHTML renders n distinct reviews plus an optional next link.
func reviewPageHTML(prefix string, n int, nextHref string) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<div class="review">
			<h3 class="review-title">%s title %d</h3>
			<p class="review-body">Review body %s number %d with enough words to count.</p>
			<span class="review-rating">4 out of 5</span>
			<span class="review-author">%s-author-%d</span>
		</div>`, prefix, i, prefix, i, prefix, i)
	}
	if nextHref != "" {
		fmt.Fprintf(&b, `<a class="next" href="%s">Next</a>`, nextHref)
	}
	return b.String()
}

const productURL = "https://shop.example.com/p/1"

func TestScrape_ThreePagesAllUnique(t *testing.T) {
	// WHAT: three linked pages of ten distinct reviews each yield 30
	// reviews across 3 pages, no error.
	// WHY: the baseline multi-page walk, including the dead page=4
	// probe after the last page that must end as exhaustion.
	f := &fakeFetcher{pages: map[string]string{
		productURL:             reviewPageHTML("a", 10, "?page=2"),
		productURL + "?page=2": reviewPageHTML("b", 10, "?page=3"),
		productURL + "?page=3": reviewPageHTML("c", 10, ""),
	}}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(context.Background(), productURL, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCount != 30 {
		t.Errorf("reviews_count = %d, want 30", res.ReviewsCount)
	}
	if res.PagesWithUniqueReviews != 3 {
		t.Errorf("pages_with_unique_reviews = %d, want 3", res.PagesWithUniqueReviews)
	}
	if res.URL != productURL {
		t.Errorf("url = %q, want the request URL", res.URL)
	}
	if _, err := time.Parse("2006-01-02", res.ScrapeDate); err != nil {
		t.Errorf("scrape_date %q is not YYYY-MM-DD", res.ScrapeDate)
	}
}

func TestScrape_RepeatingPageStalls(t *testing.T) {
	// WHAT: a second page serving the exact same reviews ends the
	// session with 10 reviews and a single counted page.
	// WHY: zero new uniques on a page means pagination is broken or
	// looping; continuing would spin until the page ceiling.
	f := &fakeFetcher{pages: map[string]string{
		productURL:             reviewPageHTML("a", 10, "?page=2"),
		productURL + "?page=2": reviewPageHTML("a", 10, "?page=3"),
	}}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(context.Background(), productURL, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCount != 10 {
		t.Errorf("reviews_count = %d, want 10", res.ReviewsCount)
	}
	if res.PagesWithUniqueReviews != 1 {
		t.Errorf("pages_with_unique_reviews = %d, want 1", res.PagesWithUniqueReviews)
	}
}

func TestScrape_CapStopsMidPage(t *testing.T) {
	// WHAT: max_count=5 against a 10-review page returns exactly 5.
	// WHY: the cap binds at every step, not at page boundaries.
	f := &fakeFetcher{pages: map[string]string{
		productURL: reviewPageHTML("a", 10, "?page=2"),
	}}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(context.Background(), productURL, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCount != 5 {
		t.Errorf("reviews_count = %d, want 5", res.ReviewsCount)
	}
	// The cap was hit on page 1; page 2 must never have been fetched.
	for _, u := range f.navigated {
		if strings.Contains(u, "page=2") {
			t.Error("fetched a page beyond the cap")
		}
	}
}

func TestScrape_ResolverFailureSurfaces(t *testing.T) {
	// WHAT: a resolver that cannot produce usable selectors fails the
	// session with ErrSchema and an empty (not nil) review list.
	// WHY: the HTTP layer maps this to 500 and the empty list keeps the
	// JSON contract intact.
	f := &fakeFetcher{pages: map[string]string{
		productURL: reviewPageHTML("a", 10, ""),
	}}
	svc := testService(f, &fakeResolver{err: fmt.Errorf("%w: malformed completion", ErrSchema)})

	res, err := svc.Scrape(context.Background(), productURL, 0)
	if !errors.Is(err, ErrSchema) {
		t.Fatalf("err = %v, want ErrSchema", err)
	}
	if res == nil {
		t.Fatal("result should accompany the error")
	}
	if res.Reviews == nil || len(res.Reviews) != 0 {
		t.Errorf("reviews = %#v, want empty non-nil slice", res.Reviews)
	}
}

func TestScrape_PartialResultOnMidSessionFailure(t *testing.T) {
	// WHAT: a navigation fault after one good page returns the error
	// and the 10 reviews already collected.
	// WHY: partial success beats total failure; the HTTP layer decides
	// which to serve from this pair.
	f := &fakeFetcher{pages: map[string]string{
		productURL: reviewPageHTML("a", 10, "https://other.example.com/down"),
	}}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(context.Background(), productURL, 0)
	if !errors.Is(err, ErrNavigation) {
		t.Fatalf("err = %v, want ErrNavigation", err)
	}
	if res.ReviewsCount != 10 {
		t.Errorf("reviews_count = %d, want 10", res.ReviewsCount)
	}
}

func TestScrape_TerminatesOnPaginationLoop(t *testing.T) {
	// WHAT: page 2 linking back to page 1 ends the session instead of
	// looping; both pages' reviews are kept.
	// WHY: revisit detection on normalized URLs is the loop breaker.
	f := &fakeFetcher{pages: map[string]string{
		productURL:             reviewPageHTML("a", 10, "?page=2"),
		productURL + "?page=2": reviewPageHTML("b", 10, "/p/1"),
	}}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(context.Background(), productURL, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCount != 20 {
		t.Errorf("reviews_count = %d, want 20", res.ReviewsCount)
	}
	if res.PagesWithUniqueReviews != 2 {
		t.Errorf("pages_with_unique_reviews = %d, want 2", res.PagesWithUniqueReviews)
	}
}

func TestScrape_PageCeiling(t *testing.T) {
	// WHAT: the session stops at MaxPages even while next links keep
	// appearing and every page is fresh.
	// WHY: the ceiling is the last guard against sites that generate
	// endless novel pagination.
	pages := map[string]string{
		productURL: reviewPageHTML("p1", 2, "?page=2"),
	}
	for i := 2; i <= 10; i++ {
		pages[fmt.Sprintf("%s?page=%d", productURL, i)] =
			reviewPageHTML(fmt.Sprintf("p%d", i), 2, fmt.Sprintf("?page=%d", i+1))
	}
	f := &fakeFetcher{pages: pages}
	svc := NewService(&fakePool{f: f}, &fakeResolver{selectors: testSelectors}, Config{
		MaxPages:      3,
		FetchAttempts: 1,
		RetryBackoff:  time.Millisecond,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	res, err := svc.Scrape(context.Background(), productURL, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCount != 6 {
		t.Errorf("reviews_count = %d, want 6 (3 pages × 2)", res.ReviewsCount)
	}
	if len(f.navigated) != 3 {
		t.Errorf("navigated %d times, want 3", len(f.navigated))
	}
}

func TestScrape_ClickPagination(t *testing.T) {
	// WHAT: a script-driven next control is clicked and its page
	// collected like any navigated one.
	// WHY: button-style pagination has no href to follow.
	f := &fakeFetcher{
		pages: map[string]string{
			productURL: reviewPageHTML("a", 10, "javascript:void(0)"),
		},
		clickHTML: reviewPageHTML("b", 10, ""),
		clickURL:  productURL + "?loaded=2",
	}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(context.Background(), productURL, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ReviewsCount != 20 {
		t.Errorf("reviews_count = %d, want 20", res.ReviewsCount)
	}
	if res.PagesWithUniqueReviews != 2 {
		t.Errorf("pages_with_unique_reviews = %d, want 2", res.PagesWithUniqueReviews)
	}
}

func TestScrape_InvalidURL(t *testing.T) {
	// WHAT: a bad page parameter fails before any fetch.
	// WHY: caller mistakes must not consume a browser slot.
	f := &fakeFetcher{pages: map[string]string{}}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(context.Background(), "ftp://nope", 0)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if res != nil {
		t.Error("no result expected for invalid input")
	}
	if len(f.navigated) != 0 {
		t.Error("invalid input must not reach the browser")
	}
}

func TestScrape_CancelledBeforeAnyPage(t *testing.T) {
	// WHAT: cancellation with nothing collected fails with ErrTimeout.
	// WHY: an interrupted empty session has nothing partial to prefer.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeFetcher{pages: map[string]string{
		productURL: reviewPageHTML("a", 10, ""),
	}}
	svc := testService(f, &fakeResolver{selectors: testSelectors})

	res, err := svc.Scrape(ctx, productURL, 0)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if res != nil && res.ReviewsCount != 0 {
		t.Errorf("reviews_count = %d, want 0", res.ReviewsCount)
	}
}
