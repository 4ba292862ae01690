package scrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Service runs scrape sessions against a shared browser pool and a
// selector resolver. Sessions are sequential internally; concurrency
// happens across sessions, bounded by the pool.
type Service struct {
	pool     Pool
	resolver Resolver
	cfg      Config
}

// NewService creates a Service.
func NewService(pool Pool, resolver Resolver, cfg Config) *Service {
	cfg.defaults()
	return &Service{pool: pool, resolver: resolver, cfg: cfg}
}

// DefaultMaxCount returns the cap used when the caller supplies none.
func (s *Service) DefaultMaxCount() int {
	return s.cfg.DefaultMaxCount
}

// session is the per-request state. Never persisted, never shared.
type session struct {
	target       string
	agg          *Aggregator
	visited      map[string]bool
	pagesVisited int
	state        State
	startedAt    time.Time
}

// Scrape runs one full session: fetch → resolve selectors → extract →
// aggregate, repeated until a terminal state. A non-nil Result is
// returned alongside the error whenever any page was processed, so
// callers can prefer partial success over total failure.
func (s *Service) Scrape(ctx context.Context, rawURL string, maxCount int) (*Result, error) {
	target, err := NormalizeTargetURL(rawURL)
	if err != nil {
		return nil, err
	}
	if maxCount <= 0 {
		maxCount = s.cfg.DefaultMaxCount
	}

	log := s.cfg.Logger.With("url", target)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.SessionBudget)
	defer cancel()

	fetcher, release, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: browser context: %v", ErrTimeout, err)
	}
	defer release()

	sess := &session{
		target:    target,
		agg:       NewAggregator(maxCount),
		visited:   map[string]bool{},
		state:     StateStart,
		startedAt: time.Now(),
	}

	failure := s.run(ctx, sess, fetcher, log)

	res := s.assemble(sess, rawURL)
	log.Info("scrape: session finished",
		"state", sess.state.String(),
		"pages_visited", sess.pagesVisited,
		"unique_reviews", res.ReviewsCount,
		"elapsed", time.Since(sess.startedAt))
	return res, failure
}

// run drives the paginator state machine to a terminal state. It returns
// the fault that ended the session, nil on clean exhaustion or cap.
func (s *Service) run(ctx context.Context, sess *session, fetcher Fetcher, log *slog.Logger) error {
	wait := WaitPolicy{Timeout: s.cfg.PageTimeout}
	next := NextPage{Kind: NextURL, URL: sess.target}
	probing := false

	for !sess.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return s.interrupt(sess, err)
		}

		snap, err := s.fetchPage(ctx, fetcher, next, wait)
		if err != nil {
			if probing {
				// A synthesized page=N guess that goes nowhere is
				// normal exhaustion, not a fault.
				sess.state = StateExhausted
				return nil
			}
			if ctx.Err() != nil {
				return s.interrupt(sess, ctx.Err())
			}
			sess.state = StateFailed
			return err
		}
		sess.pagesVisited++
		sess.state = StateFetchedPage
		s.markVisited(sess, next, snap)

		selectors, err := s.resolver.Resolve(ctx, snap)
		if err != nil {
			if ctx.Err() != nil {
				return s.interrupt(sess, ctx.Err())
			}
			sess.state = StateFailed
			return err
		}
		wait.ContainerSelector = selectors.ReviewContainer

		candidates := Extract(snap, selectors, sess.pagesVisited)
		added := sess.agg.AddPage(candidates)
		sess.state = StateExtractedPage
		log.Debug("scrape: page extracted",
			"page", sess.pagesVisited, "candidates", len(candidates), "new_unique", added)

		switch {
		case sess.agg.Full():
			sess.state = StateCapped
		case added == 0:
			// Stall: a page with zero new uniques means broken or
			// repeating pagination.
			sess.state = StateExhausted
		case sess.pagesVisited >= s.cfg.MaxPages:
			sess.state = StateExhausted
		default:
			next, probing = s.nextTarget(sess, snap, selectors)
			if next.Kind == NextNone {
				sess.state = StateExhausted
			}
		}
	}
	return nil
}

// nextTarget decides how the next page is reached: the resolved control,
// or a one-shot page= query synthesis when no control is discoverable.
// The bool reports whether the target is a synthesized probe.
func (s *Service) nextTarget(sess *session, snap *PageSnapshot, selectors SelectorMap) (NextPage, bool) {
	next := ResolveNext(snap, selectors)

	switch next.Kind {
	case NextURL:
		if norm, err := NormalizeTargetURL(next.URL); err != nil || sess.visited[norm] {
			return NextPage{Kind: NextNone}, false
		}
		return next, false
	case NextClick:
		return next, false
	}

	if synth := SynthesizeNextURL(snap.URL, sess.pagesVisited+1); synth != "" {
		if norm, err := NormalizeTargetURL(synth); err == nil && !sess.visited[norm] {
			return NextPage{Kind: NextURL, URL: synth}, true
		}
	}
	return NextPage{Kind: NextNone}, false
}

// fetchPage performs one navigation or click with the bounded retry
// budget. Only transport faults are retried; backoff doubles per attempt.
func (s *Service) fetchPage(ctx context.Context, fetcher Fetcher, next NextPage, wait WaitPolicy) (*PageSnapshot, error) {
	var lastErr error
	backoff := s.cfg.RetryBackoff

	for attempt := 0; attempt < s.cfg.FetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var snap *PageSnapshot
		var err error
		switch next.Kind {
		case NextClick:
			snap, err = fetcher.Click(ctx, next.Selector, wait)
		default:
			snap, err = fetcher.Navigate(ctx, next.URL, wait)
		}
		if err == nil {
			return snap, nil
		}
		lastErr = err
		if !errors.Is(err, ErrNavigation) && !errors.Is(err, ErrTimeout) {
			break
		}
	}
	return nil, lastErr
}

// markVisited records every spelling of the page we now know: the URL we
// asked for and the URL the browser settled on after redirects.
func (s *Service) markVisited(sess *session, next NextPage, snap *PageSnapshot) {
	if next.Kind == NextURL {
		if norm, err := NormalizeTargetURL(next.URL); err == nil {
			sess.visited[norm] = true
		}
	}
	if norm, err := NormalizeTargetURL(snap.URL); err == nil {
		sess.visited[norm] = true
	}
}

// interrupt ends the session on cancellation or budget expiry: partial
// results are kept, and the fault is only surfaced when nothing was
// collected.
func (s *Service) interrupt(sess *session, cause error) error {
	if sess.agg.Len() > 0 {
		sess.state = StateCapped
		return nil
	}
	sess.state = StateFailed
	return fmt.Errorf("%w: session interrupted: %v", ErrTimeout, cause)
}

// assemble packages the final aggregator state into the output contract.
func (s *Service) assemble(sess *session, requestURL string) *Result {
	raw := sess.agg.Reviews()
	reviews := make([]Review, len(raw))
	for i, r := range raw {
		reviews[i] = Review{Title: r.Title, Body: r.Body, Rating: r.Rating, Reviewer: r.Reviewer}
	}
	return &Result{
		ReviewsCount:           len(reviews),
		Reviews:                reviews,
		PagesWithUniqueReviews: sess.agg.PagesWithUniqueReviews(),
		URL:                    requestURL,
		ScrapeDate:             sess.startedAt.Format("2006-01-02"),
	}
}
