package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/AditiPrabhuA/gomarble/scrape"
)

// loadMoreSelectors are the controls review widgets hide lazy content
// behind; tabs click through them before snapshotting.
var loadMoreSelectors = []string{
	`[class*="load-more"]`,
	`[class*="show-more"]`,
	`[class*="loadMore"]`,
}

// scrollRounds is how many scroll-to-bottom passes flush infinite-scroll
// content before a snapshot.
const scrollRounds = 3

// Tab wraps one Rod page as a scrape.Fetcher: stealth applied, resources
// blocked, lazy content flushed before every snapshot.
type Tab struct {
	page   *rod.Page
	settle time.Duration
	logger *slog.Logger
}

func openTab(mgr *Manager) (*Tab, error) {
	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if len(mgr.cfg.ResourceBlocking) > 0 {
		if err := applyResourceBlocking(page, mgr.cfg.ResourceBlocking); err != nil {
			mgr.cfg.Logger.Warn("browser: resource blocking failed", "error", err)
		}
	}

	return &Tab{
		page:   page,
		settle: mgr.cfg.SettleDelay,
		logger: mgr.cfg.Logger,
	}, nil
}

// Navigate loads a URL, waits for readiness per the policy, flushes lazy
// content, and returns a snapshot of the settled DOM.
func (t *Tab) Navigate(ctx context.Context, url string, wait scrape.WaitPolicy) (*scrape.PageSnapshot, error) {
	pctx := t.page.Context(ctx)

	if err := pctx.Navigate(url); err != nil {
		return nil, classify(err, fmt.Sprintf("navigate %s", url))
	}
	if err := t.waitReady(ctx, wait); err != nil {
		return nil, err
	}
	t.flushLazyContent(ctx)
	return t.snapshot(ctx)
}

// Click activates a next-page control in the live page and snapshots the
// resulting DOM. Sites swap content in place as often as they navigate,
// so no URL change is required.
func (t *Tab) Click(ctx context.Context, selector string, wait scrape.WaitPolicy) (*scrape.PageSnapshot, error) {
	pctx := t.page.Context(ctx).Timeout(wait.Timeout)

	el, err := pctx.Element(selector)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("find %q", selector))
	}
	if err := el.ScrollIntoView(); err != nil {
		t.logger.Debug("browser: scroll into view failed", "selector", selector, "error", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, classify(err, fmt.Sprintf("click %q", selector))
	}

	if err := t.waitReady(ctx, wait); err != nil {
		return nil, err
	}
	t.flushLazyContent(ctx)
	return t.snapshot(ctx)
}

// waitReady waits for the load event and, when a review container
// selector is already known for this template, for its visibility.
// The container wait is best-effort: some templates only render it
// after user interaction.
func (t *Tab) waitReady(ctx context.Context, wait scrape.WaitPolicy) error {
	pctx := t.page.Context(ctx)

	if err := pctx.Timeout(wait.Timeout).WaitLoad(); err != nil {
		return classify(err, "wait load")
	}

	if wait.ContainerSelector != "" {
		containerWait := wait.Timeout / 3
		if _, err := pctx.Timeout(containerWait).Element(wait.ContainerSelector); err != nil {
			t.logger.Debug("browser: container not visible before timeout",
				"selector", wait.ContainerSelector)
		}
	}
	return nil
}

// flushLazyContent scrolls to the bottom a few times and clicks through
// load-more controls so lazily loaded reviews are present in the DOM
// before it is serialized. Always best-effort.
func (t *Tab) flushLazyContent(ctx context.Context) {
	pctx := t.page.Context(ctx)

	lastHeight := 0
	for i := 0; i < scrollRounds; i++ {
		res, err := pctx.Eval(`() => {
			window.scrollTo(0, document.body.scrollHeight);
			return document.body.scrollHeight;
		}`)
		if err != nil {
			return
		}
		t.sleep(ctx)

		height := res.Value.Int()
		if height == lastHeight {
			break
		}
		lastHeight = height
	}

	for _, sel := range loadMoreSelectors {
		// Each click may reveal another control of the same kind;
		// bounded so a sticky button cannot spin forever.
		for i := 0; i < 5; i++ {
			el, err := pctx.Timeout(time.Second).Element(sel)
			if err != nil {
				break
			}
			visible, err := el.Visible()
			if err != nil || !visible {
				break
			}
			if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
				break
			}
			t.sleep(ctx)
		}
	}
}

// snapshot serializes the current DOM with the URL the page settled on.
func (t *Tab) snapshot(ctx context.Context) (*scrape.PageSnapshot, error) {
	pctx := t.page.Context(ctx)

	res, err := pctx.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, classify(err, "serialize DOM")
	}

	info, err := pctx.Info()
	if err != nil {
		return nil, classify(err, "page info")
	}

	return &scrape.PageSnapshot{
		URL:       info.URL,
		HTML:      res.Value.Str(),
		FetchedAt: time.Now(),
	}, nil
}

func (t *Tab) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(t.settle):
	}
}

func (t *Tab) close() {
	if t.page != nil {
		t.page.Close()
	}
}

// classify maps Rod and CDP failures onto the pipeline's error taxonomy:
// deadline problems are timeouts, everything else on the way to a page
// is a navigation fault.
func classify(err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		strings.Contains(err.Error(), "timeout") {
		return fmt.Errorf("%w: %s: %v", scrape.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %v", scrape.ErrNavigation, op, err)
}
