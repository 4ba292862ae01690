package scrape

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// State is the paginator's position in its lifecycle. Exhausted, Capped
// and Failed are terminal.
type State int

const (
	StateStart State = iota
	StateFetchedPage
	StateExtractedPage
	StateExhausted
	StateCapped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateFetchedPage:
		return "fetched_page"
	case StateExtractedPage:
		return "extracted_page"
	case StateExhausted:
		return "exhausted"
	case StateCapped:
		return "capped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether the session is finished in this state.
func (s State) Terminal() bool {
	return s == StateExhausted || s == StateCapped || s == StateFailed
}

// NextKind tags how the next page is reached.
type NextKind int

const (
	// NextNone means no further page control was found.
	NextNone NextKind = iota
	// NextURL means the control is a link; navigate to URL.
	NextURL
	// NextClick means the control has no usable href; click Selector
	// in the live page.
	NextClick
)

// NextPage is the tagged "how to reach the next page" variant, so the
// paginator handles link- and button-style pagination uniformly.
type NextPage struct {
	Kind     NextKind
	URL      string
	Selector string
}

// ResolveNext inspects the snapshot for the next-page control named by the
// selector map. An anchor with a resolvable href becomes a NextURL target
// (resolved against the page URL); any other visible match becomes a
// click target. No selector or no match means NextNone.
func ResolveNext(snap *PageSnapshot, selectors SelectorMap) NextPage {
	if selectors.NextPage == "" {
		return NextPage{Kind: NextNone}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return NextPage{Kind: NextNone}
	}

	node := doc.Find(selectors.NextPage).First()
	if node.Length() == 0 {
		return NextPage{Kind: NextNone}
	}

	if disabled(node) {
		return NextPage{Kind: NextNone}
	}

	if href, ok := node.Attr("href"); ok {
		if target := resolveHref(snap.URL, href); target != "" {
			return NextPage{Kind: NextURL, URL: target}
		}
	}
	// Anchors nested one level down ("li.next a").
	if a := node.Find("a[href]").First(); a.Length() > 0 {
		if href, ok := a.Attr("href"); ok {
			if target := resolveHref(snap.URL, href); target != "" {
				return NextPage{Kind: NextURL, URL: target}
			}
		}
	}

	return NextPage{Kind: NextClick, Selector: selectors.NextPage}
}

func disabled(node *goquery.Selection) bool {
	if _, ok := node.Attr("disabled"); ok {
		return true
	}
	if cls, ok := node.Attr("class"); ok && strings.Contains(strings.ToLower(cls), "disabled") {
		return true
	}
	if v, ok := node.Attr("aria-disabled"); ok && v == "true" {
		return true
	}
	return false
}

// resolveHref resolves href against the page URL, rejecting javascript:
// pseudo-links and empty fragments that would reload the same page.
func resolveHref(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	target := base.ResolveReference(ref)
	if target.Scheme != "http" && target.Scheme != "https" {
		return ""
	}
	target.Fragment = ""
	return target.String()
}

// SynthesizeNextURL guesses the next page by incrementing (or adding) a
// page query parameter, the convention most review widgets follow when no
// explicit control is discoverable. Returns "" when the URL cannot carry
// one.
func SynthesizeNextURL(current string, nextPageNum int) string {
	parsed, err := url.Parse(current)
	if err != nil {
		return ""
	}
	q := parsed.Query()
	q.Set("page", strconv.Itoa(nextPageNum))
	parsed.RawQuery = q.Encode()
	return parsed.String()
}
