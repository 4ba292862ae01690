package scrape

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// textPolicy strips every tag and attribute from user-generated review
// markup before it enters the JSON contract.
var textPolicy = bluemonday.StrictPolicy()

// truncationMarkers cut off the "read more" tails review widgets append
// to collapsed bodies.
var truncationMarkers = regexp.MustCompile(`(?i)\b(?:read more|show more|see more)\b`)

// boilerplate matches container text that is review chrome, not a review.
var boilerplate = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^reviews?$`),
	regexp.MustCompile(`(?i)^customer reviews?$`),
	regexp.MustCompile(`(?i)^(write|see|read|view) (a )?reviews?$`),
	regexp.MustCompile(`(?i)^\d+\s+reviews?$`),
	regexp.MustCompile(`(?i)^showing\b`),
}

// ratingAttrs are element attributes commonly carrying a numeric rating.
var ratingAttrs = []string{"data-rating", "data-score", "data-stars", "data-value", "aria-label"}

// Extract applies a selector map to a snapshot and returns raw review
// candidates. Pure: no side effects, no external calls. Candidates with
// no body text are dropped; missing optional fields yield nil.
func Extract(snap *PageSnapshot, selectors SelectorMap, pageNum int) []RawReview {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		return nil
	}

	var out []RawReview
	doc.Find(selectors.ReviewContainer).Each(func(_ int, container *goquery.Selection) {
		body := selectionText(container, selectors.Body)
		if !validBody(body) {
			return
		}

		r := RawReview{
			Body:       body,
			SourcePage: pageNum,
		}
		if t := selectionText(container, selectors.Title); t != "" {
			r.Title = &t
		}
		if name := selectionText(container, selectors.Reviewer); name != "" {
			r.Reviewer = &name
		}
		if v, ok := extractRating(container, selectors.Rating); ok {
			r.Rating = &v
		}
		out = append(out, r)
	})

	return out
}

// selectionText returns the cleaned text of the first match of sel inside
// the container, or "" when sel is empty or matches nothing.
func selectionText(container *goquery.Selection, sel string) string {
	if sel == "" {
		return ""
	}
	node := container.Find(sel).First()
	if node.Length() == 0 {
		return ""
	}
	raw, err := node.Html()
	if err != nil {
		return cleanText(node.Text())
	}
	return cleanText(textPolicy.Sanitize(raw))
}

// cleanText unescapes entities, collapses whitespace, and cuts the text
// at the first truncation marker.
func cleanText(s string) string {
	s = html.UnescapeString(s)
	if loc := truncationMarkers.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return strings.Join(strings.Fields(s), " ")
}

// validBody rejects empty bodies and review-section chrome that selector
// drift sometimes captures.
func validBody(body string) bool {
	if body == "" {
		return false
	}
	if len(strings.Fields(body)) < 3 {
		return false
	}
	for _, p := range boilerplate {
		if p.MatchString(body) {
			return false
		}
	}
	return true
}

// extractRating pulls a canonical 0–5 rating out of the container: first
// numeric data attributes on the rating element, then its text, then the
// rating element's own attribute set. No recoverable pattern means no
// rating.
func extractRating(container *goquery.Selection, sel string) (float64, bool) {
	if sel == "" {
		return 0, false
	}
	node := container.Find(sel).First()
	if node.Length() == 0 {
		return 0, false
	}

	for _, attr := range ratingAttrs {
		if v, ok := node.Attr(attr); ok {
			if rating, ok := ParseRating(v); ok {
				return rating, true
			}
		}
	}

	return ParseRating(node.Text())
}
