package scrape

import (
	"crypto/sha256"
	"math"
	"strconv"
	"strings"
)

// fingerprintBodyLen is how much normalized body text feeds the review
// fingerprint. Long enough to separate distinct reviews, short enough
// that trailing boilerplate ("read more" tails) cannot split duplicates.
const fingerprintBodyLen = 160

// Fingerprint is the identity key of a review for cross-page dedup:
// a hash over the normalized reviewer, the rating rounded to the nearest
// half star, and the leading normalized body text.
func Fingerprint(r RawReview) [sha256.Size]byte {
	var b strings.Builder

	if r.Reviewer != nil {
		b.WriteString(normalizeForFingerprint(*r.Reviewer))
	}
	b.WriteByte('\x00')

	if r.Rating != nil {
		rounded := math.Round(*r.Rating*2) / 2
		b.WriteString(strconv.FormatFloat(rounded, 'f', 1, 64))
	}
	b.WriteByte('\x00')

	body := normalizeForFingerprint(r.Body)
	if len(body) > fingerprintBodyLen {
		body = body[:fingerprintBodyLen]
	}
	b.WriteString(body)

	return sha256.Sum256([]byte(b.String()))
}

func normalizeForFingerprint(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Aggregator accumulates unique reviews across pages in first-seen order
// and enforces the session cap. It is per-session state, never shared.
type Aggregator struct {
	max          int
	seen         map[[sha256.Size]byte]struct{}
	reviews      []RawReview
	pagesWithNew int
}

// NewAggregator creates an Aggregator capped at max unique reviews.
func NewAggregator(max int) *Aggregator {
	return &Aggregator{
		max:  max,
		seen: make(map[[sha256.Size]byte]struct{}),
	}
}

// AddPage merges one page's candidates, stopping mid-page at the cap.
// Returns how many new unique reviews the page contributed.
func (a *Aggregator) AddPage(candidates []RawReview) int {
	added := 0
	for _, r := range candidates {
		if len(a.reviews) >= a.max {
			break
		}
		fp := Fingerprint(r)
		if _, dup := a.seen[fp]; dup {
			continue
		}
		a.seen[fp] = struct{}{}
		a.reviews = append(a.reviews, r)
		added++
	}
	if added > 0 {
		a.pagesWithNew++
	}
	return added
}

// Full reports whether the cap has been reached.
func (a *Aggregator) Full() bool {
	return len(a.reviews) >= a.max
}

// Len returns the current unique count.
func (a *Aggregator) Len() int {
	return len(a.reviews)
}

// Reviews returns the unique reviews in first-seen order.
func (a *Aggregator) Reviews() []RawReview {
	return a.reviews
}

// PagesWithUniqueReviews counts pages that contributed at least one new
// unique review; duplicate-only pages do not count.
func (a *Aggregator) PagesWithUniqueReviews() int {
	return a.pagesWithNew
}
