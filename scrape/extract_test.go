package scrape

import (
	"testing"
	"time"
)

var testSelectors = SelectorMap{
	ReviewContainer: "div.review",
	Title:           ".review-title",
	Body:            ".review-body",
	Rating:          ".review-rating",
	Reviewer:        ".review-author",
	NextPage:        "a.next",
}

func snapshotOf(html string) *PageSnapshot {
	return &PageSnapshot{URL: "https://shop.example.com/p/1", HTML: html, FetchedAt: time.Now()}
}

func TestExtract_FullReview(t *testing.T) {
	// WHAT: a complete review container yields all four fields.
	// WHY: the happy path across every field at once.
	snap := snapshotOf(`
		<div class="review">
			<h3 class="review-title">Great blender</h3>
			<p class="review-body">Crushes ice without complaint. Quiet enough for mornings.</p>
			<span class="review-rating">4 out of 5</span>
			<span class="review-author">Dana K.</span>
		</div>`)

	got := Extract(snap, testSelectors, 1)
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
	r := got[0]
	if r.Title == nil || *r.Title != "Great blender" {
		t.Errorf("title = %v", r.Title)
	}
	if r.Body != "Crushes ice without complaint. Quiet enough for mornings." {
		t.Errorf("body = %q", r.Body)
	}
	if r.Rating == nil || *r.Rating != 4.0 {
		t.Errorf("rating = %v", r.Rating)
	}
	if r.Reviewer == nil || *r.Reviewer != "Dana K." {
		t.Errorf("reviewer = %v", r.Reviewer)
	}
	if r.SourcePage != 1 {
		t.Errorf("source page = %d", r.SourcePage)
	}
}

func TestExtract_MissingOptionalFields(t *testing.T) {
	// WHAT: a body-only review survives with nil title, rating, reviewer.
	// WHY: absent fields must be null in output, never empty strings or
	// zeroes, and must not drop the review.
	snap := snapshotOf(`
		<div class="review">
			<p class="review-body">Does exactly what it says on the tin.</p>
		</div>`)

	got := Extract(snap, testSelectors, 2)
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
	r := got[0]
	if r.Title != nil || r.Rating != nil || r.Reviewer != nil {
		t.Errorf("optional fields should be nil: %+v", r)
	}
}

func TestExtract_DropsBodylessContainer(t *testing.T) {
	// WHAT: containers matching the selector but holding no body text
	// are dropped.
	// WHY: a review is defined by its body; the rest is decoration.
	snap := snapshotOf(`
		<div class="review"><span class="review-rating">★★★★★</span></div>
		<div class="review"><p class="review-body">Kept one real review for contrast here.</p></div>`)

	got := Extract(snap, testSelectors, 1)
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
}

func TestExtract_DropsBoilerplate(t *testing.T) {
	// WHAT: section chrome like "Customer Reviews" and "128 reviews" is
	// rejected even when the container selector catches it.
	// WHY: loose selectors from the resolver sometimes match the widget
	// header; chrome must not inflate counts.
	snap := snapshotOf(`
		<div class="review"><p class="review-body">Customer Reviews</p></div>
		<div class="review"><p class="review-body">128 reviews</p></div>
		<div class="review"><p class="review-body">too short</p></div>`)

	if got := Extract(snap, testSelectors, 1); len(got) != 0 {
		t.Errorf("got %d reviews, want 0", len(got))
	}
}

func TestExtract_StripsMarkupAndTruncationTail(t *testing.T) {
	// WHAT: nested tags are flattened and the body is cut at "Read more".
	// WHY: collapsed widgets append the expander label to the visible
	// text; it is chrome, not review content.
	snap := snapshotOf(`
		<div class="review">
			<p class="review-body">Sturdy <b>metal</b> frame, no wobble at all. <a href="#">Read more</a></p>
		</div>`)

	got := Extract(snap, testSelectors, 1)
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
	if got[0].Body != "Sturdy metal frame, no wobble at all." {
		t.Errorf("body = %q", got[0].Body)
	}
}

func TestExtract_RatingFromDataAttribute(t *testing.T) {
	// WHAT: a numeric data attribute wins over glyph-only text.
	// WHY: widgets often render stars as CSS and keep the value in an
	// attribute; the attribute is the authoritative source.
	snap := snapshotOf(`
		<div class="review">
			<p class="review-body">Holds a charge for nearly two weeks.</p>
			<span class="review-rating" data-rating="3.5">★★★★★</span>
		</div>`)

	got := Extract(snap, testSelectors, 1)
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
	if got[0].Rating == nil || *got[0].Rating != 3.5 {
		t.Errorf("rating = %v, want 3.5", got[0].Rating)
	}
}

func TestExtract_RatingFromAriaLabel(t *testing.T) {
	// WHAT: aria-label text like "Rated 4.0 out of 5 stars" parses.
	// WHY: accessible widgets carry the rating only in the label.
	snap := snapshotOf(`
		<div class="review">
			<p class="review-body">Arrived early and well packaged too.</p>
			<div class="review-rating" aria-label="Rated 4.0 out of 5 stars"></div>
		</div>`)

	got := Extract(snap, testSelectors, 1)
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
	if got[0].Rating == nil || *got[0].Rating != 4.0 {
		t.Errorf("rating = %v, want 4.0", got[0].Rating)
	}
}

func TestExtract_UnparseableRatingIsNil(t *testing.T) {
	// WHAT: rating text with no recoverable number yields nil, not zero.
	// WHY: zero is a real rating value; absence must stay distinct.
	snap := snapshotOf(`
		<div class="review">
			<p class="review-body">The color is nothing like the photos.</p>
			<span class="review-rating">Verified purchase</span>
		</div>`)

	got := Extract(snap, testSelectors, 1)
	if len(got) != 1 {
		t.Fatalf("got %d reviews, want 1", len(got))
	}
	if got[0].Rating != nil {
		t.Errorf("rating = %v, want nil", *got[0].Rating)
	}
}
