package oracle

import (
	"fmt"
	"regexp"

	"github.com/andybalholm/cascadia"

	"github.com/AditiPrabhuA/gomarble/scrape"
)

const maxSelectorLen = 256

// selectorSyntax is the whitelist of characters a CSS selector from the
// reasoning service may contain. The produced map is an untrusted
// artifact; anything outside plain selector syntax is rejected before
// it touches a document or a live page.
var selectorSyntax = regexp.MustCompile(`^[A-Za-z0-9 \t,>+~.#*_:()\[\]="'|^$-]+$`)

// ValidateSelectorMap checks an externally produced selector map:
// mandatory fields present, every non-empty selector within length and
// syntax bounds, and compilable by the same engine that will apply it.
// All failures wrap scrape.ErrSchema.
func ValidateSelectorMap(m *scrape.SelectorMap) error {
	if m.ReviewContainer == "" {
		return fmt.Errorf("%w: review_container is required", scrape.ErrSchema)
	}
	if m.Body == "" {
		return fmt.Errorf("%w: body is required", scrape.ErrSchema)
	}

	fields := map[string]string{
		"review_container": m.ReviewContainer,
		"title":            m.Title,
		"body":             m.Body,
		"rating":           m.Rating,
		"reviewer":         m.Reviewer,
		"next_page":        m.NextPage,
	}
	for name, sel := range fields {
		if sel == "" {
			continue
		}
		if err := validateSelector(sel); err != nil {
			return fmt.Errorf("%w: %s: %v", scrape.ErrSchema, name, err)
		}
	}
	return nil
}

func validateSelector(sel string) error {
	if len(sel) > maxSelectorLen {
		return fmt.Errorf("selector exceeds %d characters", maxSelectorLen)
	}
	if !selectorSyntax.MatchString(sel) {
		return fmt.Errorf("selector contains disallowed characters")
	}
	if _, err := cascadia.ParseGroup(sel); err != nil {
		return fmt.Errorf("selector does not parse: %v", err)
	}
	return nil
}
