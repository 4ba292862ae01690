package oracle

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"
)

// Sample is the size-bounded page evidence sent to the reasoning
// service. The full page is never sent verbatim: Skeleton carries the
// selector evidence (tags, ids, classes, data attributes), Digest
// carries a truncated rendering of the visible text so the model can
// tell review content from navigation chrome.
type Sample struct {
	Skeleton string
	Digest   string
}

// sampleAttrs are the attributes worth keeping as selector evidence.
var sampleAttrs = map[string]bool{
	"id": true, "class": true, "role": true, "rel": true,
	"data-rating": true, "data-review-id": true, "data-reviews-target": true,
	"aria-label": true, "itemprop": true,
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// BuildSample produces a Sample whose two halves together stay under
// maxBytes.
func BuildSample(markup string, maxBytes int) Sample {
	skelBudget := maxBytes * 2 / 3
	digestBudget := maxBytes - skelBudget

	return Sample{
		Skeleton: buildSkeleton(markup, skelBudget),
		Digest:   buildDigest(markup, digestBudget),
	}
}

// buildSkeleton renders an indented structural outline of the markup,
// keeping only tags and whitelisted attributes plus a short text hint
// per element, truncated at budget.
func buildSkeleton(markup string, budget int) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return truncate(markup, budget)
	}

	var b strings.Builder
	writeOutline(&b, doc, 0, budget)
	return b.String()
}

func writeOutline(b *strings.Builder, n *html.Node, depth int, budget int) {
	if b.Len() >= budget {
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b.Len() >= budget {
			return
		}
		if c.Type != html.ElementNode || skipElement(c.Data) {
			continue
		}

		b.WriteString(strings.Repeat("  ", min(depth, 8)))
		b.WriteByte('<')
		b.WriteString(c.Data)
		for _, a := range c.Attr {
			if !sampleAttrs[a.Key] && !strings.HasPrefix(a.Key, "data-") {
				continue
			}
			b.WriteByte(' ')
			b.WriteString(a.Key)
			b.WriteString(`="`)
			b.WriteString(truncate(a.Val, 80))
			b.WriteByte('"')
		}
		b.WriteByte('>')
		if hint := textHint(c); hint != "" {
			b.WriteByte(' ')
			b.WriteString(hint)
		}
		b.WriteByte('\n')

		writeOutline(b, c, depth+1, budget)
	}
}

// textHint returns a short sample of an element's direct text, enough
// for the model to recognize "4.5 out of 5" or a reviewer name.
func textHint(n *html.Node) string {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			t := strings.Join(strings.Fields(c.Data), " ")
			if t != "" {
				return truncate(t, 60)
			}
		}
	}
	return ""
}

// buildDigest renders the page's visible text as markdown, truncated at
// budget. Conversion failure degrades to no digest; the skeleton alone
// is still usable evidence.
func buildDigest(markup string, budget int) string {
	md, err := mdConverter.ConvertString(markup)
	if err != nil {
		return ""
	}
	return truncate(strings.TrimSpace(md), budget)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
