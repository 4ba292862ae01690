package oracle

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// fingerprintMaxDepth bounds the skeleton walk; template identity lives
// in the upper layers of the tree, and deep widget internals churn
// between renders.
const fingerprintMaxDepth = 10

// Fingerprint hashes a page's structural tag skeleton: element names and
// sorted class lists, depth-bounded, with runs of identically-shaped
// siblings collapsed so a page with 7 reviews fingerprints the same as
// its template sibling with 10. Text content never participates.
func Fingerprint(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		sum := sha256.Sum256([]byte(markup))
		return hex.EncodeToString(sum[:])
	}

	var b strings.Builder
	writeSkeleton(&b, doc, 0)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func writeSkeleton(b *strings.Builder, n *html.Node, depth int) {
	if depth > fingerprintMaxDepth {
		return
	}

	prevSig := ""
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if skipElement(c.Data) {
			continue
		}
		sig := elementSignature(c)
		if sig == prevSig {
			// Collapse repeated siblings: one review card stands in
			// for the whole list.
			continue
		}
		prevSig = sig

		b.WriteString(strings.Repeat(" ", depth))
		b.WriteString(sig)
		b.WriteByte('\n')
		writeSkeleton(b, c, depth+1)
	}
}

func elementSignature(n *html.Node) string {
	classes := classList(n)
	if len(classes) == 0 {
		return n.Data
	}
	return n.Data + "." + strings.Join(classes, ".")
}

func classList(n *html.Node) []string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			classes := strings.Fields(a.Val)
			sort.Strings(classes)
			return classes
		}
	}
	return nil
}

func skipElement(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "svg", "path", "iframe", "link", "meta":
		return true
	}
	return false
}
