package scrape

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Rating formats seen in the wild, tried in order. Denominated forms
// ("4 out of 5", "7/10") and percentages are rescaled; star glyph runs
// are counted; bare numbers are only accepted when already on a 0–5
// scale. Anything else is unrecoverable and the rating stays null —
// never guessed.
var (
	ratioPattern   = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:out\s+of|of|/)\s*(\d+(?:[.,]\d+)?)`)
	percentPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)\s*%`)
	ratedPattern   = regexp.MustCompile(`(?i)(?:rated|rating[:\s])\s*(\d+(?:[.,]\d+)?)`)
	numberPattern  = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)
)

const filledStars = "★⭐✭✮"

// ParseRating extracts a numeric rating from free text and rescales it to
// the canonical 0.0–5.0 scale. The second return is false when no numeric
// pattern is recoverable.
func ParseRating(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}

	if n := countStars(text); n > 0 && n <= 5 {
		return float64(n), true
	}

	if m := ratioPattern.FindStringSubmatch(text); m != nil {
		value, err1 := parseDecimal(m[1])
		denom, err2 := parseDecimal(m[2])
		if err1 == nil && err2 == nil && denom > 0 && value <= denom {
			return clampRating(value / denom * 5), true
		}
	}

	if m := percentPattern.FindStringSubmatch(text); m != nil {
		pct, err := parseDecimal(m[1])
		if err == nil && pct <= 100 {
			return clampRating(pct / 100 * 5), true
		}
	}

	if m := ratedPattern.FindStringSubmatch(text); m != nil {
		v, err := parseDecimal(m[1])
		if err == nil && v <= 5 {
			return clampRating(v), true
		}
	}

	// Bare number, only trusted when already on the canonical scale.
	if m := numberPattern.FindStringSubmatch(text); m != nil {
		v, err := parseDecimal(m[1])
		if err == nil && v <= 5 {
			return clampRating(v), true
		}
	}

	return 0, false
}

func countStars(text string) int {
	n := 0
	for _, r := range text {
		if strings.ContainsRune(filledStars, r) {
			n++
		}
	}
	return n
}

func parseDecimal(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

func clampRating(v float64) float64 {
	if v < 0 {
		v = 0
	}
	if v > 5 {
		v = 5
	}
	// Keep two decimals so 0.8*5 style rescales serialize cleanly.
	return math.Round(v*100) / 100
}
