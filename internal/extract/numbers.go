package extract

import (
	"strconv"
	"strings"
)

// halfGlyph is the federation's half-point character. Pages sometimes
// carry it as the raw HTML entity when served through intermediaries
// that skip entity decoding.
const (
	halfGlyph  = "½"
	halfEntity = "&frac12;"
)

// ParseScore parses a round score marker: "1" scores a win, the half
// glyph (or its entity form, or "0.5") a draw, anything else a loss.
func ParseScore(s string) float64 {
	switch strings.TrimSpace(s) {
	case "1":
		return 1
	case halfGlyph, halfEntity, "0.5":
		return 0.5
	default:
		return 0
	}
}

// parseHalfFloat parses numeric cells that may end in the half-point
// glyph, e.g. "4½" or "21&frac12;". A lone glyph reads as 0.5. Decimal
// commas are tolerated.
func parseHalfFloat(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, halfEntity, halfGlyph))
	half := strings.HasSuffix(s, halfGlyph)
	if half {
		s = strings.TrimSpace(strings.TrimSuffix(s, halfGlyph))
	}
	if s == "" {
		if half {
			return 0.5, true
		}
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	if half {
		f += 0.5
	}
	return f, true
}

// parseLeadingInt parses the leading digit run of a cell, tolerating
// federation suffixes such as the rating-category letter in "1852 F".
func parseLeadingInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
