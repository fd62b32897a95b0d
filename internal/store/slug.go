package store

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxSlugLen bounds slugs so they stay usable as file names, storage
// keys and URL parameters.
const maxSlugLen = 40

// ErrEmptySlug is returned when a club name has no retainable
// characters. Callers must treat this as a validation failure, never
// substitute a generic slug: the slug is how two devices converge on
// the same namespace without coordination.
var ErrEmptySlug = errors.New("club name produces an empty slug")

var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives the storage namespace from a club display name:
// diacritics stripped, lower-cased, runs of non-alphanumeric characters
// collapsed to single hyphens, trimmed, truncated to 40 characters.
// The same input always yields the same slug.
func Slugify(name string) (string, error) {
	folded, _, err := transform.String(deaccent, name)
	if err != nil {
		// Malformed input falls through to the raw name; the character
		// filter below drops anything unusable anyway.
		folded = name
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	pendingHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}

	slug := b.String()
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptySlug, name)
	}
	return slug, nil
}
