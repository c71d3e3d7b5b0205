package utils

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrEmptySlug is returned when a name normalizes to nothing.
	ErrEmptySlug = errors.New("slug cannot be empty")

	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
	// Slug must be lowercase alphanumeric and hyphens only, 2–64 chars.
	slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)
)

// Slugify derives a URL-safe slug from a display name: lowercase, runs of non-alphanumerics become a
// single hyphen, leading and trailing hyphens are dropped.
func Slugify(name string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	slug := strings.Trim(nonSlugChars.ReplaceAllString(lower, "-"), "-")
	if slug == "" {
		return "", ErrEmptySlug
	}
	return slug, nil
}

// ValidSlug reports whether s is acceptable as an explicitly supplied slug.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}
