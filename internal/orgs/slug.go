package orgs

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// GenerateSlug derives a URL-safe slug from an organization name: lowercase
// alphanumerics with hyphen runs in between, capped at 50 characters.
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	return slug
}

// suffixSlug appends a short random suffix to dodge a slug collision
func suffixSlug(slug string) string {
	return slug + "-" + uuid.NewString()[:6]
}
