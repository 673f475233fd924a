package common

import (
	"fmt"
	"regexp"
	"strings"
)

var idSanitizer = regexp.MustCompile(`[^a-z0-9_-]+`)

// ListingID derives the stable listing identifier from the source site and
// the listing's id on that site. Re-scraping the same source listing always
// yields the same identifier, which is what makes upserts dedupe instead of
// duplicating.
func ListingID(sourceSite, sourceID string) string {
	site := idSanitizer.ReplaceAllString(strings.ToLower(strings.TrimSpace(sourceSite)), "-")
	id := idSanitizer.ReplaceAllString(strings.ToLower(strings.TrimSpace(sourceID)), "-")
	return fmt.Sprintf("%s:%s", site, id)
}
