package query

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize trims, lowercases, and NFKC-normalizes a query string so that
// visually/semantically identical queries share one cache fingerprint, per
// §4.7 step 1.
func normalize(q string) string {
	return norm.NFKC.String(strings.ToLower(strings.TrimSpace(q)))
}
