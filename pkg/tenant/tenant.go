// Package tenant extracts and validates the tenant identifier embedded in a
// ticket's text (§4.8).
package tenant

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	customerSolutionsPattern = regexp.MustCompile(`customersolutions\+([a-z0-9_-]{2,50})@`)
	tenantPrefixPattern      = regexp.MustCompile(`(?i)tenant:\s*([a-z0-9_-]{2,50})`)
	validIDPattern           = regexp.MustCompile(`^[a-z0-9_-]{2,50}$`)
)

// Extract implements the §4.8 precedence: customersolutions+<tenant>@
// first, then "tenant: <tenant>", then <tenant>.<configured-domain>. domain
// is the tracker's configured domain used for the third pattern; an empty
// domain skips that check.
func Extract(text, domain string) (string, bool) {
	if m := customerSolutionsPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1]), true
	}
	if m := tenantPrefixPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[1]), true
	}
	if domain != "" {
		pattern := regexp.MustCompile(fmt.Sprintf(`([a-z0-9_-]{2,50})\.%s`, regexp.QuoteMeta(strings.ToLower(domain))))
		if m := pattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// Valid reports whether a tenant id is lowercase, 2-50 chars, and
// alphanumeric plus '-'/'_' (§4.8 Validation).
func Valid(id string) bool {
	return validIDPattern.MatchString(id)
}
