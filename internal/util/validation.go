package util

import (
	"regexp"
)

// Tenant ids end up in file names and object keys, so the alphabet is kept narrow.
var tenantIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

func IsValidTenantID(s string) bool {
	return tenantIDRegex.MatchString(s)
}
