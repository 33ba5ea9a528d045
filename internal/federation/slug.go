package federation

import "strings"

const slugPrefix = "yc-"

// TenantSlug derives the deterministic organisation slug for a partner
// business id. The result is lower-case, prefixed with "yc-", and every
// character outside [a-z0-9-] is replaced with a dash, so the same business
// id always resolves to the same slug.
func TenantSlug(businessID string) string {
	var b strings.Builder
	b.Grow(len(slugPrefix) + len(businessID))
	b.WriteString(slugPrefix)

	for _, r := range strings.ToLower(businessID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}

	return b.String()
}
