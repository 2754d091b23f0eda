package auth

import (
	"regexp"
	"strings"
)

// ProviderPolicy is the authorization policy evaluated after successful
// authentication (spec §3, §6). Matching is case-insensitive; any single
// match (user, domain, or regex) grants; all three lists empty means any
// authenticated principal is permitted.
type ProviderPolicy struct {
	AllowedUsers      []string
	AllowedDomains    []string
	AllowedUserRegex  []string
}

// Allows reports whether principal/domain satisfy the policy.
func (p ProviderPolicy) Allows(principal, domain string) bool {
	if len(p.AllowedUsers) == 0 && len(p.AllowedDomains) == 0 && len(p.AllowedUserRegex) == 0 {
		return true
	}
	for _, u := range p.AllowedUsers {
		if strings.EqualFold(u, principal) {
			return true
		}
	}
	for _, d := range p.AllowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	for _, pattern := range p.AllowedUserRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		if re.MatchString(principal) {
			return true
		}
	}
	return false
}
