// Package auth implements Tom's authentication and authorization layer:
// API-key validation, JWT validation across a closed provider-variant
// set, HYBRID dispatch between the two, and ProviderPolicy authorization.
package auth

// Claims is the typed JWT claims struct (spec §9's redesign instruction):
// well-known fields get typed access; anything else lands in Extra so
// the debug surface can still report custom claims without the core
// depending on an open-ended map for routine authorization decisions.
type Claims struct {
	Issuer          string `json:"iss"`
	Subject         string `json:"sub"`
	Audience        string `json:"aud"`
	ExpiresAt       int64  `json:"exp"`
	IssuedAt        int64  `json:"iat"`
	Email           string `json:"email"`
	PreferredUser   string `json:"preferred_username"`
	UPN             string `json:"upn"`
	HostedDomain    string `json:"hd"`
	EmailVerified   bool   `json:"email_verified"`
	Groups          []string `json:"groups"`

	// Extra holds any claim not named above, for the /auth/debug surface.
	Extra map[string]any `json:"-"`
}

// Principal returns the best-effort user identity for policy matching:
// preferred_username, falling back to email, falling back to sub.
func (c *Claims) Principal() string {
	switch {
	case c.PreferredUser != "":
		return c.PreferredUser
	case c.Email != "":
		return c.Email
	default:
		return c.Subject
	}
}

// Domain returns the claim to match against allowed_domains: the email's
// domain part if present, else the hd (hosted domain) claim.
func (c *Claims) Domain() string {
	if c.Email != "" {
		if at := lastIndexByte(c.Email, '@'); at >= 0 {
			return c.Email[at+1:]
		}
	}
	return c.HostedDomain
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}
