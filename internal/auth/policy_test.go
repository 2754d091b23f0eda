package auth

import "testing"

func TestEmptyPolicyAllowsAnyPrincipal(t *testing.T) {
	p := ProviderPolicy{}
	if !p.Allows("anyone@example.com", "example.com") {
		t.Fatalf("expected empty policy to allow any principal")
	}
}

func TestAllowedUsersMatchIsCaseInsensitive(t *testing.T) {
	p := ProviderPolicy{AllowedUsers: []string{"Alice@Company.com"}}
	if !p.Allows("alice@company.com", "company.com") {
		t.Fatalf("expected case-insensitive user match")
	}
}

func TestAllowedDomainsGrantsAnyUserInDomain(t *testing.T) {
	p := ProviderPolicy{AllowedDomains: []string{"company.com"}}
	if !p.Allows("bob@company.com", "company.com") {
		t.Fatalf("expected domain match to grant")
	}
	if p.Allows("eve@other.com", "other.com") {
		t.Fatalf("expected domain mismatch to deny")
	}
}

func TestAllowedUserRegexGrants(t *testing.T) {
	p := ProviderPolicy{AllowedUserRegex: []string{"^svc-.*@company\\.com$"}}
	if !p.Allows("svc-deploy@company.com", "company.com") {
		t.Fatalf("expected regex match to grant")
	}
	if p.Allows("alice@company.com", "company.com") {
		t.Fatalf("expected non-matching principal to deny")
	}
}

func TestDeniesWhenNothingMatches(t *testing.T) {
	p := ProviderPolicy{AllowedUsers: []string{"alice@company.com"}, AllowedDomains: []string{"company.com"}}
	if p.Allows("eve@other.com", "other.com") {
		t.Fatalf("expected deny for unlisted user and domain")
	}
}
