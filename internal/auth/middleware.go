package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/tomnet/tom/internal/tomerr"
)

// Mode mirrors config.AuthMode without importing the config package,
// keeping auth free of a dependency cycle with the controller wiring
// that constructs both.
type Mode string

const (
	ModeNone    Mode = "none"
	ModeAPIKey  Mode = "api_key"
	ModeJWT     Mode = "jwt"
	ModeHybrid  Mode = "hybrid"
)

type principalKey struct{}

// PrincipalFromContext returns the authenticated principal set by
// Authenticator.Middleware, if any.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(principalKey{}).(string)
	return p, ok
}

// Authenticator dispatches across the four configured auth modes.
// HYBRID tries the API key first and falls through to JWT on miss,
// matching spec §4.5 exactly.
type Authenticator struct {
	Mode         Mode
	APIKeys      *APIKeyStore
	APIKeyHeader string
	Providers    map[string]Provider
	Policy       ProviderPolicy
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch a.Mode {
		case ModeNone:
			next.ServeHTTP(w, r)
			return
		case ModeAPIKey:
			principal, ok := a.tryAPIKey(r)
			a.finish(w, r, next, principal, "", ok)
		case ModeJWT:
			principal, domain, ok := a.tryJWT(r)
			a.finish(w, r, next, principal, domain, ok)
		case ModeHybrid:
			if principal, ok := a.tryAPIKey(r); ok {
				a.finish(w, r, next, principal, "", true)
				return
			}
			principal, domain, ok := a.tryJWT(r)
			a.finish(w, r, next, principal, domain, ok)
		default:
			writeAuthError(w, tomerr.New(tomerr.KindInternal, "unknown auth mode"))
		}
	})
}

func (a *Authenticator) finish(w http.ResponseWriter, r *http.Request, next http.Handler, principal, domain string, authenticated bool) {
	if !authenticated {
		writeAuthError(w, tomerr.New(tomerr.KindAuthRequired, "authentication required"))
		return
	}
	if !a.Policy.Allows(principal, domain) {
		writeAuthError(w, tomerr.New(tomerr.KindAuthDenied, "principal not permitted by provider policy"))
		return
	}
	ctx := context.WithValue(r.Context(), principalKey{}, principal)
	next.ServeHTTP(w, r.WithContext(ctx))
}

func (a *Authenticator) tryAPIKey(r *http.Request) (string, bool) {
	if a.APIKeys == nil {
		return "", false
	}
	header := a.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	key := r.Header.Get(header)
	if key == "" {
		return "", false
	}
	return a.APIKeys.Validate(key)
}

func (a *Authenticator) tryJWT(r *http.Request) (principal, domain string, ok bool) {
	rawToken := bearerToken(r)
	if rawToken == "" {
		return "", "", false
	}
	for _, provider := range a.Providers {
		claims, err := provider.Validate(r.Context(), rawToken)
		if err == nil {
			return claims.Principal(), claims.Domain(), true
		}
	}
	return "", "", false
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, err *tomerr.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus())
	w.Write([]byte(`{"error":"` + string(err.Kind) + `","detail":"` + err.Message + `"}`))
}
