// Package auth extracts caller credentials from gateway requests. The only
// credential this gateway accepts is an API key, presented either as a
// bearer token or in the X-API-Key header.
package auth

import (
	"context"
	"net/http"
	"strings"
)

// Principal identifies an authenticated caller for the rest of the request.
type Principal struct {
	APIKey string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// ParseAPIKey pulls the caller's API key from the request. X-API-Key wins
// when both headers are present; a malformed Authorization header reads the
// same as no credential at all.
func ParseAPIKey(r *http.Request) (string, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, true
	}

	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, key, found := strings.Cut(authz, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false
	}
	return key, true
}
