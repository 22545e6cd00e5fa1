package auth

import "context"

// Principal is the caller identity propagated through the request context.
type Principal struct {
	// Subject is the token's sub claim. Empty for anonymous callers.
	Subject  string   `json:"subject,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles"`
	// Anonymous is set when authentication is disabled.
	Anonymous bool `json:"anonymous,omitempty"`
}

type principalContextKey struct{}

// SetPrincipal stores the caller on the context.
func SetPrincipal(ctx context.Context, p Principal) context.Context {
	p.Roles = append([]string(nil), p.Roles...)
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext retrieves the caller stored by the verifier.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

type claimsContextKey struct{}

// SetClaims stores the verified token claims on the context.
func SetClaims(ctx context.Context, claims map[string]any) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext returns the verified JWT claims, if any.
func ClaimsFromContext(ctx context.Context) (map[string]any, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(map[string]any)
	return claims, ok
}
