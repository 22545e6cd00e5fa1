package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xenitab/go-oidc-middleware/oidctoken"
	"github.com/xenitab/go-oidc-middleware/options"

	"github.com/drago-vuckovic/sso/internal/config"
)

// Skipper defines a function to skip authentication for matching requests.
type Skipper func(*http.Request) bool

type verifierOptions struct {
	skipper Skipper
	logger  *slog.Logger
	extra   []options.Option
}

// VerifierOption customises the verifier middleware.
type VerifierOption func(*verifierOptions)

// WithSkipper overrides the default skipper.
func WithSkipper(skipper Skipper) VerifierOption {
	return func(o *verifierOptions) {
		if skipper != nil {
			o.skipper = skipper
		}
	}
}

func WithVerifierLogger(logger *slog.Logger) VerifierOption {
	return func(o *verifierOptions) { o.logger = logger }
}

// WithOIDCOptions passes extra options to the token handler, e.g. a custom
// JWKS URI or HTTP client.
func WithOIDCOptions(opts ...options.Option) VerifierOption {
	return func(o *verifierOptions) { o.extra = append(o.extra, opts...) }
}

// NewVerifier returns a chi middleware that verifies bearer tokens issued by
// cfg.Issuer and stores the caller's Principal on the request context.
//
// With authentication disabled every request runs as an anonymous principal
// holding cfg.AnonymousRoles.
func NewVerifier(cfg config.AuthConfig, opts ...VerifierOption) (func(http.Handler) http.Handler, error) {
	vOpts := verifierOptions{
		skipper: defaultSkipper,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&vOpts)
	}

	if !cfg.Enabled() {
		vOpts.logger.Warn("caller authentication is disabled; requests run as anonymous",
			"anonymous_roles", cfg.AnonymousRoles)
		anonymous := Principal{Anonymous: true, Roles: cfg.AnonymousRoles}
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), anonymous)))
			})
		}, nil
	}

	if cfg.Audience == "" {
		return nil, fmt.Errorf("auth audience is required")
	}

	oidcOpts := []options.Option{
		options.WithIssuer(cfg.Issuer),
		options.WithRequiredAudience(cfg.Audience),
		// Keycloak may come up after the gateway.
		options.WithLazyLoadJwks(true),
	}
	oidcOpts = append(oidcOpts, vOpts.extra...)

	tokenHandler, err := oidctoken.New[map[string]any](nil, oidcOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise oidc token handler: %w", err)
	}

	// Default: Authorization header with the Bearer prefix.
	tokenStrings := [][]options.TokenStringOption{{}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if vOpts.skipper(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := oidctoken.GetTokenString(r.Header.Get, tokenStrings)
			if err != nil || strings.TrimSpace(token) == "" {
				vOpts.logger.Debug("missing bearer token", "path", r.URL.Path)
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			claims, err := tokenHandler.ParseToken(r.Context(), strings.TrimSpace(token))
			if err != nil {
				vOpts.logger.Info("rejected bearer token", "path", r.URL.Path, "error", err)
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			principal, err := PrincipalFromClaims(claims, cfg.RolesClaim)
			if err != nil {
				vOpts.logger.Info("unusable token claims", "error", err)
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			ctx := SetClaims(r.Context(), claims)
			ctx = SetPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// PrincipalFromClaims builds the caller identity from verified claims.
func PrincipalFromClaims(claims map[string]any, rolesClaim string) (Principal, error) {
	roles, err := ExtractRoles(claims, rolesClaim)
	if err != nil {
		return Principal{}, err
	}
	return Principal{
		Subject:  claimString(claims, "sub"),
		Username: claimString(claims, "preferred_username"),
		Email:    claimString(claims, "email"),
		Roles:    roles,
	}, nil
}

func defaultSkipper(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	switch r.URL.Path {
	case "/health", "/metrics":
		return true
	}
	return false
}
