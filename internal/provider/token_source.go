package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/oauth2"
)

// TokenFetcher obtains a fresh admin credential from the provider.
type TokenFetcher interface {
	FetchCredential(ctx context.Context) (Credential, error)
}

// PasswordGrantConfig configures a PasswordGrant.
type PasswordGrantConfig struct {
	TokenURL string
	ClientID string
	Username string
	Password string

	// DefaultTTL is used when neither expires_in nor the token's exp claim is usable.
	DefaultTTL time.Duration

	HTTPClient *http.Client
	Clock      clock.Clock
}

// PasswordGrant fetches admin credentials with the resource-owner password grant.
type PasswordGrant struct {
	oauth      oauth2.Config
	username   string
	password   string
	defaultTTL time.Duration
	httpClient *http.Client
	clock      clock.Clock
}

// NewPasswordGrant creates a PasswordGrant. The client id is sent in the form
// body, which is what Keycloak's public admin-cli client expects.
func NewPasswordGrant(cfg PasswordGrantConfig) *PasswordGrant {
	g := &PasswordGrant{
		oauth: oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		username:   cfg.Username,
		password:   cfg.Password,
		defaultTTL: cfg.DefaultTTL,
		httpClient: cfg.HTTPClient,
		clock:      cfg.Clock,
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if g.clock == nil {
		g.clock = clock.New()
	}
	if g.defaultTTL <= 0 {
		g.defaultTTL = time.Minute
	}
	return g
}

// FetchCredential performs one token request. It never caches.
func (g *PasswordGrant) FetchCredential(ctx context.Context) (Credential, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	// Stamp before the round trip so request latency eats into the TTL.
	issuedAt := g.clock.Now()
	tok, err := g.oauth.PasswordCredentialsToken(ctx, g.username, g.password)
	if err != nil {
		return Credential{}, classifyTokenError(err)
	}
	if tok.AccessToken == "" {
		return Credential{}, &Error{Kind: ErrAuthentication, Op: "FetchCredential", Message: "empty access_token"}
	}

	return Credential{
		Token:    tok.AccessToken,
		IssuedAt: issuedAt,
		TTL:      g.lifetime(tok),
	}, nil
}

// lifetime prefers expires_in, then the JWT exp/iat claims, then the
// oauth2 computed expiry, then the configured default.
func (g *PasswordGrant) lifetime(tok *oauth2.Token) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		exp, _ := claims.GetExpirationTime()
		iat, _ := claims.GetIssuedAt()
		if exp != nil && iat != nil && exp.After(iat.Time) {
			return exp.Sub(iat.Time)
		}
		if exp != nil {
			if ttl := exp.Sub(g.clock.Now()); ttl > 0 {
				return ttl
			}
		}
	}

	if !tok.Expiry.IsZero() {
		if ttl := tok.Expiry.Sub(g.clock.Now()); ttl > 0 {
			return ttl
		}
	}
	return g.defaultTTL
}

func classifyTokenError(err error) error {
	const op = "FetchCredential"

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		status := rerr.Response.StatusCode
		msg := rerr.ErrorDescription
		if msg == "" {
			msg = rerr.ErrorCode
		}
		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			return &Error{Kind: ErrAuthentication, Op: op, StatusCode: status, Message: msg}
		}
		return &Error{Kind: ErrUnavailable, Op: op, StatusCode: status, Message: msg}
	}
	return Unavailable(op, err)
}

// DiscoverTokenEndpoint reads the token endpoint from the issuer's OpenID
// discovery document.
func DiscoverTokenEndpoint(ctx context.Context, issuer, clientID string, httpClient *http.Client) (string, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	relyingParty, err := rp.NewRelyingPartyOIDC(
		ctx,
		issuer,
		clientID,
		"",
		"",
		[]string{oidc.ScopeOpenID},
		rp.WithHTTPClient(httpClient),
	)
	if err != nil {
		return "", fmt.Errorf("failed to discover OIDC provider at %s: %w", issuer, err)
	}
	tokenURL := relyingParty.OAuthConfig().Endpoint.TokenURL
	if tokenURL == "" {
		return "", fmt.Errorf("discovery document at %s has no token_endpoint", issuer)
	}
	return tokenURL, nil
}
