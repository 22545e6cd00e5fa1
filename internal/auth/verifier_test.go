package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drago-vuckovic/sso/internal/config"
)

// testIssuer serves a discovery document and JWKS for a single RSA key.
type testIssuer struct {
	server *httptest.Server
	signer jose.Signer
}

func newTestIssuer(t *testing.T) *testIssuer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk := jose.JSONWebKey{Key: key, KeyID: "test-key", Algorithm: string(jose.RS256), Use: "sig"}
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: jwk},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	ti := &testIssuer{signer: signer}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                ti.server.URL,
			"jwks_uri":                              ti.server.URL + "/keys",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("/keys", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk.Public()}})
	})
	ti.server = httptest.NewServer(mux)
	t.Cleanup(ti.server.Close)
	return ti
}

func (ti *testIssuer) token(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	obj, err := ti.signer.Sign(payload)
	require.NoError(t, err)
	raw, err := obj.CompactSerialize()
	require.NoError(t, err)
	return raw
}

func (ti *testIssuer) claims(aud string, roles ...string) map[string]any {
	now := time.Now()
	return map[string]any{
		"iss":                ti.server.URL,
		"aud":                aud,
		"sub":                "user-1",
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"iat":                now.Unix(),
		"nbf":                now.Add(-time.Minute).Unix(),
		"exp":                now.Add(5 * time.Minute).Unix(),
		"realm_access":       map[string]any{"roles": roles},
	}
}

func principalEcho(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		_ = json.NewEncoder(w).Encode(p)
	})
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerifierDisabledRunsAnonymous(t *testing.T) {
	mw, err := NewVerifier(config.AuthConfig{RolesClaim: "roles", AnonymousRoles: []string{"ADMIN"}},
		WithVerifierLogger(quietLogger()))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	mw(principalEcho(t)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var p Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.Anonymous)
	assert.Equal(t, []string{"ADMIN"}, p.Roles)
}

func TestVerifierRequiresAudience(t *testing.T) {
	_, err := NewVerifier(config.AuthConfig{Issuer: "http://localhost:1/realms/demo", RolesClaim: "roles"},
		WithVerifierLogger(quietLogger()))
	require.Error(t, err)
}

func TestVerifierAcceptsValidToken(t *testing.T) {
	issuer := newTestIssuer(t)
	cfg := config.AuthConfig{Issuer: issuer.server.URL, Audience: "sso-api", RolesClaim: "realm_access.roles"}

	mw, err := NewVerifier(cfg, WithVerifierLogger(quietLogger()))
	require.NoError(t, err)
	handler := mw(principalEcho(t))

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issuer.token(t, issuer.claims("sso-api", "ADMIN", "USER")))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var p Principal
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "user-1", p.Subject)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, []string{"ADMIN", "USER"}, p.Roles)
	assert.False(t, p.Anonymous)
}

func TestVerifierStoresClaims(t *testing.T) {
	issuer := newTestIssuer(t)
	cfg := config.AuthConfig{Issuer: issuer.server.URL, Audience: "sso-api", RolesClaim: "realm_access.roles"}

	mw, err := NewVerifier(cfg, WithVerifierLogger(quietLogger()))
	require.NoError(t, err)
	var claims map[string]any
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ = ClaimsFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+issuer.token(t, issuer.claims("sso-api", "USER")))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims["sub"])
}

func TestVerifierRejects(t *testing.T) {
	issuer := newTestIssuer(t)
	cfg := config.AuthConfig{Issuer: issuer.server.URL, Audience: "sso-api", RolesClaim: "realm_access.roles"}

	mw, err := NewVerifier(cfg, WithVerifierLogger(quietLogger()))
	require.NoError(t, err)
	handler := mw(principalEcho(t))

	expired := issuer.claims("sso-api", "ADMIN")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	expired["iat"] = time.Now().Add(-2 * time.Hour).Unix()
	expired["nbf"] = time.Now().Add(-2 * time.Hour).Unix()

	tests := []struct {
		name   string
		header string
	}{
		{"missing token", ""},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong audience", "Bearer " + issuer.token(t, issuer.claims("other-api", "ADMIN"))},
		{"expired", "Bearer " + issuer.token(t, expired)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"unauthenticated"}`, rec.Body.String())
		})
	}
}

func TestVerifierSkipsHealth(t *testing.T) {
	mw, err := NewVerifier(config.AuthConfig{
		Issuer:     "http://127.0.0.1:1/realms/demo",
		Audience:   "sso-api",
		RolesClaim: "roles",
	}, WithVerifierLogger(quietLogger()))
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/metrics"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/admin/users", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
