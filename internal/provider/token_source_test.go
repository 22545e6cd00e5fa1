package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type tokenRequest struct {
	method string
	path   string
	form   url.Values
}

func tokenServer(t *testing.T, status int, body map[string]any) (*httptest.Server, <-chan tokenRequest) {
	t.Helper()
	seen := make(chan tokenRequest, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		seen <- tokenRequest{method: r.Method, path: r.URL.Path, form: r.PostForm}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func newTestGrant(srv *httptest.Server, clk clock.Clock) *PasswordGrant {
	return NewPasswordGrant(PasswordGrantConfig{
		TokenURL:   srv.URL + "/realms/master/protocol/openid-connect/token",
		ClientID:   "admin-cli",
		Username:   "admin",
		Password:   "s3cret",
		DefaultTTL: 45 * time.Second,
		HTTPClient: srv.Client(),
		Clock:      clk,
	})
}

func TestPasswordGrant_FetchCredential(t *testing.T) {
	srv, requests := tokenServer(t, http.StatusOK, map[string]any{
		"access_token": "abc",
		"token_type":   "Bearer",
		"expires_in":   300,
	})
	mock := clock.NewMock()
	mock.Add(time.Hour)

	cred, err := newTestGrant(srv, mock).FetchCredential(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "abc", cred.Token)
	assert.Equal(t, 300*time.Second, cred.TTL)
	assert.Equal(t, mock.Now(), cred.IssuedAt)

	seen := <-requests
	assert.Equal(t, http.MethodPost, seen.method)
	assert.Equal(t, "/realms/master/protocol/openid-connect/token", seen.path)
	assert.Equal(t, "password", seen.form.Get("grant_type"))
	assert.Equal(t, "admin-cli", seen.form.Get("client_id"))
	assert.Equal(t, "admin", seen.form.Get("username"))
	assert.Equal(t, "s3cret", seen.form.Get("password"))
	assert.False(t, seen.form.Has("client_secret"))
}

func TestPasswordGrant_LifetimeFromJWTClaims(t *testing.T) {
	now := time.Now()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(120 * time.Second).Unix(),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	srv, _ := tokenServer(t, http.StatusOK, map[string]any{
		"access_token": signed,
		"token_type":   "Bearer",
	})

	cred, err := newTestGrant(srv, clock.NewMock()).FetchCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cred.TTL)
}

func TestPasswordGrant_DefaultLifetime(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, map[string]any{
		"access_token": "opaque",
		"token_type":   "Bearer",
	})

	cred, err := newTestGrant(srv, clock.NewMock()).FetchCredential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cred.TTL)
}

func TestPasswordGrant_LifetimeFromExpiryUsesClock(t *testing.T) {
	srv, _ := tokenServer(t, http.StatusOK, nil)
	mock := clock.NewMock()
	mock.Set(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	grant := newTestGrant(srv, mock)

	ttl := grant.lifetime(&oauth2.Token{AccessToken: "opaque", Expiry: mock.Now().Add(90 * time.Second)})
	assert.Equal(t, 90*time.Second, ttl)

	ttl = grant.lifetime(&oauth2.Token{AccessToken: "opaque", Expiry: mock.Now().Add(-time.Second)})
	assert.Equal(t, 45*time.Second, ttl, "expired Expiry falls back to the default")
}

func TestPasswordGrant_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    map[string]any
		kind    error
		message string
	}{
		{
			name:    "rejected credentials",
			status:  http.StatusUnauthorized,
			body:    map[string]any{"error": "invalid_grant", "error_description": "Invalid user credentials"},
			kind:    ErrAuthentication,
			message: "Invalid user credentials",
		},
		{
			name:   "unknown client",
			status: http.StatusBadRequest,
			body:   map[string]any{"error": "invalid_client"},
			kind:   ErrAuthentication,
		},
		{
			name:   "server error",
			status: http.StatusServiceUnavailable,
			body:   map[string]any{"error": "temporarily_unavailable"},
			kind:   ErrUnavailable,
		},
		{
			name:   "throttled",
			status: http.StatusTooManyRequests,
			body:   map[string]any{"error": "slow_down"},
			kind:   ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := tokenServer(t, tt.status, tt.body)

			_, err := newTestGrant(srv, clock.NewMock()).FetchCredential(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.status, perr.StatusCode)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestPasswordGrant_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	grant := newTestGrant(srv, clock.NewMock())
	srv.Close()

	_, err := grant.FetchCredential(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDiscoverTokenEndpoint(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realms/master/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		issuer := srv.URL + "/realms/master"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/protocol/openid-connect/auth",
			"token_endpoint":         issuer + "/protocol/openid-connect/token",
			"jwks_uri":               issuer + "/protocol/openid-connect/certs",
		})
	}))
	defer srv.Close()

	tokenURL, err := DiscoverTokenEndpoint(context.Background(), srv.URL+"/realms/master", "admin-cli", srv.Client())
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/realms/master/protocol/openid-connect/token", tokenURL)
}
