package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequired sets the provider credentials every Load call needs.
func setRequired(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Setenv("SSO_PROVIDER_ADMIN_USERNAME", "admin")
	t.Setenv("SSO_PROVIDER_ADMIN_PASSWORD", "admin-pw")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.Debug)

	p := cfg.Provider
	assert.Equal(t, "http://localhost:8180", p.BaseURL)
	assert.Equal(t, "demo", p.Realm)
	assert.Equal(t, "master", p.MasterRealm)
	assert.Equal(t, "admin-cli", p.AdminClientID)
	assert.Equal(t, 5*time.Second, p.TokenSafetyMargin)
	assert.Equal(t, 10*time.Second, p.TokenFetchTimeout)
	assert.Equal(t, 15*time.Second, p.RequestTimeout)
	assert.Zero(t, p.RateLimit)
	assert.Equal(t, []string{"default-roles-demo"}, p.UnmanagedRoles)

	assert.Equal(t, "http://localhost:8180/realms/master/protocol/openid-connect/token", p.TokenURL())
	assert.Equal(t, "http://localhost:8180/admin/realms/demo", p.AdminURL())

	assert.False(t, cfg.Auth.Enabled())
	assert.Equal(t, "roles", cfg.Auth.RolesClaim)
}

// TestLoad_WithEnvironmentVariables tests that SSO_ prefixed environment variables work
func TestLoad_WithEnvironmentVariables(t *testing.T) {
	setRequired(t)
	t.Setenv("SSO_SERVER_ADDR", "127.0.0.1:9090")
	t.Setenv("SSO_DEBUG", "true")
	t.Setenv("SSO_PROVIDER_BASE_URL", "https://kc.example.com/")
	t.Setenv("SSO_PROVIDER_REALM", "acme")
	t.Setenv("SSO_PROVIDER_TOKEN_SAFETY_MARGIN", "10s")
	t.Setenv("SSO_PROVIDER_RATE_LIMIT", "25")
	t.Setenv("SSO_PROVIDER_UNMANAGED_ROLES", "offline_access, uma_authorization")
	t.Setenv("SSO_AUTH_ISSUER", "https://kc.example.com/realms/acme")
	t.Setenv("SSO_AUTH_AUDIENCE", "sso-api")
	t.Setenv("SSO_AUTH_ROLES_CLAIM", "realm_access.roles")
	t.Setenv("SSO_AUTH_POLICY", "p, role:AUDITOR, users, read; p, role:AUDITOR, users, list")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9090", cfg.ServerAddr)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "https://kc.example.com/admin/realms/acme", cfg.Provider.AdminURL())
	assert.Equal(t, 10*time.Second, cfg.Provider.TokenSafetyMargin)
	assert.Equal(t, 25.0, cfg.Provider.RateLimit)
	assert.Equal(t, []string{"offline_access", "uma_authorization"}, cfg.Provider.UnmanagedRoles)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, "sso-api", cfg.Auth.Audience)
	assert.Equal(t, "realm_access.roles", cfg.Auth.RolesClaim)
	assert.Equal(t, []string{"p, role:AUDITOR, users, read", "p, role:AUDITOR, users, list"}, cfg.Auth.Policy)
}

// TestLoad_WithConfigFile tests config file loading
func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ssoapi.yaml")

	configContent := `
server:
  addr: "127.0.0.1:8888"
  cors_origins:
    - "https://admin.example.com"
provider:
  base_url: "http://keycloak:8080"
  realm: "file-realm"
  admin_username: "file-admin"
  admin_password: "file-pw"
  token_endpoint: "http://keycloak:8080/custom/token"
  unmanaged_roles: []
auth:
  anonymous_roles: ["ADMIN"]
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	viper.Reset()
	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8888", cfg.ServerAddr)
	assert.Equal(t, []string{"https://admin.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "file-realm", cfg.Provider.Realm)
	assert.Equal(t, "file-admin", cfg.Provider.AdminUsername)
	assert.Equal(t, "http://keycloak:8080/custom/token", cfg.Provider.TokenURL())
	assert.Empty(t, cfg.Provider.UnmanagedRoles)
	assert.Equal(t, []string{"ADMIN"}, cfg.Auth.AnonymousRoles)
}

func TestLoad_EnvOverridesConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "ssoapi.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("provider:\n  realm: from-file\n"), 0644))

	setRequired(t)
	viper.SetConfigFile(configPath)
	require.NoError(t, viper.ReadInConfig())
	t.Setenv("SSO_PROVIDER_REALM", "from-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Provider.Realm)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing admin username",
			env:     map[string]string{"SSO_PROVIDER_ADMIN_USERNAME": ""},
			wantErr: "provider.admin_username is required",
		},
		{
			name:    "missing admin password",
			env:     map[string]string{"SSO_PROVIDER_ADMIN_PASSWORD": ""},
			wantErr: "provider.admin_password is required",
		},
		{
			name:    "relative base url",
			env:     map[string]string{"SSO_PROVIDER_BASE_URL": "keycloak:8080"},
			wantErr: "provider.base_url must be an absolute URL",
		},
		{
			name:    "negative safety margin",
			env:     map[string]string{"SSO_PROVIDER_TOKEN_SAFETY_MARGIN": "-1s"},
			wantErr: "provider.token_safety_margin must not be negative",
		},
		{
			name:    "issuer without audience",
			env:     map[string]string{"SSO_AUTH_ISSUER": "https://kc.example.com/realms/demo"},
			wantErr: "auth.audience is required",
		},
		{
			name:    "audience without issuer",
			env:     map[string]string{"SSO_AUTH_AUDIENCE": "sso-api"},
			wantErr: "auth.issuer is required",
		},
		{
			name:    "rate limit without burst",
			env:     map[string]string{"SSO_PROVIDER_RATE_LIMIT": "5", "SSO_PROVIDER_RATE_BURST": "0"},
			wantErr: "provider.rate_burst must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
