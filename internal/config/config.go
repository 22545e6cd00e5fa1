package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. SSO_PROVIDER_REALM.
const EnvPrefix = "SSO"

// Config holds the application configuration
type Config struct {
	// Server bind address (host:port)
	ServerAddr string

	// Allowed CORS origins for the admin API
	CORSOrigins []string

	// Enable debug logging
	Debug bool

	// Keycloak admin API access
	Provider ProviderConfig

	// Inbound bearer token verification and authorization
	Auth AuthConfig
}

// ProviderConfig describes how the gateway reaches the Keycloak admin API.
//
// The admin token is obtained with the resource-owner password grant against the
// master realm, while users and roles are managed in Realm.
type ProviderConfig struct {
	BaseURL       string // e.g. "http://localhost:8180"
	Realm         string // realm whose users are managed
	MasterRealm   string // realm that issues the admin token, usually "master"
	AdminClientID string // public client used for the password grant, usually "admin-cli"
	AdminUsername string
	AdminPassword string

	// TokenEndpoint overrides the derived token URL when set.
	TokenEndpoint string
	// DiscoverTokenEndpoint reads the token URL from the master realm's discovery document.
	DiscoverTokenEndpoint bool

	TokenSafetyMargin time.Duration
	TokenFetchTimeout time.Duration
	// DefaultTokenTTL applies when the token response carries no usable lifetime.
	DefaultTokenTTL time.Duration
	RequestTimeout  time.Duration

	// RateLimit caps outbound admin requests per second. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// UnmanagedRoles are never added or removed by role reconciliation.
	UnmanagedRoles []string
}

// IssuerURL returns the master realm issuer, used for discovery.
func (p ProviderConfig) IssuerURL() string {
	return strings.TrimRight(p.BaseURL, "/") + "/realms/" + url.PathEscape(p.MasterRealm)
}

// TokenURL returns the configured token endpoint or the one derived from the master realm.
func (p ProviderConfig) TokenURL() string {
	if p.TokenEndpoint != "" {
		return p.TokenEndpoint
	}
	return p.IssuerURL() + "/protocol/openid-connect/token"
}

// AdminURL returns the admin API root of the managed realm.
func (p ProviderConfig) AdminURL() string {
	return strings.TrimRight(p.BaseURL, "/") + "/admin/realms/" + url.PathEscape(p.Realm)
}

// AuthConfig configures verification of callers' bearer tokens.
type AuthConfig struct {
	// Issuer of caller tokens. Empty disables authentication (development only).
	Issuer string
	// Audience required in caller tokens.
	Audience string
	// RolesClaim names the claim carrying role names. Dotted paths such as
	// "realm_access.roles" address nested objects.
	RolesClaim string
	// AnonymousRoles are granted to every request while authentication is disabled.
	AnonymousRoles []string
	// Policy holds extra casbin policy lines, e.g. "p, role:AUDITOR, users, read".
	Policy []string
}

// Enabled reports whether inbound tokens are verified.
func (a AuthConfig) Enabled() bool {
	return a.Issuer != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("debug", false)

	v.SetDefault("provider.base_url", "http://localhost:8180")
	v.SetDefault("provider.realm", "demo")
	v.SetDefault("provider.master_realm", "master")
	v.SetDefault("provider.admin_client_id", "admin-cli")
	v.SetDefault("provider.admin_username", "")
	v.SetDefault("provider.admin_password", "")
	v.SetDefault("provider.token_endpoint", "")
	v.SetDefault("provider.discover_token_endpoint", false)
	v.SetDefault("provider.token_safety_margin", 5*time.Second)
	v.SetDefault("provider.token_fetch_timeout", 10*time.Second)
	v.SetDefault("provider.default_token_ttl", 60*time.Second)
	v.SetDefault("provider.request_timeout", 15*time.Second)
	v.SetDefault("provider.rate_limit", 0.0)
	v.SetDefault("provider.rate_burst", 10)

	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.roles_claim", "roles")
}

// Load reads configuration from the global viper instance: defaults, then the
// config file if one was read, then SSO_ prefixed environment variables.
func Load() (*Config, error) {
	v := viper.GetViper()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		ServerAddr:  v.GetString("server.addr"),
		CORSOrigins: stringSlice(v, "server.cors_origins", ","),
		Debug:       v.GetBool("debug"),
		Provider: ProviderConfig{
			BaseURL:               v.GetString("provider.base_url"),
			Realm:                 v.GetString("provider.realm"),
			MasterRealm:           v.GetString("provider.master_realm"),
			AdminClientID:         v.GetString("provider.admin_client_id"),
			AdminUsername:         v.GetString("provider.admin_username"),
			AdminPassword:         v.GetString("provider.admin_password"),
			TokenEndpoint:         v.GetString("provider.token_endpoint"),
			DiscoverTokenEndpoint: v.GetBool("provider.discover_token_endpoint"),
			TokenSafetyMargin:     v.GetDuration("provider.token_safety_margin"),
			TokenFetchTimeout:     v.GetDuration("provider.token_fetch_timeout"),
			DefaultTokenTTL:       v.GetDuration("provider.default_token_ttl"),
			RequestTimeout:        v.GetDuration("provider.request_timeout"),
			RateLimit:             v.GetFloat64("provider.rate_limit"),
			RateBurst:             v.GetInt("provider.rate_burst"),
			UnmanagedRoles:        stringSlice(v, "provider.unmanaged_roles", ","),
		},
		Auth: AuthConfig{
			Issuer:         v.GetString("auth.issuer"),
			Audience:       v.GetString("auth.audience"),
			RolesClaim:     v.GetString("auth.roles_claim"),
			AnonymousRoles: stringSlice(v, "auth.anonymous_roles", ","),
			Policy:         stringSlice(v, "auth.policy", ";"),
		},
	}

	if !v.IsSet("provider.unmanaged_roles") {
		cfg.Provider.UnmanagedRoles = []string{"default-roles-" + strings.ToLower(cfg.Provider.Realm)}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	p := c.Provider
	if p.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	u, err := url.Parse(p.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("provider.base_url must be an absolute URL, got %q", p.BaseURL)
	}
	if p.Realm == "" {
		return fmt.Errorf("provider.realm is required")
	}
	if p.MasterRealm == "" {
		return fmt.Errorf("provider.master_realm is required")
	}
	if p.AdminClientID == "" {
		return fmt.Errorf("provider.admin_client_id is required")
	}
	if p.AdminUsername == "" {
		return fmt.Errorf("provider.admin_username is required")
	}
	if p.AdminPassword == "" {
		return fmt.Errorf("provider.admin_password is required")
	}
	if p.TokenSafetyMargin < 0 {
		return fmt.Errorf("provider.token_safety_margin must not be negative")
	}
	if p.TokenFetchTimeout <= 0 {
		return fmt.Errorf("provider.token_fetch_timeout must be positive")
	}
	if p.DefaultTokenTTL <= 0 {
		return fmt.Errorf("provider.default_token_ttl must be positive")
	}
	if p.RateLimit < 0 {
		return fmt.Errorf("provider.rate_limit must not be negative")
	}
	if p.RateLimit > 0 && p.RateBurst < 1 {
		return fmt.Errorf("provider.rate_burst must be at least 1 when provider.rate_limit is set")
	}

	if c.Auth.Enabled() && c.Auth.Audience == "" {
		return fmt.Errorf("auth.audience is required when auth.issuer is set")
	}
	if !c.Auth.Enabled() && c.Auth.Audience != "" {
		return fmt.Errorf("auth.issuer is required when auth.audience is set")
	}
	if c.Auth.RolesClaim == "" {
		return fmt.Errorf("auth.roles_claim must not be empty")
	}
	return nil
}

// stringSlice accepts both YAML lists and sep separated environment values.
// Policy lines contain commas, so they are separated by ";".
func stringSlice(v *viper.Viper, key, sep string) []string {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		var out []string
		for _, part := range strings.Split(s, sep) {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return v.GetStringSlice(key)
}
