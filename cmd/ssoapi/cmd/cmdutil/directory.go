package cmdutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"golang.org/x/time/rate"

	"github.com/drago-vuckovic/sso/internal/config"
	"github.com/drago-vuckovic/sso/internal/directory"
	"github.com/drago-vuckovic/sso/internal/provider"
	"github.com/drago-vuckovic/sso/internal/telemetry"
)

// NewLogger returns a JSON logger writing to w.
func NewLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// DirectoryBundle holds the directory together with the provider plumbing it
// was built from, so callers can inspect or reuse either.
type DirectoryBundle struct {
	Directory   *directory.Directory
	Client      *provider.Client
	Credentials *provider.CredentialCache
	TokenURL    string
}

// NewDirectoryBundle wires the admin token grant, the credential cache, the
// admin client and the directory for one realm. Metrics may be nil.
func NewDirectoryBundle(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics telemetry.Recorder) (*DirectoryBundle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	p := cfg.Provider
	httpClient := &http.Client{Timeout: p.RequestTimeout}

	tokenURL := p.TokenURL()
	if p.DiscoverTokenEndpoint && p.TokenEndpoint == "" {
		discovered, err := provider.DiscoverTokenEndpoint(ctx, p.IssuerURL(), p.AdminClientID, httpClient)
		if err != nil {
			return nil, fmt.Errorf("discover token endpoint: %w", err)
		}
		tokenURL = discovered
		logger.Info("discovered token endpoint", "token_url", tokenURL)
	}

	grant := provider.NewPasswordGrant(provider.PasswordGrantConfig{
		TokenURL:   tokenURL,
		ClientID:   p.AdminClientID,
		Username:   p.AdminUsername,
		Password:   p.AdminPassword,
		DefaultTTL: p.DefaultTokenTTL,
		HTTPClient: httpClient,
	})
	cache := provider.NewCredentialCache(grant, provider.CredentialCacheOptions{
		SafetyMargin: p.TokenSafetyMargin,
		FetchTimeout: p.TokenFetchTimeout,
		Logger:       logger,
		Metrics:      metrics,
	})

	var limiter *rate.Limiter
	if p.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.RateLimit), p.RateBurst)
	}
	client := provider.NewClient(cache, provider.ClientConfig{
		AdminURL:   p.AdminURL(),
		HTTPClient: httpClient,
		Limiter:    limiter,
		Logger:     logger,
		Metrics:    metrics,
	})

	reconciler := directory.NewReconciler(client,
		directory.WithUnmanagedRoles(p.UnmanagedRoles...),
		directory.WithReconcilerLogger(logger),
		directory.WithReconcilerMetrics(metrics),
	)

	return &DirectoryBundle{
		Directory: directory.New(client,
			directory.WithLogger(logger),
			directory.WithReconciler(reconciler),
		),
		Client:      client,
		Credentials: cache,
		TokenURL:    tokenURL,
	}, nil
}

// Warm fetches the admin credential ahead of the first request, surfacing
// bad admin credentials at startup rather than on the first call.
func (b *DirectoryBundle) Warm(ctx context.Context) error {
	_, err := b.Credentials.Credential(ctx)
	return err
}

// LoadDirectory loads configuration and builds a directory for one-shot CLI
// commands. Logs go to stderr so command output stays clean.
func LoadDirectory(ctx context.Context) (*DirectoryBundle, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewDirectoryBundle(ctx, cfg, NewLogger(os.Stderr, cfg.Debug), nil)
}
