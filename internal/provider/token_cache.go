package provider

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	"github.com/drago-vuckovic/sso/internal/telemetry"
)

const credentialKey = "admin-credential"

// CredentialCacheOptions configures a CredentialCache.
type CredentialCacheOptions struct {
	// SafetyMargin expires credentials this long before the provider would.
	SafetyMargin time.Duration
	// FetchTimeout bounds a single token request. It applies even when the
	// caller that started the fetch has gone away.
	FetchTimeout time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics telemetry.Recorder
}

// CredentialCache hands out a valid admin credential to concurrent callers.
//
// At most one credential is cached. When it is missing or expired, exactly one
// fetch runs and every caller arriving meanwhile waits for that fetch. A failed
// fetch leaves the cache empty and is reported to all of its waiters.
type CredentialCache struct {
	fetcher TokenFetcher
	opts    CredentialCacheOptions

	mu      sync.Mutex
	current *Credential

	group singleflight.Group
}

// NewCredentialCache wraps fetcher with single-flight caching.
func NewCredentialCache(fetcher TokenFetcher, opts CredentialCacheOptions) *CredentialCache {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = telemetry.Nop{}
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 10 * time.Second
	}
	return &CredentialCache{fetcher: fetcher, opts: opts}
}

// Credential returns the cached credential or joins the single in-flight fetch.
// ctx only bounds how long this caller waits.
func (c *CredentialCache) Credential(ctx context.Context) (Credential, error) {
	if cred, ok := c.cached(); ok {
		return cred, nil
	}

	ch := c.group.DoChan(credentialKey, func() (any, error) {
		// A fetch that completed between our miss and joining the group already
		// filled the slot.
		if cred, ok := c.cached(); ok {
			return cred, nil
		}
		return c.fetch(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

// Invalidate drops the cached credential if it is still stale. A credential
// that another caller already replaced is left alone, so a burst of 401s for
// the same token produces a single refresh.
func (c *CredentialCache) Invalidate(stale Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && c.current.Token == stale.Token {
		c.current = nil
		c.opts.Logger.Debug("admin credential invalidated")
	}
}

func (c *CredentialCache) cached() (Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return Credential{}, false
	}
	if !c.current.Valid(c.opts.Clock.Now(), c.margin(*c.current)) {
		c.current = nil
		return Credential{}, false
	}
	return *c.current, true
}

// margin is the safety margin clamped to half the TTL, so a short-lived token
// is still usable for a while.
func (c *CredentialCache) margin(cred Credential) time.Duration {
	if c.opts.SafetyMargin >= cred.TTL {
		return cred.TTL / 2
	}
	return c.opts.SafetyMargin
}

func (c *CredentialCache) fetch(ctx context.Context) (Credential, error) {
	fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	cred, err := c.fetcher.FetchCredential(fetchCtx)
	c.opts.Metrics.RecordTokenFetch(err == nil, time.Since(start))
	if err != nil {
		c.opts.Logger.Warn("admin credential fetch failed", "error", err)
		return Credential{}, err
	}

	c.mu.Lock()
	c.current = &cred
	c.mu.Unlock()

	c.opts.Logger.Info("admin credential refreshed",
		"ttl", cred.TTL,
		"expires_at", cred.ExpiresAt(),
	)
	return cred, nil
}
