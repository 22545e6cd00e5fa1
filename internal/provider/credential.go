package provider

import "time"

// Credential is an admin bearer token together with its lifetime.
type Credential struct {
	Token    string
	IssuedAt time.Time
	TTL      time.Duration
}

// ExpiresAt returns the instant the provider stops accepting the token.
func (c Credential) ExpiresAt() time.Time {
	return c.IssuedAt.Add(c.TTL)
}

// Valid reports whether the credential may still be handed out at now,
// treating it as expired margin before the provider's deadline.
func (c Credential) Valid(now time.Time, margin time.Duration) bool {
	if c.Token == "" {
		return false
	}
	return now.Before(c.ExpiresAt().Add(-margin))
}
