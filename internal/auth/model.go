package auth

import "time"

// RefreshTokenRecord is a persisted refresh token. Token carries the raw
// value only when the record was just created or looked up by that value;
// stores keep a digest, never the raw token.
type RefreshTokenRecord struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Usable reports whether the record may still be exchanged for an access token.
func (r RefreshTokenRecord) Usable(now time.Time) bool {
	return !r.IsRevoked && !now.After(r.ExpiresAt)
}

type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Tokens is what a successful sign-up or sign-in hands to the transport.
type Tokens struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionConfig is the single source of secrets and lifetimes for the
// signer and the refresh token stores.
type SessionConfig struct {
	Secret         []byte
	AccessTTL      time.Duration
	RefreshTTL     time.Duration
	PurgeBatchSize int
	Now            func() time.Time
}

const (
	DefaultAccessTTL      = 15 * time.Minute
	DefaultRefreshTTL     = 7 * 24 * time.Hour
	defaultPurgeBatchSize = 500
)

func (c SessionConfig) withDefaults() SessionConfig {
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.PurgeBatchSize <= 0 {
		c.PurgeBatchSize = defaultPurgeBatchSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

func (c SessionConfig) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}
