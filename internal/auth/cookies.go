package auth

import (
	"net/http"
	"strings"
	"time"
)

const (
	AccessCookieName  = "Authentication"
	RefreshCookieName = "RefreshToken"
)

type CookieOptions struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secure     bool
	SameSite   http.SameSite
	Domain     string
}

// Cookies maps session tokens to and from HTTP cookies.
type Cookies struct {
	opts CookieOptions
}

func NewCookies(opts CookieOptions) *Cookies {
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = DefaultAccessTTL
	}
	if opts.RefreshTTL <= 0 {
		opts.RefreshTTL = DefaultRefreshTTL
	}
	if opts.SameSite == 0 {
		opts.SameSite = http.SameSiteLaxMode
	}
	return &Cookies{opts: opts}
}

func (c *Cookies) SetSession(w http.ResponseWriter, tokens Tokens) {
	http.SetCookie(w, c.cookie(AccessCookieName, tokens.AccessToken, c.opts.AccessTTL, tokens.AccessExpiresAt))
	http.SetCookie(w, c.cookie(RefreshCookieName, tokens.RefreshToken, c.opts.RefreshTTL, tokens.RefreshExpiresAt))
}

func (c *Cookies) SetAccess(w http.ResponseWriter, token AccessToken) {
	http.SetCookie(w, c.cookie(AccessCookieName, token.Value, c.opts.AccessTTL, token.ExpiresAt))
}

func (c *Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookieName, RefreshCookieName} {
		cookie := c.cookie(name, "", 0, time.Unix(0, 0))
		cookie.MaxAge = -1
		http.SetCookie(w, cookie)
	}
}

func (c *Cookies) cookie(name, value string, ttl time.Duration, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.opts.Domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  expires.UTC(),
		HttpOnly: true,
		Secure:   c.opts.Secure,
		SameSite: c.opts.SameSite,
	}
}

// AccessTokenFromRequest prefers the session cookie and falls back to an
// Authorization: Bearer header for non-browser clients.
func AccessTokenFromRequest(r *http.Request) string {
	if cookie, err := r.Cookie(AccessCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func RefreshTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}
