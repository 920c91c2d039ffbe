package authclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-auth/internal/app"
	"session-auth/internal/config"
	"session-auth/internal/observability"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newAppServer(t *testing.T) (*httptest.Server, *clock) {
	t.Helper()
	c := &clock{now: time.Now().UTC().Truncate(time.Second)}

	rt, err := app.Build(config.Config{
		StoreDriver:          config.DriverMemory,
		RefreshDriver:        config.DriverMemory,
		JWTSecret:            "client-test-secret",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      7 * 24 * time.Hour,
		HashWorkers:          2,
		CookieSameSite:       http.SameSiteLaxMode,
		LoginRateLimitMax:    100,
		LoginRateLimitWindow: time.Minute,
	}, app.Options{Logger: observability.Discard(), Now: c.Now})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	srv := httptest.NewServer(rt.Handler)
	t.Cleanup(srv.Close)
	return srv, c
}

func TestClient_SessionFlow(t *testing.T) {
	srv, clk := newAppServer(t)
	ctx := context.Background()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.Quote(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired, "no refresh cookie yet")

	require.NoError(t, client.SignUp(ctx, "John Doe", "john@example.com", "Password123!"))

	name, err := client.Username(ctx)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", name)

	clk.Advance(20 * time.Minute)
	quote, err := client.Quote(ctx)
	require.NoError(t, err, "expired access token is refreshed transparently")
	assert.NotEmpty(t, quote)

	require.NoError(t, client.Logout(ctx))
	_, err = client.Username(ctx)
	assert.ErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, client.SignIn(ctx, "john@example.com", "Password123!"))
	name, err = client.Username(ctx)
	require.NoError(t, err)
	assert.Equal(t, "John Doe", name)
}

func TestClient_AuthErrorsAreNotRetried(t *testing.T) {
	srv, _ := newAppServer(t)
	ctx := context.Background()

	client, err := New(srv.URL)
	require.NoError(t, err)

	err = client.SignIn(ctx, "nobody@example.com", "Password123!")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)
	assert.NotErrorIs(t, err, ErrSessionExpired)

	require.NoError(t, client.SignUp(ctx, "John Doe", "john@example.com", "Password123!"))
	err = client.SignUp(ctx, "John Doe", "john@example.com", "Password123!")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
}

// tokenServer issues numbered access cookies and counts refresh calls.
type tokenServer struct {
	current   atomic.Int64
	refreshes atomic.Int64
}

func (s *tokenServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		s.refreshes.Add(1)
		time.Sleep(20 * time.Millisecond)
		next := s.current.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "Authentication", Value: strconv.FormatInt(next, 10), Path: "/"})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Token refreshed successfully"}`))
	})
	mux.HandleFunc("GET /content/quote", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		cookie, err := r.Cookie("Authentication")
		if err != nil || cookie.Value != strconv.FormatInt(s.current.Load(), 10) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		_, _ = w.Write([]byte(`{"quote":"ok"}`))
	})
	return mux
}

func TestClient_ConcurrentCallersShareOneRefresh(t *testing.T) {
	ts := &tokenServer{}
	ts.current.Store(1)
	srv := httptest.NewServer(ts.handler())
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Quote(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int64(1), ts.refreshes.Load())
}

func TestClient_RetriesOnlyOnce(t *testing.T) {
	var quoteCalls, refreshCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		refreshCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Token refreshed successfully"}`))
	})
	mux.HandleFunc("GET /content/quote", func(w http.ResponseWriter, _ *http.Request) {
		quoteCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.Quote(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, int64(2), quoteCalls.Load())
	assert.Equal(t, int64(1), refreshCalls.Load())
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	client, err := New("http://localhost:3000/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", client.baseURL.String())
}
