package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// plainHasher keeps service tests fast; bcrypt itself is covered in hasher_test.go.
type plainHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *plainHasher) Hash(_ context.Context, plaintext string) (string, error) {
	return "plain$" + plaintext, nil
}

func (h *plainHasher) Verify(_ context.Context, plaintext, hash string) (bool, error) {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return strings.TrimPrefix(hash, "plain$") == plaintext && strings.HasPrefix(hash, "plain$"), nil
}

func (h *plainHasher) Verifies() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

// countingStore wraps a store and counts lookups.
type countingStore struct {
	RefreshTokenStore
	mu    sync.Mutex
	finds int
}

func (s *countingStore) FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	s.finds++
	s.mu.Unlock()
	return s.RefreshTokenStore.FindByToken(ctx, token)
}

func (s *countingStore) Finds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finds
}

func testSessionConfig(clock *fakeClock) SessionConfig {
	return SessionConfig{
		Secret:     []byte("test-secret"),
		AccessTTL:  DefaultAccessTTL,
		RefreshTTL: DefaultRefreshTTL,
		Now:        clock.Now,
	}
}
