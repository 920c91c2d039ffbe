package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// refreshTokenBytes is the entropy of an opaque refresh token before hex encoding.
const refreshTokenBytes = 64

// RefreshTokenStore persists refresh token records. FindByToken returns a nil
// record when nothing matches and applies no expiry or revocation policy;
// that judgement belongs to the Service.
type RefreshTokenStore interface {
	Create(ctx context.Context, userID string) (RefreshTokenRecord, error)
	FindByToken(ctx context.Context, token string) (*RefreshTokenRecord, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newRefreshRecord mints a fresh token and its record under cfg's TTL.
func newRefreshRecord(cfg SessionConfig, userID string) (RefreshTokenRecord, error) {
	token, err := randomToken(refreshTokenBytes)
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := cfg.now()
	return RefreshTokenRecord{
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(cfg.RefreshTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MemoryRefreshStore keeps records in process memory. Suitable for tests
// and single-instance development runs.
type MemoryRefreshStore struct {
	cfg     SessionConfig
	mu      sync.Mutex
	records map[string]RefreshTokenRecord
}

func NewMemoryRefreshStore(cfg SessionConfig) *MemoryRefreshStore {
	return &MemoryRefreshStore{
		cfg:     cfg.withDefaults(),
		records: make(map[string]RefreshTokenRecord),
	}
}

func (s *MemoryRefreshStore) Create(_ context.Context, userID string) (RefreshTokenRecord, error) {
	record, err := newRefreshRecord(s.cfg, userID)
	if err != nil {
		return RefreshTokenRecord{}, err
	}

	stored := record
	stored.Token = ""

	s.mu.Lock()
	s.records[tokenDigest(record.Token)] = stored
	s.mu.Unlock()

	return record, nil
}

func (s *MemoryRefreshStore) FindByToken(_ context.Context, token string) (*RefreshTokenRecord, error) {
	s.mu.Lock()
	record, ok := s.records[tokenDigest(token)]
	s.mu.Unlock()

	if !ok {
		return nil, nil
	}
	record.Token = token
	return &record, nil
}

func (s *MemoryRefreshStore) Revoke(_ context.Context, token string) error {
	key := tokenDigest(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[key]; ok && !record.IsRevoked {
		record.IsRevoked = true
		record.UpdatedAt = s.cfg.now()
		s.records[key] = record
	}
	return nil
}

func (s *MemoryRefreshStore) RevokeAllForUser(_ context.Context, userID string) error {
	now := s.cfg.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, record := range s.records {
		if record.UserID == userID && !record.IsRevoked {
			record.IsRevoked = true
			record.UpdatedAt = now
			s.records[key] = record
		}
	}
	return nil
}

func (s *MemoryRefreshStore) PurgeExpired(_ context.Context) (int64, error) {
	now := s.cfg.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, record := range s.records {
		if record.ExpiresAt.Before(now) {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryRefreshStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
