package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"session-auth/internal/observability"
	"session-auth/internal/users"
)

type PasswordHasher interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, plaintext, hash string) (bool, error)
}

type AccessTokenSigner interface {
	IssueAccessToken(userID string) (AccessToken, error)
	VerifyAccessToken(token string) (string, error)
}

// Service is the session manager. Sessions are not server objects: a caller
// is authenticated exactly while it holds a valid access token, and can
// obtain a new one while it holds a usable refresh token.
//
// Refresh tokens are not rotated on use; one refresh token lives until
// logout or its own expiry.
type Service struct {
	users   users.Store
	hasher  PasswordHasher
	signer  AccessTokenSigner
	refresh RefreshTokenStore
	logger  *observability.Logger
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

func NewService(userStore users.Store, hasher PasswordHasher, signer AccessTokenSigner, refresh RefreshTokenStore, logger *observability.Logger) *Service {
	return &Service{
		users:   userStore,
		hasher:  hasher,
		signer:  signer,
		refresh: refresh,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Service) SignUp(ctx context.Context, name, email, password string) (Tokens, error) {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return Tokens{}, err
	}

	user, err := s.users.Create(ctx, users.NewUser{
		Email:        normalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return Tokens{}, ErrDuplicateEmail
		}
		return Tokens{}, fmt.Errorf("%w: create user: %w", ErrPersistence, err)
	}

	return s.createTokens(ctx, user.ID)
}

// SignIn answers an unknown email and a wrong password identically, and
// both paths pay for one bcrypt comparison.
func (s *Service) SignIn(ctx context.Context, email, password string) (Tokens, error) {
	email = normalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, users.ErrNotFound) {
			return Tokens{}, fmt.Errorf("%w: find user: %w", ErrPersistence, err)
		}
		s.burnCompare(ctx, password)
		s.logger.Info("sign_in_rejected", map[string]any{"reason": "unknown_email"})
		return Tokens{}, ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return Tokens{}, err
	}
	if !ok {
		s.logger.Info("sign_in_rejected", map[string]any{"reason": "wrong_password", "user_id": user.ID})
		return Tokens{}, ErrInvalidCredentials
	}

	return s.createTokens(ctx, user.ID)
}

func (s *Service) createTokens(ctx context.Context, userID string) (Tokens, error) {
	access, err := s.signer.IssueAccessToken(userID)
	if err != nil {
		return Tokens{}, err
	}

	record, err := s.refresh.Create(ctx, userID)
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	return Tokens{
		UserID:           userID,
		AccessToken:      access.Value,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     record.Token,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

// RefreshAccessToken exchanges a refresh token for a new access token.
// Unknown and revoked tokens both fail with ErrInvalidToken.
func (s *Service) RefreshAccessToken(ctx context.Context, refreshToken string) (AccessToken, error) {
	if refreshToken == "" {
		return AccessToken{}, ErrMissingToken
	}

	record, err := s.refresh.FindByToken(ctx, refreshToken)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if record == nil || record.IsRevoked {
		return AccessToken{}, ErrInvalidToken
	}
	if s.now().After(record.ExpiresAt) {
		return AccessToken{}, ErrExpiredToken
	}

	return s.signer.IssueAccessToken(record.UserID)
}

// Logout revokes the refresh token. Unknown or already revoked tokens are
// fine; the returned error only ever reports a store failure.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// LogoutEverywhere revokes every refresh token the user holds.
func (s *Service) LogoutEverywhere(ctx context.Context, userID string) error {
	if err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// ValidateAccessToken resolves an access token to the user it was issued for.
func (s *Service) ValidateAccessToken(ctx context.Context, accessToken string) (users.User, error) {
	if accessToken == "" {
		return users.User{}, ErrMissingToken
	}

	userID, err := s.signer.VerifyAccessToken(accessToken)
	if err != nil {
		return users.User{}, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return users.User{}, ErrUnknownSubject
		}
		return users.User{}, fmt.Errorf("%w: find user: %w", ErrPersistence, err)
	}

	return user, nil
}

func (s *Service) burnCompare(ctx context.Context, password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(context.WithoutCancel(ctx), "timing-equalizer")
		if err == nil {
			s.dummyHash = hash
		}
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(ctx, password, s.dummyHash)
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
