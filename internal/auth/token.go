package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenType = "access"

type accessClaims struct {
	UserID string `json:"userId"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 access tokens.
type Signer struct {
	cfg SessionConfig
}

func NewSigner(cfg SessionConfig) (*Signer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	return &Signer{cfg: cfg.withDefaults()}, nil
}

func (s *Signer) TTL() time.Duration {
	return s.cfg.AccessTTL
}

func (s *Signer) IssueAccessToken(userID string) (AccessToken, error) {
	now := s.cfg.now()
	expiresAt := now.Add(s.cfg.AccessTTL)

	claims := accessClaims{
		UserID: userID,
		Type:   accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign jwt: %w", err)
	}

	return AccessToken{Value: encoded, ExpiresAt: expiresAt}, nil
}

// VerifyAccessToken returns the user id carried by a valid, unexpired token.
// Every failure collapses into ErrInvalidToken.
func (s *Signer) VerifyAccessToken(token string) (string, error) {
	claims := &accessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.cfg.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Type != accessTokenType || claims.UserID == "" {
		return "", ErrInvalidToken
	}

	return claims.UserID, nil
}
