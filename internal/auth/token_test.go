package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_IssueAndVerify(t *testing.T) {
	clock := newFakeClock()
	signer, err := NewSigner(testSessionConfig(clock))
	require.NoError(t, err)

	token, err := signer.IssueAccessToken("user-1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), token.ExpiresAt)
	assert.Equal(t, 15*time.Minute, signer.TTL())

	userID, err := signer.VerifyAccessToken(token.Value)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
}

func TestSigner_RejectsEmptySecret(t *testing.T) {
	_, err := NewSigner(SessionConfig{})
	assert.Error(t, err)
}

func TestSigner_Expired(t *testing.T) {
	clock := newFakeClock()
	signer, err := NewSigner(testSessionConfig(clock))
	require.NoError(t, err)

	token, err := signer.IssueAccessToken("user-1")
	require.NoError(t, err)

	clock.Advance(15*time.Minute + time.Second)
	_, err = signer.VerifyAccessToken(token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_WrongSecret(t *testing.T) {
	clock := newFakeClock()
	signer, err := NewSigner(testSessionConfig(clock))
	require.NoError(t, err)

	otherCfg := testSessionConfig(clock)
	otherCfg.Secret = []byte("another-secret")
	other, err := NewSigner(otherCfg)
	require.NoError(t, err)

	token, err := other.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = signer.VerifyAccessToken(token.Value)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_Tampered(t *testing.T) {
	clock := newFakeClock()
	signer, err := NewSigner(testSessionConfig(clock))
	require.NoError(t, err)

	token, err := signer.IssueAccessToken("user-1")
	require.NoError(t, err)

	parts := strings.Split(token.Value, ".")
	require.Len(t, parts, 3)
	forged, err := NewSigner(SessionConfig{Secret: []byte("x"), Now: clock.Now})
	require.NoError(t, err)
	forgedToken, err := forged.IssueAccessToken("user-2")
	require.NoError(t, err)
	payload := strings.Split(forgedToken.Value, ".")[1]

	_, err = signer.VerifyAccessToken(parts[0] + "." + payload + "." + parts[2])
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = signer.VerifyAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_RejectsOtherAlgorithmsAndTypes(t *testing.T) {
	clock := newFakeClock()
	cfg := testSessionConfig(clock)
	signer, err := NewSigner(cfg)
	require.NoError(t, err)

	exp := jwt.NewNumericDate(clock.Now().Add(time.Minute))

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, accessClaims{
		UserID:           "user-1",
		Type:             accessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = signer.VerifyAccessToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongType, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		UserID:           "user-1",
		Type:             "refresh",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
	}).SignedString(cfg.Secret)
	require.NoError(t, err)
	_, err = signer.VerifyAccessToken(wrongType)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims{
		UserID: "user-1",
		Type:   accessTokenType,
	}).SignedString(cfg.Secret)
	require.NoError(t, err)
	_, err = signer.VerifyAccessToken(noExpiry)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
