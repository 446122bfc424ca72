package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSignAccessToken_expiresOneHourAfterIssue(t *testing.T) {
	svc := NewJWTService("test-secret")
	svc.now = fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 987654321, time.UTC))
	userID := uuid.New()

	token, claims, err := svc.SignAccessToken(userID, "google", "openid")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), claims.ExpiresAt.Unix()-claims.IssuedAt.Unix())

	parsed, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), parsed.Subject)
	assert.Equal(t, "google", parsed.ClientID)
	assert.Equal(t, "openid", parsed.Scope)
	assert.Equal(t, parsed.IssuedAt.Unix()+3600, parsed.ExpiresAt.Unix())
}

func TestVerifyToken_wrongSecret(t *testing.T) {
	token, _, err := NewJWTService("secret-a").SignAccessToken(uuid.New(), "c", "s")
	require.NoError(t, err)

	_, err = NewJWTService("secret-b").VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyToken_expired(t *testing.T) {
	svc := NewJWTService("test-secret")
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = fixedClock(issued)
	token, _, err := svc.SignAccessToken(uuid.New(), "c", "s")
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.VerifyToken(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerifyToken_rejectsNoneAlgorithm(t *testing.T) {
	claims := &AccessClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTService("test-secret").VerifyToken(token)
	assert.Error(t, err)
}

func TestHashToken(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashToken(""))
	raw, hash, err := GenerateOpaqueToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, HashToken(raw), hash)
	assert.NotEqual(t, raw, hash)
}
