package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func TestGenerateAndValidateToken(t *testing.T) {
	session := UserSession{ID: "lead-1", Name: "Ben Lead", Roles: []string{"clinical_lead"}}

	token, err := GenerateToken(secret, session, time.Hour)
	require.NoError(t, err)

	claims, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, session, claims.User)
	assert.Equal(t, "lead-1", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.True(t, claims.User.HasRole("clinical_lead"))
	assert.False(t, claims.User.HasRole("director"))
}

func TestValidateToken_Rejects(t *testing.T) {
	session := UserSession{ID: "lead-1"}

	signed, err := GenerateToken(secret, session, time.Hour)
	require.NoError(t, err)
	_, err = ValidateToken([]byte("other-secret"), signed)
	assert.Error(t, err, "wrong secret")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		User: session,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, err := expired.SignedString(secret)
	require.NoError(t, err)
	_, err = ValidateToken(secret, expiredToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	anonymous, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{}).SignedString(secret)
	require.NoError(t, err)
	_, err = ValidateToken(secret, anonymous)
	assert.Error(t, err, "missing user id")

	_, err = ValidateToken(secret, "not-a-token")
	assert.Error(t, err)

	_, err = GenerateToken(nil, session, time.Hour)
	assert.Error(t, err)
}
