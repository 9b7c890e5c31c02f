package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erazemk/medstock/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 1, "admin", model.RoleAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.EqualValues(t, 1, claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, model.RoleAdmin, claims.Role)
	assert.NotEmpty(t, claims.ID)

	actor := claims.Actor()
	assert.EqualValues(t, 1, actor.ID)
	assert.Equal(t, model.RoleAdmin, actor.Role)
}

func TestTokensHaveUniqueIDs(t *testing.T) {
	a, err := GenerateToken("s", 1, "u", model.RoleUser)
	require.NoError(t, err)
	b, err := GenerateToken("s", 1, "u", model.RoleUser)
	require.NoError(t, err)

	ca, err := ValidateToken("s", a)
	require.NoError(t, err)
	cb, err := ValidateToken("s", b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("secret1", 1, "admin", model.RoleAdmin)
	require.NoError(t, err)

	_, err = ValidateToken("secret2", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenInvalid(t *testing.T) {
	_, err := ValidateToken("secret", "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsForeignIssuerAndExpired(t *testing.T) {
	sign := func(c Claims) string {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("s"))
		require.NoError(t, err)
		return s
	}

	foreign := sign(Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}})
	_, err := ValidateToken("s", foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := sign(Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    Issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	_, err = ValidateToken("s", expired)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpiry(t *testing.T) {
	token, err := GenerateToken("test", 1, "test", model.RoleUser)
	require.NoError(t, err)
	claims, err := ValidateToken("test", token)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(TokenExpiry), claims.ExpiresAt.Time, time.Minute)
}
