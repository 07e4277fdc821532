package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccessToken(t *testing.T) {
	userID := uuid.New()
	orgID := uuid.New()
	secret := "test-secret"

	signed, err := NewAccessToken(userID, orgID, secret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, orgID, claims.OrgID)
	assert.Equal(t, "canopy-backend", claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)

	t.Run("wrong secret fails verification", func(t *testing.T) {
		_, err := jwt.ParseWithClaims(signed, &CustomClaims{}, func(t *jwt.Token) (any, error) {
			return []byte("wrong-secret"), nil
		})
		require.Error(t, err)
	})

	t.Run("expired token fails verification", func(t *testing.T) {
		expired, err := NewAccessToken(userID, orgID, secret, -time.Minute)
		require.NoError(t, err)

		_, err = jwt.ParseWithClaims(expired, &CustomClaims{}, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		})
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2")
	require.NoError(t, err)
	require.NotEqual(t, "hunter2hunter2", hash)

	assert.True(t, CheckPasswordHash("hunter2hunter2", hash))
	assert.False(t, CheckPasswordHash("wrong-password", hash))
	assert.False(t, CheckPasswordHash("hunter2hunter2", "not-a-bcrypt-hash"))
}
