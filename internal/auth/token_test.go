package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifier_UserID(t *testing.T) {
	v := NewVerifier("test-secret")

	t.Run("ValidToken", func(t *testing.T) {
		token, err := v.Mint("user-a", time.Hour)
		require.NoError(t, err)

		userID, err := v.UserID(token)
		require.NoError(t, err)
		assert.Equal(t, "user-a", userID)
	})

	t.Run("NoExpiry", func(t *testing.T) {
		token, err := v.Mint("user-a", 0)
		require.NoError(t, err)

		userID, err := v.UserID(token)
		require.NoError(t, err)
		assert.Equal(t, "user-a", userID)
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, err := v.UserID("")
		assert.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := NewVerifier("other-secret").Mint("user-a", time.Hour)
		require.NoError(t, err)

		_, err = v.UserID(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Expired", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"userId": "user-a",
			"exp":    time.Now().Add(-time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = v.UserID(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("MissingUserIDClaim", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "user-a",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = v.UserID(signed)
		assert.ErrorIs(t, err, ErrMissingUserID)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := v.UserID("invalid.jwt.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
