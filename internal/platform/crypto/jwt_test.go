package crypto

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-key"

func TestGenerateToken_WithJTI(t *testing.T) {
	token, jti, err := GenerateToken(secret, "user-123", "kid@example.com", []string{"user"}, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, jti)

	claims, err := ParseToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, "user-123", claims.Sub)
	assert.Equal(t, "kid@example.com", claims.Email)
	assert.Equal(t, []string{"user"}, claims.Roles)
}

func TestGenerateToken_UniqueJTIs(t *testing.T) {
	token1, jti1, err1 := GenerateToken(secret, "u", "", nil, time.Hour)
	token2, jti2, err2 := GenerateToken(secret, "u", "", nil, time.Hour)
	require.NoError(t, err1)
	require.NoError(t, err2)

	assert.NotEqual(t, jti1, jti2)
	assert.NotEqual(t, token1, token2)
}

func TestParseToken(t *testing.T) {
	t.Run("invalid signature", func(t *testing.T) {
		token, _, err := GenerateToken("wrong-secret", "u", "", nil, time.Hour)
		require.NoError(t, err)

		claims, err := ParseToken(secret, token)
		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("expired token", func(t *testing.T) {
		c := Claims{
			Sub: "u",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			},
		}
		tkn := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
		token, err := tkn.SignedString([]byte(secret))
		require.NoError(t, err)

		claims, err := ParseToken(secret, token)
		assert.Error(t, err)
		assert.Nil(t, claims)
	})

	t.Run("malformed token", func(t *testing.T) {
		claims, err := ParseToken(secret, "not.a.valid.token")
		assert.Error(t, err)
		assert.Nil(t, claims)
	})
}
