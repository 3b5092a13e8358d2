package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEqual(t, "testpassword123", hash)

	assert.True(t, VerifyPassword(hash, "testpassword123"))
	assert.False(t, VerifyPassword(hash, "wrongpassword"))

	hash2, err := HashPassword("testpassword123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := map[string]error{
		"Test123!@#":  nil,
		"SecureP@ss1": nil,
		"Test1!":      ErrPasswordTooShort,
		"test123!@#":  ErrPasswordNoUpper,
		"TEST123!@#":  ErrPasswordNoLower,
		"TestPass!@#": ErrPasswordNoNumber,
		"TestPass123": ErrPasswordNoSpecialChar,
	}

	for password, want := range cases {
		assert.Equal(t, want, ValidatePasswordStrength(password), password)
	}
}
