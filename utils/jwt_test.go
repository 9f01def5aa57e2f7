package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperatorToken_RoundTrip(t *testing.T) {
	secret := []byte("s3cret")
	tok, err := GenerateOperatorToken(secret, "ops@example.com", time.Hour)
	require.NoError(t, err)

	sub, err := ExtractOperatorFromToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", sub)
}

func TestOperatorToken_Rejected(t *testing.T) {
	secret := []byte("s3cret")

	expired, err := GenerateOperatorToken(secret, "ops", -time.Minute)
	require.NoError(t, err)
	_, err = ExtractOperatorFromToken(secret, expired)
	assert.Error(t, err)

	other, err := GenerateOperatorToken([]byte("other"), "ops", time.Hour)
	require.NoError(t, err)
	_, err = ExtractOperatorFromToken(secret, other)
	assert.Error(t, err)

	notOperator, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "someone",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	_, err = ExtractOperatorFromToken(secret, notOperator)
	assert.Error(t, err)
}
