package token

import (
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GuardWatch/pkg/errors"
)

func TestGenerateAndParse(t *testing.T) {
	require.NoError(t, InitWithSecret([]byte("test-secret"), time.Hour))

	tok, expiresIn, err := GenerateAccessToken(42)
	require.NoError(t, err)
	assert.Equal(t, 3600, expiresIn)

	adminID, err := ParseAdminID(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), adminID)
}

func TestParseAdminID_RejectsForeignSecret(t *testing.T) {
	require.NoError(t, InitWithSecret([]byte("test-secret"), time.Hour))

	forged, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, jwtv5.MapClaims{
		IdentityKey: "42",
		"exp":       time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = ParseAdminID(forged)
	require.Error(t, err)
}

func TestAdminIDFromClaim(t *testing.T) {
	id, err := AdminIDFromClaim("7")
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	id, err = AdminIDFromClaim(float64(9))
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)

	_, err = AdminIDFromClaim("abc")
	assert.ErrorIs(t, err, errors.InvalidAdmin)

	_, err = AdminIDFromClaim(nil)
	assert.ErrorIs(t, err, errors.ErrInvalidTokenClaims)
}
