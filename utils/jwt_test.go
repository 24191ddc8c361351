package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaycrm/models"
)

func testUser() *models.User {
	u := &models.User{OrganizationID: 7, Email: "owner@acme.io"}
	u.ID = 3
	return u
}

func TestGenerateAndParseJWT(t *testing.T) {
	setTestEncryptionKey(t)

	access, refresh, err := GenerateJWTTokens(testUser())
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)

	claims, err := ParseJWTToken(access)
	require.NoError(t, err)
	assert.Equal(t, uint(3), claims.UserID)
	assert.Equal(t, uint(7), claims.OrganizationID)
}

func TestParseJWTRejectsTampering(t *testing.T) {
	setTestEncryptionKey(t)

	access, _, err := GenerateJWTTokens(testUser())
	require.NoError(t, err)

	_, err = ParseJWTToken(access + "x")
	assert.Error(t, err)

	_, err = ParseJWTToken("not-a-token")
	assert.Error(t, err)
}

func TestRefreshTokensIssuesNewPair(t *testing.T) {
	setTestEncryptionKey(t)

	_, refresh, err := GenerateJWTTokens(testUser())
	require.NoError(t, err)

	access2, refresh2, err := RefreshTokens(refresh, func(userID uint) (*models.User, error) {
		assert.Equal(t, uint(3), userID)
		return testUser(), nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, access2)
	assert.NotEmpty(t, refresh2)
}

func TestRefreshTokensLookupFailure(t *testing.T) {
	setTestEncryptionKey(t)

	_, refresh, err := GenerateJWTTokens(testUser())
	require.NoError(t, err)

	_, _, err = RefreshTokens(refresh, func(uint) (*models.User, error) {
		return nil, errors.New("user deactivated")
	})
	assert.Error(t, err)
}
