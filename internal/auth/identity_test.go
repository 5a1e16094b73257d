package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret"

type fakeVerifier struct {
	claims *Claims
}

func (f fakeVerifier) Validate(string) (*Claims, error) {
	if f.claims == nil {
		return nil, errors.New("bad token")
	}
	return f.claims, nil
}

func (fakeVerifier) Close() error { return nil }

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = BearerToken("bearer xyz")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	_, err = BearerToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	for _, header := range []string{"Basic abc", "Bearer", "Bearer "} {
		_, err = BearerToken(header)
		assert.ErrorIs(t, err, ErrMalformedToken, header)
	}
}

func TestAuthenticator_LegacyToken(t *testing.T) {
	token, err := IssueLegacyToken(testSecret, "user-1", "u@example.com", time.Hour)
	require.NoError(t, err)

	identity, err := NewAuthenticator(nil, testSecret).Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, "u@example.com", identity.Email)

	_, err = NewAuthenticator(nil, "other-secret").Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_ExpiredLegacyToken(t *testing.T) {
	token, err := IssueLegacyToken(testSecret, "user-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = NewAuthenticator(nil, testSecret).Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_VerifierFirst(t *testing.T) {
	v := fakeVerifier{claims: &Claims{UserID: "zitadel-user", Name: "Ada"}}

	identity, err := NewAuthenticator(v, testSecret).Resolve("anything")
	require.NoError(t, err)
	assert.Equal(t, "zitadel-user", identity.UserID)
	assert.Equal(t, "Ada", identity.Name)
}

func TestAuthenticator_FallsBackToLegacy(t *testing.T) {
	token, err := IssueLegacyToken(testSecret, "legacy-user", "", time.Hour)
	require.NoError(t, err)

	identity, err := NewAuthenticator(fakeVerifier{}, testSecret).Resolve(token)
	require.NoError(t, err)
	assert.Equal(t, "legacy-user", identity.UserID)

	_, err = NewAuthenticator(fakeVerifier{}, "").Resolve(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_NotConfigured(t *testing.T) {
	_, err := NewAuthenticator(nil, "").Resolve("token")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
