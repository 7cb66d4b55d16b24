package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyRoundTrip(t *testing.T) {
	svc := NewService([]byte("test-secret"))
	signed, err := svc.Sign(Claims{Subject: "user-1", Type: TypeAccess})
	require.Nil(t, err)

	claims, verr := svc.Verify(signed, TypeAccess)
	require.Nil(t, verr)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.NotEmpty(t, claims.JTI)
}

func TestVerifyRejectsTypeMismatch(t *testing.T) {
	svc := NewService([]byte("test-secret"))
	signed, err := svc.Sign(Claims{Subject: "user-1", Type: TypeRefresh})
	require.Nil(t, err)

	_, verr := svc.Verify(signed, TypeAccess)
	require.NotNil(t, verr)
	assert.Equal(t, ErrCauseTypeMismatch, verr.Cause)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signer := NewService([]byte("secret-a"))
	verifier := NewService([]byte("secret-b"))

	signed, err := signer.Sign(Claims{Subject: "user-1", Type: TypeAccess})
	require.Nil(t, err)

	_, verr := verifier.Verify(signed, TypeAccess)
	require.NotNil(t, verr)
	assert.Equal(t, ErrCauseSignature, verr.Cause)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	svc := NewService([]byte("test-secret"))
	past := time.Now().Add(-time.Hour)
	signed, err := svc.Sign(Claims{
		Subject:   "user-1",
		Type:      TypeAccess,
		IssuedAt:  past,
		ExpiresAt: past.Add(time.Minute),
	})
	require.Nil(t, err)

	_, verr := svc.Verify(signed, TypeAccess)
	require.NotNil(t, verr)
	assert.Equal(t, ErrCauseExpired, verr.Cause)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	svc := NewService([]byte("test-secret"))
	_, verr := svc.Verify("not-a-jwt", TypeAccess)
	require.NotNil(t, verr)
	assert.Equal(t, ErrCauseMalformed, verr.Cause)
}

type staticBlacklist map[string]bool

func (s staticBlacklist) IsBlacklisted(jti string) bool { return s[jti] }

func TestVerifyRejectsBlacklistedJTI(t *testing.T) {
	svc := NewService([]byte("test-secret"))
	signed, err := svc.Sign(Claims{Subject: "user-1", Type: TypeRefresh, JTI: "revoked-jti"})
	require.Nil(t, err)

	blacklisted := NewService([]byte("test-secret"), WithBlacklist(staticBlacklist{"revoked-jti": true}))
	_, verr := blacklisted.Verify(signed, TypeRefresh)
	require.NotNil(t, verr)
	assert.Equal(t, ErrCauseBlacklisted, verr.Cause)
}

func TestSignEmbedsScopesSessionAndDeviceFingerprint(t *testing.T) {
	svc := NewService([]byte("test-secret"))
	signed, err := svc.Sign(Claims{
		Subject:           "user-1",
		Type:              TypeAccess,
		Scopes:            []string{"read", "write"},
		SessionID:         "sess-1",
		DeviceFingerprint: "fp-abc",
	})
	require.Nil(t, err)

	claims, verr := svc.Verify(signed, TypeAccess)
	require.Nil(t, verr)
	assert.Equal(t, []string{"read", "write"}, claims.Scopes)
	assert.Equal(t, "sess-1", claims.SessionID)
	assert.Equal(t, "fp-abc", claims.DeviceFingerprint)
}

func TestDefaultLifetimesDifferByType(t *testing.T) {
	assert.Less(t, defaultLifetime(TypeAccess), defaultLifetime(TypeRefresh))
	assert.Less(t, defaultLifetime(TypeMfa), defaultLifetime(TypeAccess))
}

func TestGenerateAPIKeyProducesDisplayKeyAndStableHash(t *testing.T) {
	key, err := GenerateAPIKey()
	require.Nil(t, err)
	assert.NotEmpty(t, key.DisplayKey)
	assert.NotEmpty(t, key.Hash)
	assert.Equal(t, key.Hash, HashAPIKey(key.DisplayKey))
}

func TestGenerateAPIKeyIsUnique(t *testing.T) {
	a, err := GenerateAPIKey()
	require.Nil(t, err)
	b, err := GenerateAPIKey()
	require.Nil(t, err)
	assert.NotEqual(t, a.DisplayKey, b.DisplayKey)
}
