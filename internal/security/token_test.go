package security

import (
	"testing"
	"time"

	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuer_RoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	permissions := []models.Permission{models.PermissionChat, models.PermissionHealth}
	token, err := issuer.Issue("sk-abc123", permissions)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc123", claims.APIKey)
	assert.Equal(t, permissions, claims.Permissions)
}

func TestTokenIssuer_Expired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Minute)

	token, err := issuer.Issue("sk-abc123", []models.Permission{models.PermissionChat})
	require.NoError(t, err)

	_, err = issuer.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenIssuer_WrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), time.Hour)
	other := NewTokenIssuer([]byte("secret-b"), time.Hour)

	token, err := issuer.Issue("sk-abc123", []models.Permission{models.PermissionChat})
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenIssuer_Garbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	_, err := issuer.Verify("not-a-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRedactToken(t *testing.T) {
	assert.Equal(t, "***", redactToken("short"))
	assert.Equal(t, "sk-1234567...", redactToken("sk-1234567890abcdef"))
}

func TestEventLog_Eviction(t *testing.T) {
	l := NewEventLog(3)

	l.Append(models.EventInvalidKey, map[string]string{"n": "1"})
	l.Append(models.EventInvalidKey, map[string]string{"n": "2"})
	l.Append(models.EventInvalidKey, map[string]string{"n": "3"})
	l.Append(models.EventInvalidKey, map[string]string{"n": "4"})

	assert.Equal(t, 3, l.Len())

	recent := l.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "2", recent[0].Details["n"], "oldest entry should have been evicted")
	assert.Equal(t, "4", recent[2].Details["n"])
	assert.NotEmpty(t, recent[0].ID)
}
