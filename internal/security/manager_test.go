package security

import (
	"testing"
	"time"

	"github.com/nijenhuis/api-guard/internal/config"
	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/nijenhuis/api-guard/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	cfg := config.SecurityConfig{
		RequestsPerMinute: 60,
		MaxFailedAttempts: 5,
		BlockDuration:     100 * time.Millisecond,
		TokenTTL:          time.Hour,
	}
	keys := storage.NewKeyStore(t.TempDir(), zap.NewNop())
	return NewManager(cfg, keys, []byte("test-secret"), zap.NewNop())
}

func createTestKey(t *testing.T, m *Manager, permissions []models.Permission, override *int) string {
	t.Helper()
	key, err := m.CreateKey("test_key", permissions, override)
	require.NoError(t, err)
	return key
}

func TestAuthenticate_EmptyKey(t *testing.T) {
	m := newTestManager(t)

	ok, reason := m.Authenticate("", models.PermissionChat)
	assert.False(t, ok)
	assert.Equal(t, "API key required", reason)
}

func TestAuthenticate_UnknownKey(t *testing.T) {
	m := newTestManager(t)

	ok, reason := m.Authenticate("unknown", models.PermissionChat)
	assert.False(t, ok)
	assert.Equal(t, "Invalid API key", reason)

	events := m.Events().Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventInvalidKey, events[0].Type)
}

func TestAuthenticate_Permissions(t *testing.T) {
	m := newTestManager(t)
	key := createTestKey(t, m, []models.Permission{models.PermissionChat}, nil)

	ok, _ := m.Authenticate(key, models.PermissionChat)
	assert.True(t, ok)

	ok, reason := m.Authenticate(key, models.PermissionAdmin)
	assert.False(t, ok)
	assert.Contains(t, reason, "Insufficient permissions")

	events := m.Events().Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventInsufficientPermissions, events[0].Type)
}

func TestAuthenticate_UpdatesUsage(t *testing.T) {
	m := newTestManager(t)
	key := createTestKey(t, m, []models.Permission{models.PermissionChat}, nil)

	ok, _ := m.Authenticate(key, models.PermissionChat)
	require.True(t, ok)

	record, found := m.LookupKey(key)
	require.True(t, found)
	assert.Equal(t, int64(1), record.UsageCount)
	assert.NotNil(t, record.LastUsed)
}

func TestCheckRateLimit_Override(t *testing.T) {
	m := newTestManager(t)
	limit := 3
	key := createTestKey(t, m, []models.Permission{models.PermissionChat}, &limit)

	results := make([]bool, 0, 4)
	var lastReason string
	for i := 0; i < 4; i++ {
		ok, reason := m.CheckRateLimit("203.0.113.5:"+key[:10], key)
		results = append(results, ok)
		lastReason = reason
	}

	assert.Equal(t, []bool{true, true, true, false}, results)
	assert.Contains(t, lastReason, "Rate limit exceeded")
	assert.Contains(t, lastReason, "3")
}

func TestCheckRateLimit_DefaultLimit(t *testing.T) {
	m := newTestManager(t)

	// Anonymous callers get the configured global limit
	for i := 0; i < 60; i++ {
		ok, _ := m.CheckRateLimit("203.0.113.9:anonymous", "")
		assert.True(t, ok)
	}
	ok, reason := m.CheckRateLimit("203.0.113.9:anonymous", "")
	assert.False(t, ok)
	assert.Contains(t, reason, "Max 60 requests per minute")
}

func TestIPBlocking_BlockAndAutoUnblock(t *testing.T) {
	m := newTestManager(t)

	identifier := "203.0.113.5:badkey"
	for i := 0; i < 5; i++ {
		m.RecordFailedAttempt(identifier, "203.0.113.5")
	}

	ok, reason := m.CheckIPBlocking("203.0.113.5")
	assert.False(t, ok)
	assert.Equal(t, "IP address is blocked", reason)

	// Wait for the scheduled unblock
	require.Eventually(t, func() bool {
		ok, _ := m.CheckIPBlocking("203.0.113.5")
		return ok
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, m.FailureCount(identifier))
}

func TestIPBlocking_EmitsEvents(t *testing.T) {
	m := newTestManager(t)

	for i := 0; i < 5; i++ {
		m.RecordFailedAttempt("id1", "203.0.113.5")
	}

	types := eventTypes(m.Events().Recent(10))
	assert.Contains(t, types, models.EventIPBlocked)

	require.Eventually(t, func() bool {
		types := eventTypes(m.Events().Recent(10))
		for _, et := range types {
			if et == models.EventIPUnblocked {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestRevokeKey(t *testing.T) {
	m := newTestManager(t)
	key := createTestKey(t, m, []models.Permission{models.PermissionChat}, nil)

	assert.True(t, m.RevokeKey(key))

	ok, reason := m.Authenticate(key, models.PermissionChat)
	assert.False(t, ok)
	assert.Equal(t, "Invalid API key", reason)
}

func TestRevokeKey_NonExistent(t *testing.T) {
	m := newTestManager(t)

	before := m.Events().Len()
	assert.False(t, m.RevokeKey("sk-does-not-exist"))
	assert.Equal(t, before, m.Events().Len(), "failed revocations are not logged")
}

func TestCreateKey_InvalidPermission(t *testing.T) {
	m := newTestManager(t)

	_, err := m.CreateKey("bad", []models.Permission{"superuser"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown permission")
}

func TestTokens_IssueVerifyAndEvents(t *testing.T) {
	m := newTestManager(t)

	permissions := []models.Permission{models.PermissionChat}
	token, err := m.IssueToken("sk-abc", permissions)
	require.NoError(t, err)

	claims, err := m.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "sk-abc", claims.APIKey)
	assert.Equal(t, permissions, claims.Permissions)

	_, err = m.VerifyToken("garbage")
	require.Error(t, err)

	events := m.Events().Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTokenInvalid, events[0].Type)
	assert.Equal(t, "***", events[0].Details["token"], "token must be redacted")
}

func TestTokens_ExpiredEvent(t *testing.T) {
	cfg := config.SecurityConfig{
		RequestsPerMinute: 60,
		MaxFailedAttempts: 5,
		BlockDuration:     time.Minute,
		TokenTTL:          -time.Minute,
	}
	m := NewManager(cfg, storage.NewKeyStore(t.TempDir(), zap.NewNop()), []byte("test-secret"), zap.NewNop())

	token, err := m.IssueToken("sk-abc", []models.Permission{models.PermissionChat})
	require.NoError(t, err)

	_, err = m.VerifyToken(token)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTokenExpired)

	events := m.Events().Recent(1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTokenExpired, events[0].Type)
}

func TestStats(t *testing.T) {
	m := newTestManager(t)
	createTestKey(t, m, []models.Permission{models.PermissionChat}, nil)

	m.RecordRequest(true)
	m.RecordRequest(true)
	m.RecordRequest(false)
	m.CheckRateLimit("203.0.113.5:anon", "")

	stats := m.Stats()
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.FailedRequests)
	assert.InDelta(t, 66.67, stats.SuccessRate, 0.1)
	assert.Equal(t, 1, stats.APIKeyCount)
	assert.Equal(t, 1, stats.ActiveRateLimits)
	assert.Equal(t, 0, stats.BlockedIPCount)
	assert.NotEmpty(t, stats.RecentEvents, "key creation should be logged")
}

func eventTypes(events []models.SecurityEvent) []models.EventType {
	types := make([]models.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
