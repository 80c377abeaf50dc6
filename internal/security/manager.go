package security

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nijenhuis/api-guard/internal/config"
	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/nijenhuis/api-guard/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const eventLogCapacity = 1000

// Manager composes the key store, rate limiter, blocklist and token
// issuer into one authentication/authorization decision per request.
// Every public method returns a boolean plus a short human-readable
// reason instead of an error; nothing here aborts a caller's flow.
type Manager struct {
	cfg       config.SecurityConfig
	logger    *zap.Logger
	keys      *storage.KeyStore
	limiter   *RateLimiter
	blocklist *Blocklist
	issuer    *TokenIssuer
	events    *EventLog

	// Throttles the zap mirror of security events so an attacker cannot
	// flood the log files. The ring buffer itself always records.
	logLimiter *rate.Limiter

	startTime time.Time

	mu             sync.Mutex
	totalRequests  int64
	failedRequests int64
}

// NewManager creates a security manager
func NewManager(cfg config.SecurityConfig, keys *storage.KeyStore, secret []byte, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:        cfg,
		logger:     logger,
		keys:       keys,
		limiter:    NewRateLimiter(),
		blocklist:  NewBlocklist(cfg.MaxFailedAttempts, cfg.BlockDuration),
		issuer:     NewTokenIssuer(secret, cfg.TokenTTL),
		events:     NewEventLog(eventLogCapacity),
		logLimiter: rate.NewLimiter(rate.Limit(20), 50),
		startTime:  time.Now(),
	}

	m.blocklist.OnBlocked = func(ip, identifier string, failures int) {
		m.logEvent(models.EventIPBlocked, map[string]string{
			"ip":              ip,
			"identifier":      identifier,
			"failed_attempts": strconv.Itoa(failures),
		})
	}
	m.blocklist.OnUnblocked = func(ip string) {
		m.logEvent(models.EventIPUnblocked, map[string]string{"ip": ip})
	}

	return m
}

// Authenticate validates the API key and its permission for this request
func (m *Manager) Authenticate(apiKey string, required models.Permission) (bool, string) {
	if apiKey == "" {
		return false, "API key required"
	}

	key, ok := m.keys.Lookup(apiKey)
	if !ok {
		m.logEvent(models.EventInvalidKey, map[string]string{
			"api_key": redactToken(apiKey),
		})
		return false, "Invalid API key"
	}

	if !key.HasPermission(required) {
		m.logEvent(models.EventInsufficientPermissions, map[string]string{
			"api_key":   redactToken(apiKey),
			"required":  string(required),
			"available": permissionList(key.Permissions),
		})
		return false, fmt.Sprintf("Insufficient permissions. Required: %s", required)
	}

	if err := m.keys.RecordUsage(apiKey); err != nil {
		// Best effort: in-memory state stays authoritative
		m.logger.Warn("Failed to persist key usage", zap.Error(err))
		m.logEvent(models.EventPersistenceWarning, map[string]string{
			"api_key": redactToken(apiKey),
			"error":   err.Error(),
		})
	}

	return true, "Authentication successful"
}

// CheckRateLimit admits or rejects a request against the sliding window.
// The limit is the configured per-minute default unless the key carries
// an override. Charged regardless of whether authentication succeeded.
func (m *Manager) CheckRateLimit(identifier, apiKey string) (bool, string) {
	limit := m.cfg.RequestsPerMinute
	if apiKey != "" {
		if key, ok := m.keys.Lookup(apiKey); ok && key.RateLimitOverride != nil {
			limit = *key.RateLimitOverride
		}
	}

	if !m.limiter.Allow(identifier, limit) {
		keyLabel := "anonymous"
		if apiKey != "" {
			keyLabel = redactToken(apiKey)
		}
		m.logEvent(models.EventRateLimitExceeded, map[string]string{
			"identifier": identifier,
			"limit":      strconv.Itoa(limit),
			"api_key":    keyLabel,
		})
		return false, fmt.Sprintf("Rate limit exceeded. Max %d requests per minute.", limit)
	}

	return true, "Rate limit check passed"
}

// CheckIPBlocking rejects requests from currently blocked addresses
func (m *Manager) CheckIPBlocking(ip string) (bool, string) {
	if m.blocklist.IsBlocked(ip) {
		return false, "IP address is blocked"
	}
	return true, "IP address allowed"
}

// RecordFailedAttempt registers a failed authentication for identifier
// bound to ip; crossing the threshold blocks the IP and schedules the
// automatic unblock.
func (m *Manager) RecordFailedAttempt(identifier, ip string) {
	m.blocklist.RecordFailure(identifier, ip)
}

// ResetFailures clears the failure counter after a successful authentication
func (m *Manager) ResetFailures(identifier string) {
	m.blocklist.ResetFailures(identifier)
}

// FailureCount returns the current failure count for identifier
func (m *Manager) FailureCount(identifier string) int {
	return m.blocklist.FailureCount(identifier)
}

// CreateKey creates and persists a new API key, returning the plaintext
// key once
func (m *Manager) CreateKey(name string, permissions []models.Permission, rateLimitOverride *int) (string, error) {
	key, err := m.keys.Create(name, permissions, rateLimitOverride)
	if err != nil {
		return "", err
	}

	m.logEvent(models.EventAPIKeyCreated, map[string]string{
		"name":        name,
		"permissions": permissionList(permissions),
		"key_preview": redactToken(key.Key),
	})

	return key.Key, nil
}

// RevokeKey removes a key; returns false if it did not exist. Only
// successful revocations are logged.
func (m *Manager) RevokeKey(apiKey string) bool {
	key, ok := m.keys.Lookup(apiKey)
	if !ok {
		return false
	}

	if !m.keys.Revoke(apiKey) {
		return false
	}

	m.logEvent(models.EventAPIKeyRevoked, map[string]string{
		"name":        key.Name,
		"key_preview": redactToken(apiKey),
	})
	return true
}

// LookupKey returns a copy of the key record, or false if not found
func (m *Manager) LookupKey(apiKey string) (*models.APIKey, bool) {
	return m.keys.Lookup(apiKey)
}

// ListKeys returns copies of all stored keys
func (m *Manager) ListKeys() []*models.APIKey {
	return m.keys.List()
}

// IssueToken issues a signed, expiring token for the API key
func (m *Manager) IssueToken(apiKey string, permissions []models.Permission) (string, error) {
	return m.issuer.Issue(apiKey, permissions)
}

// VerifyToken verifies a token, logging expired/invalid outcomes with a
// redacted prefix
func (m *Manager) VerifyToken(token string) (*TokenClaims, error) {
	claims, err := m.issuer.Verify(token)
	if err != nil {
		eventType := models.EventTokenInvalid
		if errors.Is(err, ErrTokenExpired) {
			eventType = models.EventTokenExpired
		}
		m.logEvent(eventType, map[string]string{"token": redactToken(token)})
		return nil, err
	}
	return claims, nil
}

// RecordRequest updates the aggregate request counters
func (m *Manager) RecordRequest(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRequests++
	if !success {
		m.failedRequests++
	}
}

// Stats returns aggregate security statistics
func (m *Manager) Stats() models.SecurityStats {
	m.mu.Lock()
	total := m.totalRequests
	failed := m.failedRequests
	m.mu.Unlock()

	uptime := time.Since(m.startTime)
	successRate := float64(total-failed) / float64(max64(total, 1)) * 100

	return models.SecurityStats{
		UptimeSeconds:    uptime.Seconds(),
		UptimeHuman:      uptime.Truncate(time.Second).String(),
		TotalRequests:    total,
		FailedRequests:   failed,
		SuccessRate:      successRate,
		BlockedIPCount:   m.blocklist.BlockedCount(),
		ActiveRateLimits: m.limiter.ActiveIdentifiers(),
		RecentEvents:     m.events.Recent(10),
		APIKeyCount:      m.keys.Count(),
	}
}

// Events exposes the event log for tests and the admin API
func (m *Manager) Events() *EventLog {
	return m.events
}

func (m *Manager) logEvent(eventType models.EventType, details map[string]string) {
	m.events.Append(eventType, details)

	if m.logLimiter.Allow() {
		fields := make([]zap.Field, 0, len(details)+1)
		fields = append(fields, zap.String("event", string(eventType)))
		for k, v := range details {
			fields = append(fields, zap.String(k, v))
		}
		m.logger.Warn("Security event", fields...)
	}
}

func permissionList(permissions []models.Permission) string {
	parts := make([]string, len(permissions))
	for i, p := range permissions {
		parts[i] = string(p)
	}
	return strings.Join(parts, ",")
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
