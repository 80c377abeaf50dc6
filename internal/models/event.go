package models

import (
	"time"
)

// EventType classifies a security event
type EventType string

const (
	EventInvalidKey              EventType = "invalid_key"
	EventInsufficientPermissions EventType = "insufficient_permissions"
	EventRateLimitExceeded       EventType = "rate_limit_exceeded"
	EventIPBlocked               EventType = "ip_blocked"
	EventIPUnblocked             EventType = "ip_unblocked"
	EventAPIKeyCreated           EventType = "api_key_created"
	EventAPIKeyRevoked           EventType = "api_key_revoked"
	EventTokenExpired            EventType = "token_expired"
	EventTokenInvalid            EventType = "token_invalid"
	EventPersistenceWarning      EventType = "persistence_warning"
)

// SecurityEvent is a single entry in the security event log
type SecurityEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Details   map[string]string `json:"details,omitempty"`
}

// SecurityStats is the aggregate view returned by the security manager
type SecurityStats struct {
	UptimeSeconds    float64         `json:"uptimeSeconds"`
	UptimeHuman      string          `json:"uptimeHuman"`
	TotalRequests    int64           `json:"totalRequests"`
	FailedRequests   int64           `json:"failedRequests"`
	SuccessRate      float64         `json:"successRate"`
	BlockedIPCount   int             `json:"blockedIpCount"`
	ActiveRateLimits int             `json:"activeRateLimits"`
	RecentEvents     []SecurityEvent `json:"recentEvents"`
	APIKeyCount      int             `json:"apiKeyCount"`
}
