package models

import (
	"time"
)

// ConnectionStatus is the connection health state
type ConnectionStatus string

const (
	StatusHealthy      ConnectionStatus = "healthy"
	StatusDegraded     ConnectionStatus = "degraded"
	StatusUnhealthy    ConnectionStatus = "unhealthy"
	StatusOffline      ConnectionStatus = "offline"
	StatusReconnecting ConnectionStatus = "reconnecting"
)

// ConnectionMetrics tracks connection health over time
type ConnectionMetrics struct {
	Status              ConnectionStatus `json:"status"`
	ResponseTimeMs      float64          `json:"responseTimeMs"`
	SuccessRate         float64          `json:"successRate"`
	ConsecutiveFailures int              `json:"consecutiveFailures"`
	TotalRequests       int64            `json:"totalRequests"`
	TotalFailures       int64            `json:"totalFailures"`
	LastSuccess         *time.Time       `json:"lastSuccess,omitempty"`
	LastFailure         *time.Time       `json:"lastFailure,omitempty"`
	UptimeSeconds       float64          `json:"uptimeSeconds"`
}

// ConnectionState is the full status object exposed to callers
type ConnectionState struct {
	Status         ConnectionStatus  `json:"status"`
	Metrics        ConnectionMetrics `json:"metrics"`
	UptimeHuman    string            `json:"uptimeHuman"`
	IsHealthy      bool              `json:"isHealthy"`
	NeedsAttention bool              `json:"needsAttention"`
}
