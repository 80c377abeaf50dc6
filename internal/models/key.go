package models

import (
	"time"
)

// Permission is a named capability an API key must hold to invoke an operation.
type Permission string

const (
	PermissionChat   Permission = "chat"
	PermissionHealth Permission = "health"
	PermissionConfig Permission = "config"
	PermissionAdmin  Permission = "admin"
)

// ValidPermissions is the closed set accepted at key creation time.
var ValidPermissions = map[Permission]bool{
	PermissionChat:   true,
	PermissionHealth: true,
	PermissionConfig: true,
	PermissionAdmin:  true,
}

// APIKey represents an API access key
type APIKey struct {
	Key               string       `json:"key"`
	Name              string       `json:"name"`
	Permissions       []Permission `json:"permissions"`
	RateLimitOverride *int         `json:"rateLimitOverride,omitempty"`
	CreatedAt         int64        `json:"createdAt"`
	LastUsed          *int64       `json:"lastUsed,omitempty"`
	UsageCount        int64        `json:"usageCount"`
}

// HasPermission checks whether the key holds the given permission
func (k *APIKey) HasPermission(p Permission) bool {
	for _, have := range k.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// UpdateUsage updates the key's usage statistics
func (k *APIKey) UpdateUsage() {
	now := time.Now().Unix()
	k.LastUsed = &now
	k.UsageCount++
}
