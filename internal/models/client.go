package models

import (
	"strings"
	"time"
)

// Permissions granted to API clients. A trailing ":*" grants every action on
// a resource, and "*" grants everything.
const (
	PermSessionsRead  = "sessions:read"
	PermSessionsWrite = "sessions:write"
	PermReportsRead   = "reports:read"
	PermReportsWrite  = "reports:write"
	PermPositionsRead = "positions:read"
	PermAll           = "*"
)

// ApiClient is a service allowed to run interviews through the API
type ApiClient struct {
	ID          int               `json:"id"`
	Name        string            `json:"name"`
	ApiKey      string            `json:"-"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	LastUsedAt  *time.Time        `json:"last_used_at,omitempty"`
	Permissions []string          `json:"permissions"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// HasPermission reports whether an active client holds required, directly or
// through a wildcard.
func (c *ApiClient) HasPermission(required string) bool {
	if c == nil || !c.IsActive {
		return false
	}
	for _, granted := range c.Permissions {
		if grants(granted, required) {
			return true
		}
	}
	return false
}

func grants(granted, required string) bool {
	switch {
	case granted == PermAll, granted == required:
		return true
	case strings.HasSuffix(granted, ":*"):
		resource := strings.TrimSuffix(granted, "*")
		return strings.HasPrefix(required, resource)
	default:
		return false
	}
}

// MaskedApiKey returns the key prefix for logs
func (c *ApiClient) MaskedApiKey() string {
	if len(c.ApiKey) < 8 {
		return "***"
	}
	return c.ApiKey[:8] + "..."
}
