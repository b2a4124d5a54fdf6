package model

import "time"

// User is the host's account record. The core only reads Roles and Enabled;
// PasswordHash and session mechanics are the host's concern.
type User struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	Username     string     `json:"username" gorm:"uniqueIndex"`
	PasswordHash string     `json:"-"`
	Roles        []string   `json:"roles" gorm:"serializer:json"`
	Enabled      bool       `json:"enabled"`
	Email        string     `json:"email"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login"`
}

func (User) TableName() string { return "users" }

// APIToken is an opaque-bearer credential; only TokenHash is persisted, the
// raw token is returned to the caller once at creation time and never
// stored.
type APIToken struct {
	ID        string     `json:"id" gorm:"primaryKey"`
	UserID    string     `json:"user_id" gorm:"index"`
	Name      string     `json:"name"`
	TokenHash string     `json:"-" gorm:"uniqueIndex"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at"`
	LastUsed  *time.Time `json:"last_used"`
}

func (APIToken) TableName() string { return "api_tokens" }

func (t *APIToken) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && now.After(*t.ExpiresAt)
}

// AuditEntry records a single privileged action; persistence and export
// format are an external concern (spec §1), only the entry shape and
// emission points are specified here.
type AuditEntry struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Principal  string    `json:"principal"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	Allowed    bool      `json:"allowed"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (AuditEntry) TableName() string { return "audit_entries" }
