package model

import "time"

// ServiceCredential is a long-lived secret that identifies a trusted calling
// application. The raw secret is never stored; only a bcrypt hash and the
// first 8 characters (for candidate lookup) are persisted.
type ServiceCredential struct {
	ID           int64      `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	SecretHash   string     `json:"-" db:"secret_hash"` // bcrypt hash, never expose
	Prefix       string     `json:"prefix" db:"prefix"`
	OwnerUserID  *int64     `json:"owner_user_id,omitempty" db:"owner_user_id"`
	RequestCount int64      `json:"request_count" db:"request_count"`
	LastUsedAt   *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// IsRevoked reports whether the credential has been revoked.
func (c *ServiceCredential) IsRevoked() bool {
	return c.RevokedAt != nil
}

// IsSystemKey reports whether the credential is service-wide rather than
// scoped to a user.
func (c *ServiceCredential) IsSystemKey() bool {
	return c.OwnerUserID == nil
}

// CredentialStats summarizes the credential table.
type CredentialStats struct {
	Total   int64 `json:"total" db:"total"`
	Active  int64 `json:"active" db:"active"`
	Revoked int64 `json:"revoked" db:"revoked"`
}
