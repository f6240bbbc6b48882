package model

import "time"

// AllowListEntry admits one GitHub identity to account provisioning.
type AllowListEntry struct {
	ID            int64     `json:"id" db:"id"`
	ProviderID    int64     `json:"github_id" db:"provider_id"`
	ProviderLogin string    `json:"github_username" db:"provider_login"`
	Email         *string   `json:"email,omitempty" db:"email"`
	Notes         *string   `json:"notes,omitempty" db:"notes"`
	AddedBy       *string   `json:"added_by,omitempty" db:"added_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
