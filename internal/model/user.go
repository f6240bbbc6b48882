package model

import "time"

// ProviderGitHub is the only identity provider users are provisioned from.
const ProviderGitHub = "github"

// User is a human account provisioned from a GitHub identity. Admin is
// managed out of band and never set by the login path.
type User struct {
	ID                int64      `json:"id" db:"id"`
	Email             string     `json:"email" db:"email"`
	ProviderID        *int64     `json:"github_id,omitempty" db:"provider_id"`
	ProviderLogin     *string    `json:"github_username,omitempty" db:"provider_login"`
	ProviderName      *string    `json:"name,omitempty" db:"provider_name"`
	ProviderAvatarURL *string    `json:"avatar_url,omitempty" db:"provider_avatar_url"`
	Provider          *string    `json:"provider,omitempty" db:"provider"`
	UID               *string    `json:"uid,omitempty" db:"uid"`
	Admin             bool       `json:"admin" db:"admin"`
	DeletedAt         *time.Time `json:"-" db:"deleted_at"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Profile is the minimal identity asserted by GitHub for an access token.
type Profile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	SiteAdmin bool   `json:"site_admin"`
}

// PlaceholderEmail returns the deterministic address used when GitHub does
// not disclose the account's email.
func PlaceholderEmail(login string) string {
	return login + "@users.noreply.github.com"
}
