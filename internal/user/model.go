package user

import (
	"database/sql"
	"time"
)

type ProviderKind string

const (
	ProviderGoogle ProviderKind = "google"
	ProviderGitHub ProviderKind = "github"
)

// LinkedProvider is a third-party identity attached to a user.
type LinkedProvider struct {
	Kind       ProviderKind `json:"kind"`
	ProviderID string       `json:"provider_id"`
}

// column maps the provider to its unique users column. Only known kinds
// have a column, so the name is safe to splice into SQL.
func (p LinkedProvider) column() (string, bool) {
	switch p.Kind {
	case ProviderGoogle:
		return "google_id", true
	case ProviderGitHub:
		return "github_id", true
	}
	return "", false
}

type User struct {
	ID           int            `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Email        string         `db:"email" json:"email"`
	PasswordHash sql.NullString `db:"password_hash" json:"-"`
	Role         string         `db:"role" json:"role"`
	GoogleID     sql.NullString `db:"google_id" json:"-"`
	GithubID     sql.NullString `db:"github_id" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Providers lists the identities linked to u.
func (u *User) Providers() []LinkedProvider {
	var out []LinkedProvider
	if u.GoogleID.Valid {
		out = append(out, LinkedProvider{Kind: ProviderGoogle, ProviderID: u.GoogleID.String})
	}
	if u.GithubID.Valid {
		out = append(out, LinkedProvider{Kind: ProviderGitHub, ProviderID: u.GithubID.String})
	}
	return out
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required" validate:"min=1,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// OAuthRequest is the verified output of the identity provider handshake.
type OAuthRequest struct {
	Email      string       `json:"email" binding:"required,email"`
	Name       string       `json:"name"`
	Provider   ProviderKind `json:"provider" binding:"required,oneof=google github"`
	ProviderID string       `json:"provider_id" binding:"required"`
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

type Profile struct {
	User
	Providers []LinkedProvider `json:"providers"`
}

// linkedID returns the id stored for kind, or "" when none is linked.
func (u *User) linkedID(kind ProviderKind) string {
	for _, p := range u.Providers() {
		if p.Kind == kind {
			return p.ProviderID
		}
	}
	return ""
}
