// Package models defines types shared across internal packages.
package models

import (
	"strings"
	"time"
)

// OAuthClient is a registered machine principal for the client
// credentials grant. ClientSecret holds the stored hash, never the
// plaintext. AllowedScopes is comma-delimited.
type OAuthClient struct {
	ID            int64      `json:"id"`
	ClientID      string     `json:"client_id"`
	ClientSecret  string     `json:"client_secret"`
	Name          string     `json:"name"`
	Description   string     `json:"description,omitempty"`
	AllowedScopes string     `json:"allowed_scopes"`
	Active        bool       `json:"active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
}

// Scopes splits AllowedScopes into trimmed, non-empty entries.
func (c *OAuthClient) Scopes() []string {
	var out []string

	for _, s := range strings.Split(c.AllowedScopes, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}

	return out
}

// JoinScopes is the inverse of Scopes.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, ",")
}

// RefreshToken is the record kept for an issued refresh token.
type RefreshToken struct {
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
