package model

import "time"

// SessionLifetime is the fixed session validity window (spec.md §3: "any
// lookup with now >= expires_at => absent").
const SessionLifetime = 24 * time.Hour

// Session is an opaque admin bearer token bound to a user (spec.md §3).
type Session struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer valid at instant now.
// A session is absent once now >= ExpiresAt, matching spec.md's testable
// property exactly (">=", not ">").
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// User is an admin account record (spec.md §6 persisted state: users table).
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	IsActive     bool       `json:"is_active"`
}
