// Package domain contains core domain types for the legal assistant backend.
package domain

import (
	"time"
)

// User is an anonymous caller identified by an opaque cookie-issued identifier.
type User struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// SeenWithin reports whether the user was active within d of now.
func (u *User) SeenWithin(now time.Time, d time.Duration) bool {
	return now.Sub(u.LastSeenAt) <= d
}
