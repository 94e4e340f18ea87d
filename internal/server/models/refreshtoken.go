package models

import "time"

// RefreshToken is the server-side record of an issued refresh token. Only
// the SHA-256 digest of the token is kept; the token itself exists on the
// client alone.
type RefreshToken struct {
	Digest    string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiredAt reports whether the token is no longer usable at now.
func (t *RefreshToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
