package models

import "time"

// OneTimeCode is the code pending for one pre-auth session. SessionID is the
// ID claim of the pre-auth token it was issued with.
type OneTimeCode struct {
	SessionID string
	UserID    string
	Code      string
	ExpiresAt time.Time
	SentAt    time.Time
	Attempts  int
}
