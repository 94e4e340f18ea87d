package models

import "time"

// PreAuthGrant is returned by a successful password check. The token only
// authorizes the one-time code exchange.
type PreAuthGrant struct {
	Token     string
	ExpiresIn time.Duration
}

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Complete reports whether both halves are present.
func (p TokenPair) Complete() bool {
	return p.AccessToken != "" && p.RefreshToken != ""
}
