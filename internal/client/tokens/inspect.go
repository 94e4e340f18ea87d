package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoExpiry = errors.New("token carries no exp claim")

// Claims is what the client may read from an access token without the
// signing key. The signature is not checked; the server remains the
// authority.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Inspect decodes the registered claims of a JWT.
func Inspect(token string) (Claims, error) {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &rc); err != nil {
		return Claims{}, fmt.Errorf("inspect token: %w", err)
	}
	c := Claims{Subject: rc.Subject}
	if rc.ExpiresAt == nil {
		return c, ErrNoExpiry
	}
	c.ExpiresAt = rc.ExpiresAt.Time
	return c, nil
}

// Expired reports whether token's exp claim is at or before now. Opaque
// tokens and tokens without exp are never considered expired.
func Expired(token string, now time.Time) bool {
	c, err := Inspect(token)
	if err != nil {
		return false
	}
	return !now.Before(c.ExpiresAt)
}
