// Package auth issues and checks the HS256 tokens of the auth server.
//
// Two kinds of token share one secret and are told apart by the purpose
// claim: a pre-auth token only authorizes the one-time code exchange, an
// access token authorizes the user endpoints.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophadmin/internal/common"
)

const (
	PurposePreAuth = "pre_auth"
	PurposeAccess  = "access"
)

// Claims are the registered claims plus the token purpose. Subject holds the
// user ID; ID is unique per token and keys the pending code of a pre-auth
// token.
type Claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// GenerateToken signs a token for userID valid for validity from now.
func GenerateToken(userID, purpose string, secretKey []byte, now time.Time, validity time.Duration) (string, *Claims, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
		Purpose: purpose,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secretKey)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}

// ParseToken verifies tokenString and checks that it was issued for purpose.
// An expired token yields common.ErrTokenExpired, anything else wrong
// common.ErrInvalidToken.
func ParseToken(tokenString, purpose string, secretKey []byte, now time.Time) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrInvalidToken
	}

	if !token.Valid || claims.Purpose != purpose || claims.Subject == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
