// Package common contains shared constants and sentinel errors used across
// gophadmin components.
package common

import "time"

const (
	// AuthorizationHeaderName carries "Bearer <token>" on outbound requests.
	AuthorizationHeaderName = "Authorization"

	// RequestIDHeaderName correlates client requests with server log lines.
	RequestIDHeaderName = "X-Request-ID"

	// BearerPrefix precedes the token in the Authorization header.
	BearerPrefix = "Bearer "

	// CodeLength is the exact length of a one-time verification code.
	CodeLength = 6

	// ResendWindow is how long a client waits before requesting another code.
	ResendWindow = 30 * time.Second
)
