// Package client talks to the admin backend's authentication endpoints.
//
// The Client interface is what the session manager depends on. HTTPClient
// implements it over JSON/HTTP:
//
//   - Login, VerifyCode and ResendCode carry the pre-auth token explicitly.
//   - FetchCurrentUserProfile and FetchCurrentUserAuthorities go through an
//     oauth2.Transport that reads the access token from the token store.
//   - Every request carries an X-Request-ID header.
//
// # Error Handling
//
// Non-2xx responses are returned as *APIError, which unwraps to one of the
// sentinel errors ErrUnauthorized, ErrTooManyRequests or ErrUnavailable.
// Transport failures unwrap to ErrUnavailable and undecodable bodies to
// ErrBadResponse.
package client
