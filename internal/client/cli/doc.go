// Package cli is the terminal front end of gophadmin.
//
// It wires configuration, the token store, the HTTP API client and the
// session manager, and exposes them as cobra subcommands (login, verify,
// resend, cancel, logout, whoami, status, refresh) plus an interactive
// shell. The shell routes every command through the session guards, so
// protected commands redirect to sign-in and are replayed afterwards.
package cli
