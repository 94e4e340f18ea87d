// Package migrations embeds the goose migrations of the auth server's
// Postgres schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
