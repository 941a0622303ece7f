// Package migrations embeds the goose migrations for the PostgreSQL user store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
