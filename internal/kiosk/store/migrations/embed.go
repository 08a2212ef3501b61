// Package migrations embeds the goose SQL migrations for the kiosk-local
// database.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
