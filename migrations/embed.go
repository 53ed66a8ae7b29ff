// Package migrations embeds the SQL schema.
package migrations

import "embed"

// Files holds every migration in apply order by name.
//
//go:embed *.sql
var Files embed.FS
