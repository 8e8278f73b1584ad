// Package migrations embeds the release schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
