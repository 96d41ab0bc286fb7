// Package migrations embeds the SQL schema so binaries carry their own
// migrations instead of depending on the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
