// Package migrations embeds the goose SQL migrations for the shared lessonbook database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Dir is the migration directory inside FS.
const Dir = "."
