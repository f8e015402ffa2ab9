// Package migrations holds the versioned SQL schema, embedded so the binaries
// can migrate without the source tree.
package migrations

import "embed"

// FS contains every *.up.sql / *.down.sql pair in this directory.
//
//go:embed *.sql
var FS embed.FS
