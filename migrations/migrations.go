// Package migrations embeds the Postgres schema for the ledger and journal
// back ends.
package migrations

import "embed"

// FS holds every *.up.sql file, applied in lexical order.
//
//go:embed *.up.sql
var FS embed.FS
