// Package migrations embeds the SQL schema for both supported stores.
package migrations

import "embed"

// FS holds postgres/*.sql and sqlite/*.sql. Files are applied in name order.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)
