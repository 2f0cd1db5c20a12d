package migrations

import "embed"

// SQLite contains the embedded SQLite schema migrations.
//
//go:embed sqlite/*.sql
var SQLite embed.FS

// Postgres contains the embedded PostgreSQL schema migrations.
//
//go:embed postgres/*.sql
var Postgres embed.FS
