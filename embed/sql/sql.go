package sql

import _ "embed"

// SQLite is the CONTACTS/TASKS schema for the sqlite backend.
//
//go:embed sqlite.sql
var SQLite string

// Postgres is the CONTACTS/TASKS schema for the postgres backend.
//
//go:embed postgres.sql
var Postgres string
