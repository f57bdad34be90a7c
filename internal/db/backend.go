package db

import (
	"context"
	"strconv"
	"strings"
)

// Dialect names the SQL engine behind a backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DialectFor maps a driver name to its dialect. Unknown names return "".
func DialectFor(driver string) Dialect {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return DialectSQLite
	case "postgres", "postgresql", "pgx":
		return DialectPostgres
	}
	return ""
}

// Queryer runs statements on a connection or inside a transaction.
type Queryer interface {
	Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// Conn is one connection checked out of a backend pool. Release must be
// called exactly once to return it.
type Conn interface {
	Queryer
	Tx(ctx context.Context, fn func(q Queryer) error) error
	Release()
}

// Backend owns a bounded connection pool for one database.
type Backend interface {
	Dialect() Dialect
	Acquire(ctx context.Context) (Conn, error)
	PoolStats() PoolStats
	Close() error
}

type PoolStats struct {
	InUse int `json:"in_use"`
	Idle  int `json:"idle"`
	Max   int `json:"max"`
}

// rebind rewrites '?' placeholders to $1..$n, leaving quoted text alone.
func rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)
	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
