package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// sqlitePragmas are applied to every pooled connection; foreign_keys is
// per-connection in SQLite.
const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

type sqliteBackend struct {
	db *sql.DB
}

func openSQLite(path string, opts Options) (*sqliteBackend, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?"+sqlitePragmas)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every in-memory connection is its own database, so it cannot be pooled.
	maxConns := opts.MaxConns
	if path == ":memory:" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)

	b := &sqliteBackend{db: db}
	if err := b.warm(min(opts.MinConns, maxConns)); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// warm opens n connections up front so the pool never drops below its floor.
func (b *sqliteBackend) warm(n int) error {
	ctx := context.Background()
	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		c, err := b.db.Conn(ctx)
		if err != nil {
			return fmt.Errorf("failed to open connection: %w", err)
		}
		conns = append(conns, c)
		if err := c.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping database: %w", err)
		}
	}
	return nil
}

func (b *sqliteBackend) Dialect() Dialect { return DialectSQLite }

func (b *sqliteBackend) Acquire(ctx context.Context) (Conn, error) {
	c, err := b.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteConn{conn: c}, nil
}

func (b *sqliteBackend) PoolStats() PoolStats {
	s := b.db.Stats()
	return PoolStats{InUse: s.InUse, Idle: s.Idle, Max: s.MaxOpenConnections}
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type sqliteConn struct {
	conn *sql.Conn
}

func (c *sqliteConn) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	return sqlQuery(ctx, c.conn, query, args...)
}

func (c *sqliteConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlExec(ctx, c.conn, query, args...)
}

func (c *sqliteConn) Tx(ctx context.Context, fn func(q Queryer) error) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *sqliteConn) Release() {
	c.conn.Close()
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	return sqlQuery(ctx, t.tx, query, args...)
}

func (t *sqliteTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return sqlExec(ctx, t.tx, query, args...)
}

func sqlQuery(ctx context.Context, exec sqlExecutor, query string, args ...any) ([]string, [][]any, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := [][]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}
	return columns, out, nil
}

func sqlExec(ctx context.Context, exec sqlExecutor, query string, args ...any) (int64, error) {
	res, err := exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
