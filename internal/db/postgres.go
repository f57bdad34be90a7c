package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresBackend struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string, opts Options) (*postgresBackend, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MinConns = int32(opts.MinConns)
	cfg.MaxConns = int32(opts.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Dialect() Dialect { return DialectPostgres }

func (b *postgresBackend) Acquire(ctx context.Context) (Conn, error) {
	c, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &postgresConn{conn: c}, nil
}

func (b *postgresBackend) PoolStats() PoolStats {
	s := b.pool.Stat()
	return PoolStats{
		InUse: int(s.AcquiredConns()),
		Idle:  int(s.IdleConns()),
		Max:   int(s.MaxConns()),
	}
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}

type postgresConn struct {
	conn *pgxpool.Conn
}

func (c *postgresConn) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := c.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	return collectPgRows(rows)
}

func (c *postgresConn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := c.conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (c *postgresConn) Tx(ctx context.Context, fn func(q Queryer) error) error {
	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (c *postgresConn) Release() {
	c.conn.Release()
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) Query(ctx context.Context, query string, args ...any) ([]string, [][]any, error) {
	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	return collectPgRows(rows)
}

func (t *postgresTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func collectPgRows(rows pgx.Rows) ([]string, [][]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	out := [][]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}
	return columns, out, nil
}
