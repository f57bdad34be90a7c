package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	embedsql "github.com/ldi/taskdesk/embed/sql"
	"github.com/ldi/taskdesk/pkg/models"
	"go.uber.org/zap"
)

var (
	// ErrExecute wraps every driver failure surfaced by Execute.
	ErrExecute = errors.New("query execution failed")
	// ErrPoolExhausted is returned when no connection frees up within
	// Options.AcquireTimeout.
	ErrPoolExhausted = errors.New("connection pool exhausted")
	// ErrContactNotFound is returned when a task names an assignee that does
	// not exist.
	ErrContactNotFound = errors.New("contact not found")
	ErrTaskNotFound    = errors.New("task not found")
)

type Options struct {
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
	Logger         *zap.Logger
}

func DefaultOptions() Options {
	return Options{
		MinConns:       1,
		MaxConns:       10,
		AcquireTimeout: 5 * time.Second,
	}
}

func (o Options) normalize() Options {
	d := DefaultOptions()
	if o.MinConns < 1 {
		o.MinConns = d.MinConns
	}
	if o.MaxConns < 1 {
		o.MaxConns = d.MaxConns
	}
	if o.MinConns > o.MaxConns {
		o.MinConns = o.MaxConns
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = d.AcquireTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type DB struct {
	backend Backend
	opts    Options
	logger  *zap.Logger

	onChange         func(ctx context.Context)
	onChangeMu       sync.RWMutex
	onChangeDisabled bool
}

func (db *DB) SetOnChange(fn func(ctx context.Context)) {
	db.onChangeMu.Lock()
	defer db.onChangeMu.Unlock()
	db.onChange = fn
}

func (db *DB) DisableOnChange() {
	db.onChangeMu.Lock()
	defer db.onChangeMu.Unlock()
	db.onChangeDisabled = true
}

func (db *DB) EnableOnChange() {
	db.onChangeMu.Lock()
	defer db.onChangeMu.Unlock()
	db.onChangeDisabled = false
}

func (db *DB) triggerChange(ctx context.Context) {
	db.onChangeMu.RLock()
	fn := db.onChange
	disabled := db.onChangeDisabled
	db.onChangeMu.RUnlock()

	if fn != nil && !disabled {
		fn(ctx)
	}
}

// Open opens a SQLite database at the given path with the default pool.
func Open(path string) (*DB, error) {
	return OpenSQLite(path, DefaultOptions())
}

func OpenSQLite(path string, opts Options) (*DB, error) {
	opts = opts.normalize()
	b, err := openSQLite(path, opts)
	if err != nil {
		return nil, err
	}
	return newDB(b, opts), nil
}

func OpenPostgres(ctx context.Context, dsn string, opts Options) (*DB, error) {
	opts = opts.normalize()
	b, err := openPostgres(ctx, dsn, opts)
	if err != nil {
		return nil, err
	}
	return newDB(b, opts), nil
}

// Connect opens the backend named by driver ("sqlite" or "postgres").
func Connect(ctx context.Context, driver, dsn string, opts Options) (*DB, error) {
	switch DialectFor(driver) {
	case DialectSQLite:
		return OpenSQLite(dsn, opts)
	case DialectPostgres:
		return OpenPostgres(ctx, dsn, opts)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func newDB(b Backend, opts Options) *DB {
	return &DB{backend: b, opts: opts, logger: opts.Logger}
}

func (db *DB) Close() error {
	return db.backend.Close()
}

func (db *DB) Dialect() Dialect {
	return db.backend.Dialect()
}

func (db *DB) PoolStats() PoolStats {
	return db.backend.PoolStats()
}

// Acquire checks a connection out of the pool, waiting at most
// Options.AcquireTimeout. The caller must Release it.
func (db *DB) Acquire(ctx context.Context) (Conn, error) {
	actx, cancel := context.WithTimeout(ctx, db.opts.AcquireTimeout)
	defer cancel()

	conn, err := db.backend.Acquire(actx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrPoolExhausted, db.opts.AcquireTimeout)
		}
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

func (db *DB) Migrate(ctx context.Context, schema string) error {
	err := db.withConn(ctx, func(conn Conn) error {
		_, err := conn.Exec(ctx, schema)
		return err
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	db.triggerChange(ctx)
	return nil
}

// withConn runs fn on a pooled connection and releases it before returning,
// so change hooks that need the pool never wait on the caller.
func (db *DB) withConn(ctx context.Context, fn func(conn Conn) error) error {
	conn, err := db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(conn)
}

func (db *DB) withTx(ctx context.Context, fn func(q Queryer) error) error {
	return db.withConn(ctx, func(conn Conn) error {
		return conn.Tx(ctx, fn)
	})
}

// Init applies the bundled CONTACTS/TASKS schema for the current dialect.
func (db *DB) Init(ctx context.Context) error {
	if db.Dialect() == DialectPostgres {
		return db.Migrate(ctx, embedsql.Postgres)
	}
	return db.Migrate(ctx, embedsql.SQLite)
}

// IsRead reports whether stmt is executed as a read: its trimmed,
// upper-cased text starts with SELECT.
func IsRead(stmt string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(stmt)), "SELECT")
}

// Execute runs one statement on a pooled connection. Reads return every row
// with column names; writes are committed and return the affected count.
// Parameters use '?' placeholders on every dialect; time.Time values are
// stored in the same form as DEADLINE and CREATED_AT.
func (db *DB) Execute(ctx context.Context, stmt string, params ...any) (*models.Result, error) {
	res, err := db.execute(ctx, stmt, params...)
	if err != nil {
		db.logger.Error("statement failed", zap.String("statement", stmt), zap.Error(err))
		return nil, err
	}
	if res.Kind == models.ResultAffected && res.Affected > 0 {
		db.triggerChange(ctx)
	}
	return res, nil
}

func (db *DB) execute(ctx context.Context, stmt string, params ...any) (*models.Result, error) {
	if len(params) > 0 {
		stmt, params = db.bind(stmt, params...)
	}

	conn, err := db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	if IsRead(stmt) {
		cols, rows, err := conn.Query(ctx, stmt, params...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExecute, err)
		}
		return &models.Result{
			Kind:    models.ResultRows,
			Columns: normalizeColumns(cols, rows),
			Rows:    rows,
		}, nil
	}

	var affected int64
	err = conn.Tx(ctx, func(q Queryer) error {
		n, err := q.Exec(ctx, stmt, params...)
		affected = n
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExecute, err)
	}
	return &models.Result{Kind: models.ResultAffected, Affected: max(affected, 0)}, nil
}

// normalizeColumns keeps driver column names when they describe every value
// of the first row; otherwise it names them column_0..column_{n-1}.
func normalizeColumns(cols []string, rows [][]any) []string {
	width := len(cols)
	if len(rows) > 0 {
		width = len(rows[0])
	}
	ok := len(cols) == width
	for _, c := range cols {
		if strings.TrimSpace(c) == "" {
			ok = false
		}
	}
	if ok {
		return cols
	}
	out := make([]string, width)
	for i := range out {
		out[i] = fmt.Sprintf("column_%d", i)
	}
	return out
}

// bind adapts a '?' query and its arguments to the current dialect.
func (db *DB) bind(query string, args ...any) (string, []any) {
	if db.Dialect() != DialectPostgres {
		args = append([]any(nil), args...)
		for i, a := range args {
			switch v := a.(type) {
			case time.Time:
				args[i] = sqliteTime(v)
			case *time.Time:
				if v != nil {
					args[i] = sqliteTime(*v)
				} else {
					args[i] = nil
				}
			}
		}
		return query, args
	}
	return rebind(query), args
}

func sqliteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

const sqliteTimeLayout = "2006-01-02 15:04:05"
