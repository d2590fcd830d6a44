package store

import (
	"context"
	"database/sql"
	"regexp"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	pkgerrors "github.com/pkg/errors"

	"attendsheets/internal/model"
)

type dialect int

const (
	postgres dialect = iota
	sqlite
)

var pgPlaceholder = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $n placeholders to sqlite's ?n form.
func (d dialect) rebind(query string) string {
	if d == sqlite {
		return pgPlaceholder.ReplaceAllString(query, "?$1")
	}
	return query
}

// lockRows is appended to selects whose rows the transaction goes on to
// update. sqlite runs one transaction at a time over its single connection.
func (d dialect) lockRows() string {
	if d == postgres {
		return " FOR UPDATE"
	}
	return ""
}

// DB is the database/sql backed Store. Postgres goes through pgx, sqlite
// through go-sqlite3.
type DB struct {
	Client  *sql.DB
	dialect dialect
}

var _ Store = (*DB)(nil)

// Open connects, applies pool settings and creates the schema.
// driver is "pgx" (alias "postgres") or "sqlite3" (alias "sqlite").
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var d dialect
	switch driver {
	case "pgx", "postgres":
		driver, d = "pgx", postgres
	case "sqlite3", "sqlite":
		driver, d = "sqlite3", sqlite
	default:
		return nil, pkgerrors.Errorf("store: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open db")
	}
	if d == sqlite {
		// an in-memory database only lives as long as its connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, pkgerrors.Wrap(err, "ping db")
	}

	out := &DB{Client: db, dialect: d}
	if err := out.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return out, nil
}

// MemoryDSN returns a sqlite DSN for a named in-memory database.
func MemoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared&_foreign_keys=on"
}

func (d *DB) migrate(ctx context.Context) error {
	if d.dialect == sqlite {
		if _, err := d.Client.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
			return pkgerrors.Wrap(err, "enable foreign keys")
		}
	}
	for _, stmt := range schema {
		if d.dialect == sqlite {
			stmt = sqliteTypes.Replace(stmt)
		}
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return pkgerrors.Wrap(err, "migrate")
		}
	}
	return nil
}

// WithTx runs fn in a transaction, committing when it returns nil and rolling
// back otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(Tx) error) error {
	sqlTx, err := d.Client.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&tx{tx: sqlTx, dialect: d.dialect}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return pkgerrors.Wrap(err, "commit tx")
	}
	return nil
}

// Counts returns the public totals.
func (d *DB) Counts(ctx context.Context) (model.Counts, error) {
	var c model.Counts
	err := d.Client.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM teachers),
			(SELECT COUNT(*) FROM students),
			(SELECT COUNT(*) FROM classes)
	`).Scan(&c.Teachers, &c.Students, &c.Classes)
	return c, wrap(err, "count totals")
}

// Ping verifies connectivity.
func (d *DB) Ping(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return pkgerrors.New("store: not connected")
	}
	return d.Client.PingContext(ctx)
}

// Engine names the database product for status output.
func (d *DB) Engine() string {
	if d.dialect == sqlite {
		return "SQLite"
	}
	return "PostgreSQL"
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

type tx struct {
	tx      *sql.Tx
	dialect dialect
}

func (t *tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.rebind(query), args...)
}

func (t *tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.rebind(query), args...)
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.rebind(query), args...)
}

type scanner interface {
	Scan(dest ...any) error
}
