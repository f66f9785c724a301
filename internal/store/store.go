package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/slmyyl/xpert-framework/internal/querysql"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// DBTX is the subset of database/sql the data-access code uses.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Options configures Open.
type Options struct {
	// Driver is DriverSQLite or DriverPostgres. Empty means DriverSQLite.
	Driver string

	// DSN is the file path / URI for sqlite3 or the connection string for pgx.
	DSN string

	// MaxOpenConns caps the pool for pgx. sqlite3 always uses one connection.
	MaxOpenConns int
}

// Store provides the relational connection for entity access.
type Store struct {
	db      *sql.DB
	driver  string
	dialect querysql.Dialect
}

// Open connects to the database described by opts and verifies the
// connection. For sqlite3 the pool is limited to one connection and the
// required pragmas are applied.
func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}

	var dialect querysql.Dialect
	switch driver {
	case DriverSQLite:
		dialect = querysql.SQLite
	case DriverPostgres:
		dialect = querysql.Postgres
	default:
		return nil, &ConnectionError{Driver: driver, Err: fmt.Errorf("unsupported driver %q", driver)}
	}
	if opts.DSN == "" {
		return nil, &ConnectionError{Driver: driver, Err: fmt.Errorf("empty DSN")}
	}

	db, err := sql.Open(driver, opts.DSN)
	if err != nil {
		return nil, &ConnectionError{Driver: driver, Err: fmt.Errorf("open database: %w", err)}
	}

	if driver == DriverSQLite {
		// SQLite only supports one writer at a time, so limit connections
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Driver: driver, Err: fmt.Errorf("connect to database: %w", err)}
	}

	if driver == DriverSQLite {
		if err := applyPragmas(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}

	slog.Debug("store opened", "driver", driver)
	return &Store{db: db, driver: driver, dialect: dialect}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
// Use with caution - prefer Exec so the ambient transaction is honoured.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string { return s.driver }

// Dialect returns the SQL dialect matching the driver.
func (s *Store) Dialect() querysql.Dialect { return s.dialect }

// Exec returns the transaction carried by ctx, or the pool when there is
// none.
func (s *Store) Exec(ctx context.Context) DBTX {
	if tx := s.txFrom(ctx); tx != nil {
		return tx
	}
	return s.db
}

// Conn returns a dedicated connection for advanced use. The caller must
// close it.
func (s *Store) Conn(ctx context.Context) (*sql.Conn, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, &ConnectionError{Driver: s.driver, Err: err}
	}
	return conn, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
