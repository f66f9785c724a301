package audit

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"

	"github.com/slmyyl/xpert-framework/internal/querysql"
	"github.com/slmyyl/xpert-framework/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// EnsureSchema applies the audit_log migrations. It must run outside any
// transaction: on sqlite3 the single pooled connection would otherwise be
// held by the caller.
func EnsureSchema(ctx context.Context, st *store.Store) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(st.Driver()); err != nil {
		return fmt.Errorf("audit schema: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, st.DB(), "migrations"); err != nil {
		return fmt.Errorf("audit schema: migrate: %w", err)
	}
	return nil
}

// recordedAtLayout is RFC 3339 in UTC with a fixed nine-digit fraction, so
// recorded_at sorts chronologically as text.
const recordedAtLayout = "2006-01-02T15:04:05.000000000Z"

// Option configures an SQLRecorder.
type Option func(*SQLRecorder)

// WithClock sets the time source for RecordedAt.
func WithClock(now func() time.Time) Option {
	return func(r *SQLRecorder) { r.now = now }
}

// WithIDGenerator sets the source of entry identifiers.
func WithIDGenerator(newID func() string) Option {
	return func(r *SQLRecorder) { r.newID = newID }
}

// SQLRecorder writes entries to the audit_log table through the store, so
// an entry commits or rolls back with the ambient transaction.
type SQLRecorder struct {
	st       *store.Store
	compiler *querysql.Compiler
	now      func() time.Time
	newID    func() string
}

// NewSQLRecorder returns a recorder over st. Call EnsureSchema first.
func NewSQLRecorder(st *store.Store, opts ...Option) *SQLRecorder {
	r := &SQLRecorder{
		st:       st,
		compiler: querysql.NewCompiler(st.Dialect()),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements Recorder. Empty ID and RecordedAt are filled from the
// recorder's generators.
func (r *SQLRecorder) Record(ctx context.Context, e Entry) error {
	if !e.Operation.Valid() {
		return fmt.Errorf("audit: unknown operation %q", e.Operation)
	}
	if e.Entity == "" {
		return fmt.Errorf("audit: entity is required")
	}
	if e.ID == "" {
		e.ID = r.newID()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = r.now()
	}

	before, err := snapshot(e.Before)
	if err != nil {
		return fmt.Errorf("audit: before state: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return fmt.Errorf("audit: after state: %w", err)
	}

	query := r.compiler.Rebind(`INSERT INTO audit_log
		(id, entity, entity_id, operation, before_state, after_state, statement, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.st.Exec(ctx).ExecContext(ctx, query,
		e.ID, e.Entity, e.EntityID, string(e.Operation),
		before, after, nullString(e.Statement),
		e.RecordedAt.UTC().Format(recordedAtLayout),
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

// History returns the entries for one entity, oldest first. An empty
// entityID returns every entry of the entity.
func (r *SQLRecorder) History(ctx context.Context, entity, entityID string) ([]Entry, error) {
	query := `SELECT id, entity, entity_id, operation, before_state, after_state, statement, recorded_at
		FROM audit_log WHERE entity = ?`
	args := []any{entity}
	if entityID != "" {
		query += " AND entity_id = ?"
		args = append(args, entityID)
	}
	query += " ORDER BY recorded_at, id"

	rows, err := r.st.Exec(ctx).QueryContext(ctx, r.compiler.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e                        Entry
			op, recordedAt           string
			before, after, statement sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &op, &before, &after, &statement, &recordedAt); err != nil {
			return nil, fmt.Errorf("audit: scan entry: %w", err)
		}
		e.Operation = Operation(op)
		e.Statement = statement.String
		if e.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt); err != nil {
			return nil, fmt.Errorf("audit: entry %s: recorded_at: %w", e.ID, err)
		}
		if e.Before, err = restore(before); err != nil {
			return nil, fmt.Errorf("audit: entry %s: before state: %w", e.ID, err)
		}
		if e.After, err = restore(after); err != nil {
			return nil, fmt.Errorf("audit: entry %s: after state: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func snapshot(state map[string]any) (sql.NullString, error) {
	if state == nil {
		return sql.NullString{}, nil
	}
	b, err := MarshalCanonical(state)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func restore(s sql.NullString) (map[string]any, error) {
	if !s.Valid {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
