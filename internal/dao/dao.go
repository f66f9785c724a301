package dao

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/slmyyl/xpert-framework/internal/audit"
	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/query"
	"github.com/slmyyl/xpert-framework/internal/querysql"
	"github.com/slmyyl/xpert-framework/internal/store"
)

var tracer = otel.Tracer("xpert-framework/dao")

// core is the entity-independent part of a DAO. Views copy it by value so
// a policy change on a view never leaks back to its parent.
type core struct {
	st         *store.Store
	reg        *entity.Registry
	compiler   *querysql.Compiler
	logger     *slog.Logger
	recorder   audit.Recorder
	audited    bool
	queryAudit bool
	queries    *store.Queries
}

// Option configures a DAO.
type Option func(*core)

// WithAudit sets the write audit policy. Default: on.
func WithAudit(on bool) Option {
	return func(c *core) { c.audited = on }
}

// WithQueryAudit records every read as an audit.OpQuery entry. Default: off.
func WithQueryAudit(on bool) Option {
	return func(c *core) { c.queryAudit = on }
}

// WithRecorder sets where audit entries go. Without a recorder the audit
// policy has nothing to write to and auditing is skipped.
func WithRecorder(r audit.Recorder) Option {
	return func(c *core) { c.recorder = r }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *core) { c.logger = l }
}

// WithQueries sets the file system native queries are loaded from.
func WithQueries(fsys fs.FS) Option {
	return func(c *core) { c.queries = store.NewQueries(fsys, c.st.Dialect()) }
}

// DAO is the data access object for one entity type.
//
// Every operation runs through the transaction carried by ctx when there is
// one (see store.WithTx) and through the pool otherwise. A DAO holds no
// per-call state and is safe for concurrent use; views returned by
// Audited, WithoutAudit and WithDescriptor are independent values.
type DAO[T any] struct {
	core
	mapper entity.Mapper[T]
	desc   *entity.Descriptor
}

// New creates a DAO for the entity described by mapper. The descriptor must
// be registered in reg.
func New[T any](st *store.Store, reg *entity.Registry, mapper entity.Mapper[T], opts ...Option) (*DAO[T], error) {
	if st == nil || reg == nil || mapper == nil {
		return nil, fmt.Errorf("dao: store, registry and mapper are required")
	}
	desc := mapper.Descriptor()
	if registered, ok := reg.Lookup(desc.Name); !ok || registered != desc {
		return nil, fmt.Errorf("dao: entity %s is not registered", desc.Name)
	}

	d := &DAO[T]{
		core: core{
			st:       st,
			reg:      reg,
			compiler: querysql.NewCompiler(st.Dialect()),
			logger:   slog.Default(),
			audited:  true,
		},
		mapper: mapper,
		desc:   desc,
	}
	for _, opt := range opts {
		opt(&d.core)
	}
	return d, nil
}

// Audited returns a view of d that records writes.
func (d *DAO[T]) Audited() *DAO[T] {
	cp := *d
	cp.audited = true
	return &cp
}

// WithoutAudit returns a view of d that does not record writes.
func (d *DAO[T]) WithoutAudit() *DAO[T] {
	cp := *d
	cp.audited = false
	return &cp
}

// WithDescriptor returns a view of d bound to another registered entity.
// Only DAOs over entity.Record can be rebound to a different descriptor.
func (d *DAO[T]) WithDescriptor(desc *entity.Descriptor) (*DAO[T], error) {
	if desc == nil {
		return nil, &IllegalStateError{Entity: d.desc.Name, Operation: "rebind", Message: "nil descriptor"}
	}
	if registered, ok := d.reg.Lookup(desc.Name); !ok || registered != desc {
		return nil, &IllegalStateError{Entity: desc.Name, Operation: "rebind", Message: "entity is not registered"}
	}
	m, err := d.mapperFor(desc, "rebind")
	if err != nil {
		return nil, err
	}
	cp := *d
	cp.desc = desc
	cp.mapper = m
	return &cp, nil
}

// Descriptor returns the entity the DAO is bound to.
func (d *DAO[T]) Descriptor() *entity.Descriptor { return d.desc }

// Store returns the underlying store.
func (d *DAO[T]) Store() *store.Store { return d.st }

// Registry returns the registry paths are resolved against.
func (d *DAO[T]) Registry() *entity.Registry { return d.reg }

// IsAudited reports whether writes through d are recorded.
func (d *DAO[T]) IsAudited() bool { return d.auditing() }

// Builder returns a fresh query builder bound to the DAO's entity.
func (d *DAO[T]) Builder() *query.Builder {
	return query.New().Class(d.desc)
}

// Conn returns a dedicated connection from the store. The caller must close
// it.
func (d *DAO[T]) Conn(ctx context.Context) (*sql.Conn, error) {
	return d.st.Conn(ctx)
}

// mapperFor returns a mapper producing *T rows of desc.
func (d *DAO[T]) mapperFor(desc *entity.Descriptor, op string) (entity.Mapper[T], error) {
	if desc == nil || desc == d.desc {
		return d.mapper, nil
	}
	if _, ok := any(d.mapper).(*entity.RecordMapper); ok {
		return any(entity.NewRecordMapper(desc)).(entity.Mapper[T]), nil
	}
	if t := d.desc.GoType(); t != nil && t == desc.GoType() {
		return d.mapper, nil
	}
	return nil, &IllegalStateError{
		Entity:    desc.Name,
		Operation: op,
		Message:   fmt.Sprintf("rows cannot be materialized as %s; use a projection", d.desc.Name),
	}
}

// idOf extracts the identifier from an instance, an entity.ID or a raw
// value.
func (d *DAO[T]) idOf(target any) entity.ID {
	switch v := target.(type) {
	case *T:
		return d.mapper.ID(v)
	case T:
		return d.mapper.ID(&v)
	case entity.ID:
		return v
	default:
		return entity.KeyOf(target)
	}
}

func (c *core) auditing() bool {
	return c.audited && c.recorder != nil
}

// record writes an audit entry. Inside an ambient transaction a failure
// aborts the operation; outside one the write already committed, so the
// failure is logged and dropped.
func (c *core) record(ctx context.Context, e audit.Entry) error {
	if err := c.recorder.Record(ctx, e); err != nil {
		if c.st.InTx(ctx) {
			return fmt.Errorf("audit %s %s: %w", e.Operation, e.Entity, err)
		}
		c.logger.Warn("audit entry dropped",
			"entity", e.Entity,
			"id", e.EntityID,
			"operation", string(e.Operation),
			"error", err,
		)
	}
	return nil
}

// recordQuery audits a read when query auditing is on.
func (c *core) recordQuery(ctx context.Context, desc *entity.Descriptor, stmt string) error {
	if !c.queryAudit || c.recorder == nil {
		return nil
	}
	return c.record(ctx, audit.Entry{Entity: desc.Name, Operation: audit.OpQuery, Statement: stmt})
}

func (c *core) startSpan(ctx context.Context, name string, desc *entity.Descriptor) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("dao.entity", desc.Name),
			attribute.String("db.system", c.st.Driver()),
		),
	)
}

func recordAnyErrorAndEndSpan(err error, span trace.Span) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *core) logSQL(msg string, desc *entity.Descriptor, stmt string, params []any) {
	c.logger.Debug(msg, "entity", desc.Name, "sql", stmt, "params", len(params))
}

func formatID(id any) string {
	if id == nil {
		return ""
	}
	if b, ok := id.([]byte); ok {
		return string(b)
	}
	return fmt.Sprint(id)
}
