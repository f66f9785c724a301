package dao

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/query"
	"github.com/slmyyl/xpert-framework/internal/restriction"
)

// Tuple is one projected row, shaped like the builder's attribute list.
type Tuple []any

// List returns the entities matching b. A nil builder lists everything.
// The result is never nil.
func (d *DAO[T]) List(ctx context.Context, b *query.Builder) (_ []*T, err error) {
	ctx, span := d.startSpan(ctx, "dao.list", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	p, m, err := d.entityPlan(b, "list")
	if err != nil {
		return nil, err
	}
	out, stmt, err := queryEntities(ctx, &d.core, m, p)
	if err != nil {
		return nil, err
	}
	return out, d.recordQuery(ctx, p.Entity(), stmt)
}

// ListAll returns every entity, ordered by order ("name desc, age") when
// it is not empty.
func (d *DAO[T]) ListAll(ctx context.Context, order string) ([]*T, error) {
	b := query.New()
	if order != "" {
		b.OrderBy(order)
	}
	return d.List(ctx, b)
}

// Unique returns the single entity matching b, nil when nothing matches, or
// *NonUniqueResultError when more than one row matches. At most two rows
// are fetched.
func (d *DAO[T]) Unique(ctx context.Context, b *query.Builder) (_ *T, err error) {
	ctx, span := d.startSpan(ctx, "dao.unique", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	p, m, err := d.entityPlan(b, "unique")
	if err != nil {
		return nil, err
	}
	out, stmt, err := queryEntities(ctx, &d.core, m, p.WithMax(2))
	if err != nil {
		return nil, err
	}
	if err := d.recordQuery(ctx, p.Entity(), stmt); err != nil {
		return nil, err
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return nil, &NonUniqueResultError{Entity: p.Entity().Name}
	}
}

// Count returns how many entities match b. Order and pagination are
// ignored.
func (d *DAO[T]) Count(ctx context.Context, b *query.Builder) (_ int64, err error) {
	ctx, span := d.startSpan(ctx, "dao.count", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if b == nil {
		b = query.New()
	}
	p, err := b.Build(d.reg, d.desc)
	if err != nil {
		return 0, err
	}
	stmt, params, err := d.compiler.Count(p)
	if err != nil {
		return 0, err
	}
	d.logSQL("dao count", p.Entity(), stmt, params)

	var n int64
	if err := d.st.Exec(ctx).QueryRowContext(ctx, stmt, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", p.Entity().Name, err)
	}
	return n, d.recordQuery(ctx, p.Entity(), stmt)
}

// Find returns the entity with identifier id, or nil when there is none.
func (d *DAO[T]) Find(ctx context.Context, id any) (*T, error) {
	return d.FindIn(ctx, d.desc, id)
}

// FindIn is Find against another registered entity. The rows must be
// materializable as T (see WithDescriptor).
func (d *DAO[T]) FindIn(ctx context.Context, desc *entity.Descriptor, id any) (_ *T, err error) {
	ctx, span := d.startSpan(ctx, "dao.find", desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	idv := entity.KeyOf(id)
	if idv.State() == entity.Unassigned {
		return nil, &IllegalStateError{Entity: desc.Name, Operation: "find", Message: "identifier is not assigned"}
	}
	m, err := d.mapperFor(desc, "find")
	if err != nil {
		return nil, err
	}
	p, err := query.New().Class(desc).Where(restriction.Eq(desc.ID.Attr, idv.Value())).Build(d.reg, desc)
	if err != nil {
		return nil, err
	}
	out, stmt, err := queryEntities(ctx, &d.core, m, p)
	if err != nil {
		return nil, err
	}
	if err := d.recordQuery(ctx, desc, stmt); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// ListAttributes returns projected tuples for a builder with Attributes set.
func (d *DAO[T]) ListAttributes(ctx context.Context, b *query.Builder) (_ []Tuple, err error) {
	ctx, span := d.startSpan(ctx, "dao.list_attributes", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if b == nil {
		b = query.New()
	}
	p, err := b.Build(d.reg, d.desc)
	if err != nil {
		return nil, err
	}
	if !p.IsProjection() {
		return nil, &restriction.InvalidRestrictionError{
			Code:    restriction.ErrCodeBadPlan,
			Message: "attribute listing needs an attribute projection",
		}
	}
	out, stmt, err := d.queryTuples(ctx, p)
	if err != nil {
		return nil, err
	}
	return out, d.recordQuery(ctx, p.Entity(), stmt)
}

// FindAttribute returns the value of one attribute path for the entity
// identified by target (an id, an entity.ID or a *T). A NULL column, or a
// missing relation along the path, yields nil. *NotFoundError is returned
// when the identifier matches no row.
func (d *DAO[T]) FindAttribute(ctx context.Context, attr string, target any) (_ any, err error) {
	ctx, span := d.startSpan(ctx, "dao.find_attribute", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	id := d.idOf(target)
	if id.State() == entity.Unassigned {
		return nil, &IllegalStateError{Entity: d.desc.Name, Operation: "find attribute", Message: "identifier is not assigned"}
	}
	p, err := query.New().
		Attributes(attr).
		Where(restriction.Eq(d.desc.ID.Attr, id.Value())).
		Build(d.reg, d.desc)
	if err != nil {
		return nil, err
	}
	out, stmt, err := d.queryTuples(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := d.recordQuery(ctx, d.desc, stmt); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &NotFoundError{Entity: d.desc.Name, ID: id.Value()}
	}
	return out[0][0], nil
}

// FindList resolves the collection attr of the owner identified by target
// into entities loaded through items, ordered by their identifier.
// *NotFoundError is returned when the owner does not exist.
func FindList[T, U any](ctx context.Context, owner *DAO[T], attr string, target any, items *DAO[U]) (_ []*U, err error) {
	ctx, span := owner.startSpan(ctx, "dao.find_list", owner.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	coll, ok := owner.desc.Collection(attr)
	if !ok {
		return nil, &restriction.InvalidRestrictionError{
			Code:     restriction.ErrCodeUnknownProperty,
			Property: attr,
			Message:  fmt.Sprintf("%s has no collection %q", owner.desc.Name, attr),
		}
	}
	if items.desc.Name != coll.Target {
		return nil, &IllegalStateError{
			Entity:    owner.desc.Name,
			Operation: "find list",
			Message:   fmt.Sprintf("collection %s holds %s, not %s", attr, coll.Target, items.desc.Name),
		}
	}
	fk, ok := items.desc.FieldByColumn(coll.MappedBy)
	if !ok {
		return nil, fmt.Errorf("find list %s.%s: column %s not found on %s", owner.desc.Name, attr, coll.MappedBy, items.desc.Name)
	}

	id := owner.idOf(target)
	if id.State() == entity.Unassigned {
		return nil, &IllegalStateError{Entity: owner.desc.Name, Operation: "find list", Message: "identifier is not assigned"}
	}
	found, err := owner.exists(ctx, owner.desc, id.Value())
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, &NotFoundError{Entity: owner.desc.Name, ID: id.Value()}
	}

	return items.List(ctx, query.New().
		Where(restriction.Eq(fk.Attr, id.Value())).
		Asc(items.desc.ID.Attr))
}

// entityPlan builds b and picks the mapper for its entity. Projections are
// rejected: they produce tuples, not entities.
func (d *DAO[T]) entityPlan(b *query.Builder, op string) (*query.Plan, entity.Mapper[T], error) {
	if b == nil {
		b = query.New()
	}
	p, err := b.Build(d.reg, d.desc)
	if err != nil {
		return nil, nil, err
	}
	if p.IsProjection() {
		return nil, nil, &restriction.InvalidRestrictionError{
			Code:    restriction.ErrCodeBadPlan,
			Message: op + " returns entities; use ListAttributes for projections",
		}
	}
	m, err := d.mapperFor(p.Entity(), op)
	if err != nil {
		return nil, nil, err
	}
	return p, m, nil
}

// queryEntities runs an entity plan and materializes every row with m.
func queryEntities[U any](ctx context.Context, c *core, m entity.Mapper[U], p *query.Plan) ([]*U, string, error) {
	stmt, params, err := c.compiler.Select(p)
	if err != nil {
		return nil, "", err
	}
	c.logSQL("dao select", p.Entity(), stmt, params)

	rows, err := c.st.Exec(ctx).QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, "", fmt.Errorf("query %s: %w", p.Entity().Name, err)
	}
	defer rows.Close()

	sels := p.Selections()
	attrs := make([]string, len(sels))
	for i, s := range sels {
		attrs[i] = s.Path
	}

	out := []*U{}
	for rows.Next() {
		v := m.New()
		if err := m.Scan(v, attrs, rows.Scan); err != nil {
			return nil, "", fmt.Errorf("scan %s: %w", p.Entity().Name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("query %s: %w", p.Entity().Name, err)
	}
	return out, stmt, nil
}

// queryTuples runs a projection plan.
func (c *core) queryTuples(ctx context.Context, p *query.Plan) ([]Tuple, string, error) {
	stmt, params, err := c.compiler.Select(p)
	if err != nil {
		return nil, "", err
	}
	c.logSQL("dao select", p.Entity(), stmt, params)

	rows, err := c.st.Exec(ctx).QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, "", fmt.Errorf("query %s: %w", p.Entity().Name, err)
	}
	defer rows.Close()

	sels := p.Selections()
	kinds := make([]entity.Kind, len(sels))
	for i, s := range sels {
		kinds[i] = s.Column.Field.Kind
	}
	out, err := scanTuples(rows, kinds)
	if err != nil {
		return nil, "", fmt.Errorf("query %s: %w", p.Entity().Name, err)
	}
	return out, stmt, nil
}

// scanTuples reads every row as a Tuple. Text returned as []byte becomes a
// string unless the column kind is bytes.
func scanTuples(rows *sql.Rows, kinds []entity.Kind) ([]Tuple, error) {
	out := []Tuple{}
	for rows.Next() {
		raw := make(Tuple, len(kinds))
		dest := make([]any, len(kinds))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		for i, v := range raw {
			if b, ok := v.([]byte); ok && kinds[i] != entity.KindBytes {
				raw[i] = string(b)
			}
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// exists probes for a row by identifier.
func (c *core) exists(ctx context.Context, desc *entity.Descriptor, id any) (bool, error) {
	dv, err := entity.DriverValue(id)
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", desc.Name, err)
	}
	stmt, params := c.compiler.Exists(desc, dv)
	c.logSQL("dao exists", desc, stmt, params)

	var one int
	err = c.st.Exec(ctx).QueryRowContext(ctx, stmt, params...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", desc.Name, err)
	}
	return true, nil
}

// snapshot loads the stored attributes of one row, or nil when it does not
// exist. Used for audit before-states.
func (c *core) snapshot(ctx context.Context, desc *entity.Descriptor, id any) (map[string]any, error) {
	p, err := query.New().Class(desc).Where(restriction.Eq(desc.ID.Attr, id)).Build(c.reg, desc)
	if err != nil {
		return nil, err
	}
	out, _, err := queryEntities(ctx, c, entity.NewRecordMapper(desc), p)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return map[string]any(*out[0]), nil
}
