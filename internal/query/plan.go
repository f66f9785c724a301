package query

import (
	"fmt"

	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/restriction"
)

// RootAlias is the table alias of the queried entity.
const RootAlias = "t0"

// Column is an attribute path resolved to an aliased column.
type Column struct {
	Alias string
	Name  string
	Field entity.Field
	Owner *entity.Descriptor
}

// Join is a LEFT JOIN following one to-one relation.
type Join struct {
	Alias      string // alias of the joined table
	Table      string
	FromAlias  string // alias holding the foreign key
	FromColumn string // foreign key column
	ToColumn   string // identifier column of the joined table
}

// Selection is one projected attribute.
type Selection struct {
	Path   string
	Column Column
}

// OrderTerm is one ORDER BY term.
type OrderTerm struct {
	Property string
	Desc     bool
	Column   Column
}

// Plan is the immutable result of Builder.Build.
type Plan struct {
	root         *entity.Descriptor
	restrictions []restriction.Restriction
	projection   []Selection
	orders       []OrderTerm
	joins        []Join
	columns      map[string]Column // property path → column
	aliases      map[string]string // hop prefix → alias
	first        int
	max          int
	hasMax       bool
}

// Entity returns the queried descriptor.
func (p *Plan) Entity() *entity.Descriptor { return p.root }

// Restrictions returns the AND-ed restriction list.
func (p *Plan) Restrictions() []restriction.Restriction {
	return append([]restriction.Restriction{}, p.restrictions...)
}

// Column returns the resolved column of a property path used by the plan.
func (p *Plan) Column(path string) (Column, bool) {
	c, ok := p.columns[path]
	return c, ok
}

// Joins returns the LEFT JOINs in alias order.
func (p *Plan) Joins() []Join { return append([]Join{}, p.joins...) }

// IsProjection reports whether the plan selects attributes rather than whole
// entities.
func (p *Plan) IsProjection() bool { return len(p.projection) > 0 }

// Projection returns the projected attributes, or nil for an entity query.
func (p *Plan) Projection() []Selection {
	if p.projection == nil {
		return nil
	}
	return append([]Selection{}, p.projection...)
}

// Selections returns what a SELECT renders: the projection, or every column
// of the root entity.
func (p *Plan) Selections() []Selection {
	if p.IsProjection() {
		return p.Projection()
	}
	cols := p.root.Columns()
	sel := make([]Selection, len(cols))
	for i, f := range cols {
		sel[i] = Selection{
			Path:   f.Attr,
			Column: Column{Alias: RootAlias, Name: f.Column, Field: f, Owner: p.root},
		}
	}
	return sel
}

// Orders returns the order terms; empty means natural order.
func (p *Plan) Orders() []OrderTerm { return append([]OrderTerm{}, p.orders...) }

// FirstResult returns the number of rows to skip.
func (p *Plan) FirstResult() int { return p.first }

// MaxResults returns the row limit and whether one is set.
func (p *Plan) MaxResults() (int, bool) { return p.max, p.hasMax }

// WithMax returns a copy of the plan with a different row limit.
func (p *Plan) WithMax(n int) *Plan {
	cp := *p
	cp.max = n
	cp.hasMax = true
	return &cp
}

type resolver struct {
	reg  *entity.Registry
	plan *Plan
}

// resolve maps a path to a column, allocating one alias per hop prefix.
func (r *resolver) resolve(path string) (Column, error) {
	if col, ok := r.plan.columns[path]; ok {
		return col, nil
	}

	resolved, err := r.reg.Resolve(r.plan.root, path)
	if err != nil {
		return Column{}, &restriction.InvalidRestrictionError{
			Code:     restriction.ErrCodeUnknownProperty,
			Property: path,
			Message:  fmt.Sprintf("cannot resolve on %s", r.plan.root.Name),
			Err:      err,
		}
	}

	alias := RootAlias
	for _, hop := range resolved.Hops {
		next, ok := r.plan.aliases[hop.Prefix]
		if !ok {
			next = fmt.Sprintf("t%d", len(r.plan.joins)+1)
			r.plan.aliases[hop.Prefix] = next
			r.plan.joins = append(r.plan.joins, Join{
				Alias:      next,
				Table:      hop.To.Table,
				FromAlias:  alias,
				FromColumn: hop.Via.Column,
				ToColumn:   hop.To.ID.Column,
			})
		}
		alias = next
	}

	col := Column{Alias: alias, Name: resolved.Field.Column, Field: resolved.Field, Owner: resolved.Owner}
	r.plan.columns[path] = col
	return col, nil
}
