package querysql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/query"
	"github.com/slmyyl/xpert-framework/internal/restriction"
)

// Dialect selects placeholder style and dialect-specific operators.
type Dialect string

const (
	// SQLite uses ? placeholders and LOWER() for case-insensitive matching.
	SQLite Dialect = "sqlite"

	// Postgres uses $n placeholders and ILIKE.
	Postgres Dialect = "postgres"
)

// Valid reports whether d is a known dialect.
func (d Dialect) Valid() bool {
	return d == SQLite || d == Postgres
}

// Compiler renders query plans and entity writes to parameterized SQL.
//
// All values are parameterized, never interpolated. Output text depends
// only on the plan, so identical plans compile to identical SQL.
type Compiler struct {
	dialect Dialect
}

// NewCompiler creates a compiler for d. An unknown dialect falls back to
// SQLite.
func NewCompiler(d Dialect) *Compiler {
	if !d.Valid() {
		d = SQLite
	}
	return &Compiler{dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() Dialect { return c.dialect }

// Select renders the plan as a SELECT with joins, filter, order and
// pagination.
func (c *Compiler) Select(p *query.Plan) (string, []any, error) {
	if p == nil {
		return "", nil, fmt.Errorf("cannot compile nil plan")
	}

	sels := p.Selections()
	cols := make([]string, len(sels))
	for i, s := range sels {
		cols[i] = qualified(s.Column)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	c.writeFrom(&sb, p)

	params, err := c.writeWhere(&sb, p)
	if err != nil {
		return "", nil, err
	}

	if orders := p.Orders(); len(orders) > 0 {
		terms := make([]string, len(orders))
		for i, o := range orders {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = qualified(o.Column) + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(terms, ", "))
	}

	c.writePage(&sb, p)
	return c.rebind(sb.String()), params, nil
}

// Count renders SELECT COUNT(*) for the plan's filter. Order and pagination
// are ignored so the count matches an unbounded list.
func (c *Compiler) Count(p *query.Plan) (string, []any, error) {
	if p == nil {
		return "", nil, fmt.Errorf("cannot compile nil plan")
	}

	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*)")
	c.writeFrom(&sb, p)
	params, err := c.writeWhere(&sb, p)
	if err != nil {
		return "", nil, err
	}
	return c.rebind(sb.String()), params, nil
}

func (c *Compiler) writeFrom(sb *strings.Builder, p *query.Plan) {
	sb.WriteString(" FROM ")
	sb.WriteString(p.Entity().Table)
	sb.WriteString(" ")
	sb.WriteString(query.RootAlias)
	for _, j := range p.Joins() {
		fmt.Fprintf(sb, " LEFT JOIN %s %s ON %s.%s = %s.%s",
			j.Table, j.Alias, j.Alias, j.ToColumn, j.FromAlias, j.FromColumn)
	}
}

func (c *Compiler) writeWhere(sb *strings.Builder, p *query.Plan) ([]any, error) {
	rs := p.Restrictions()
	if len(rs) == 0 {
		return []any{}, nil
	}

	parts := make([]string, 0, len(rs))
	params := []any{}
	for _, r := range rs {
		frag, args, err := c.compileRestriction(p, r, len(rs) > 1)
		if err != nil {
			return nil, fmt.Errorf("compile filter: %w", err)
		}
		parts = append(parts, frag)
		params = append(params, args...)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(parts, " AND "))
	return params, nil
}

func (c *Compiler) writePage(sb *strings.Builder, p *query.Plan) {
	first := p.FirstResult()
	limit, hasLimit := p.MaxResults()

	switch {
	case hasLimit:
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(limit))
		if first > 0 {
			sb.WriteString(" OFFSET ")
			sb.WriteString(strconv.Itoa(first))
		}
	case first > 0:
		// SQLite accepts OFFSET only after LIMIT; -1 means no limit.
		if c.dialect == SQLite {
			sb.WriteString(" LIMIT -1")
		}
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(first))
	}
}

// compileRestriction renders one restriction. nested wraps multi-member
// groups in parentheses.
func (c *Compiler) compileRestriction(p *query.Plan, r restriction.Restriction, nested bool) (string, []any, error) {
	switch r := r.(type) {
	case restriction.Condition:
		return c.compileCondition(p, r)
	case *restriction.Condition:
		return c.compileCondition(p, *r)
	case restriction.Group:
		return c.compileGroup(p, r, nested)
	case *restriction.Group:
		return c.compileGroup(p, *r, nested)
	default:
		return "", nil, fmt.Errorf("unsupported restriction type: %T", r)
	}
}

func (c *Compiler) compileGroup(p *query.Plan, g restriction.Group, nested bool) (string, []any, error) {
	members := g.Members()
	if len(members) == 0 {
		if g.Logic() == restriction.LogicOr {
			return "1 = 0", nil, nil // no alternative can hold
		}
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(members))
	var params []any
	for _, m := range members {
		frag, args, err := c.compileRestriction(p, m, true)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, frag)
		params = append(params, args...)
	}
	if len(parts) == 1 {
		return parts[0], params, nil
	}

	sql := strings.Join(parts, " "+string(g.Logic())+" ")
	if nested {
		sql = "(" + sql + ")"
	}
	return sql, params, nil
}

var comparisons = map[restriction.Operator]string{
	restriction.OpEq:      "=",
	restriction.OpNe:      "<>",
	restriction.OpGt:      ">",
	restriction.OpGe:      ">=",
	restriction.OpLt:      "<",
	restriction.OpLe:      "<=",
	restriction.OpLike:    "LIKE",
	restriction.OpNotLike: "NOT LIKE",
}

func (c *Compiler) compileCondition(p *query.Plan, cond restriction.Condition) (string, []any, error) {
	col, ok := p.Column(cond.Property())
	if !ok {
		return "", nil, fmt.Errorf("property %q was not resolved by the plan", cond.Property())
	}
	name := qualified(col)

	params, err := driverValues(cond.Operands())
	if err != nil {
		return "", nil, fmt.Errorf("property %q: %w", cond.Property(), err)
	}

	switch op := cond.Operator(); op {
	case restriction.OpIsNull:
		return name + " IS NULL", nil, nil
	case restriction.OpIsNotNull:
		return name + " IS NOT NULL", nil, nil
	case restriction.OpBetween:
		return name + " BETWEEN ? AND ?", params, nil
	case restriction.OpIn, restriction.OpNotIn:
		kw := " IN ("
		if op == restriction.OpNotIn {
			kw = " NOT IN ("
		}
		return name + kw + placeholders(len(params)) + ")", params, nil
	case restriction.OpILike:
		if c.dialect == Postgres {
			return name + " ILIKE ?", params, nil
		}
		return "LOWER(" + name + ") LIKE LOWER(?)", params, nil
	default:
		sym, ok := comparisons[op]
		if !ok {
			return "", nil, fmt.Errorf("unsupported operator %q", op)
		}
		return name + " " + sym + " ?", params, nil
	}
}

// Insert renders an INSERT returning the identifier. withID includes the
// identifier column, for generated or assigned identifiers.
func (c *Compiler) Insert(d *entity.Descriptor, values map[string]any, withID bool) (string, []any) {
	var cols, marks []string
	var params []any
	for _, f := range d.Columns() {
		if f.Attr == d.ID.Attr && !withID {
			continue
		}
		cols = append(cols, f.Column)
		marks = append(marks, "?")
		params = append(params, values[f.Attr])
	}

	var sql string
	if len(cols) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", d.Table, d.ID.Column)
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
			d.Table, strings.Join(cols, ", "), strings.Join(marks, ", "), d.ID.Column)
	}
	return c.rebind(sql), params
}

// Update renders an UPDATE of every non-identifier column by identifier.
func (c *Compiler) Update(d *entity.Descriptor, values map[string]any) (string, []any) {
	sets := make([]string, 0, len(d.Fields))
	params := make([]any, 0, len(d.Fields)+1)
	for _, f := range d.Fields {
		sets = append(sets, f.Column+" = ?")
		params = append(params, values[f.Attr])
	}
	if len(sets) == 0 {
		sets = append(sets, d.ID.Column+" = "+d.ID.Column)
	}
	params = append(params, values[d.ID.Attr])

	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", d.Table, strings.Join(sets, ", "), d.ID.Column)
	return c.rebind(sql), params
}

// Delete renders a DELETE by identifier.
func (c *Compiler) Delete(d *entity.Descriptor, id any) (string, []any) {
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", d.Table, d.ID.Column)
	return c.rebind(sql), []any{id}
}

// Exists renders a single-row probe by identifier.
func (c *Compiler) Exists(d *entity.Descriptor, id any) (string, []any) {
	sql := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? LIMIT 1", d.Table, d.ID.Column)
	return c.rebind(sql), []any{id}
}

// Rebind converts ? placeholders for the compiler's dialect. Native query
// text goes through it too.
func (c *Compiler) Rebind(sql string) string { return c.rebind(sql) }

// rebind rewrites ? to $1, $2, ... for Postgres, skipping quoted literals.
func (c *Compiler) rebind(sql string) string {
	if c.dialect != Postgres || !strings.Contains(sql, "?") {
		return sql
	}

	var sb strings.Builder
	sb.Grow(len(sql) + 8)
	n := 0
	var quote byte
	for i := 0; i < len(sql); i++ {
		ch := sql[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '?':
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteByte(ch)
	}
	return sb.String()
}

func qualified(col query.Column) string {
	return col.Alias + "." + col.Name
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func driverValues(vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		dv, err := entity.DriverValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = dv
	}
	return out, nil
}
