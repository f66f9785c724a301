package query

import (
	"fmt"
	"strings"

	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/restriction"
)

// Builder assembles a query plan. The zero value is usable.
type Builder struct {
	list    []restriction.Restriction
	hasList bool

	single restriction.Restriction

	pairProperty string
	pairValue    any
	hasPair      bool

	match map[string]any

	class *entity.Descriptor
	order []string
	attrs *string
	first *int
	max   *int
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

// Where sets an explicit restriction list, AND-ed. It takes precedence over
// every other filter form, even when empty.
func (b *Builder) Where(rs ...restriction.Restriction) *Builder {
	b.list = append([]restriction.Restriction(nil), rs...)
	b.hasList = true
	return b
}

// Restriction sets a single restriction.
func (b *Builder) Restriction(r restriction.Restriction) *Builder {
	b.single = r
	return b
}

// Eq sets a property = value filter. A nil value matches NULL.
func (b *Builder) Eq(property string, value any) *Builder {
	b.pairProperty = property
	b.pairValue = value
	b.hasPair = true
	return b
}

// Match sets a property → value filter, one equality per entry.
func (b *Builder) Match(m map[string]any) *Builder {
	b.match = make(map[string]any, len(m))
	for k, v := range m {
		b.match[k] = v
	}
	return b
}

// Class queries desc instead of the default entity for this plan only.
func (b *Builder) Class(desc *entity.Descriptor) *Builder {
	b.class = desc
	return b
}

// OrderBy appends order terms: "name desc, age". Direction defaults to asc.
func (b *Builder) OrderBy(spec string) *Builder {
	b.order = append(b.order, spec)
	return b
}

// Asc appends an ascending order term.
func (b *Builder) Asc(property string) *Builder {
	return b.OrderBy(property + " asc")
}

// Desc appends a descending order term.
func (b *Builder) Desc(property string) *Builder {
	return b.OrderBy(property + " desc")
}

// Attributes requests a projection: a comma-separated list of attribute
// paths. Results become tuples shaped like the list.
func (b *Builder) Attributes(spec string) *Builder {
	b.attrs = &spec
	return b
}

// First skips the first n rows.
func (b *Builder) First(n int) *Builder {
	b.first = &n
	return b
}

// Max returns at most n rows.
func (b *Builder) Max(n int) *Builder {
	b.max = &n
	return b
}

// Page sets both pagination bounds.
func (b *Builder) Page(first, max int) *Builder {
	return b.First(first).Max(max)
}

// Restrictions returns the canonical restriction list for the winning
// filter form.
func (b *Builder) Restrictions() []restriction.Restriction {
	switch {
	case b.hasList:
		return append([]restriction.Restriction{}, b.list...)
	case b.single != nil:
		return []restriction.Restriction{b.single}
	case b.hasPair:
		if b.pairValue == nil {
			return []restriction.Restriction{restriction.IsNull(b.pairProperty)}
		}
		return []restriction.Restriction{restriction.Eq(b.pairProperty, b.pairValue)}
	case b.match != nil:
		return restriction.FromMap(b.match)
	default:
		return []restriction.Restriction{}
	}
}

// Build validates the builder and resolves every attribute path. def is the
// entity queried unless Class overrides it.
func (b *Builder) Build(reg *entity.Registry, def *entity.Descriptor) (*Plan, error) {
	root := def
	if b.class != nil {
		root = b.class
	}
	if root == nil {
		return nil, planError("no entity to query")
	}
	if reg == nil {
		return nil, planError("no entity registry")
	}

	if b.first != nil && *b.first < 0 {
		return nil, planError(fmt.Sprintf("first result must be >= 0, got %d", *b.first))
	}
	if b.max != nil && *b.max < 0 {
		return nil, planError(fmt.Sprintf("max results must be >= 0, got %d", *b.max))
	}

	rs := b.Restrictions()
	if err := restriction.ValidateAll(rs); err != nil {
		return nil, err
	}

	p := &Plan{
		root:         root,
		restrictions: rs,
		columns:      map[string]Column{},
		aliases:      map[string]string{},
	}
	r := &resolver{reg: reg, plan: p}

	if b.attrs != nil {
		paths, err := ParseAttributes(*b.attrs)
		if err != nil {
			return nil, err
		}
		for _, path := range paths {
			col, err := r.resolve(path)
			if err != nil {
				return nil, err
			}
			p.projection = append(p.projection, Selection{Path: path, Column: col})
		}
	}

	for _, prop := range restriction.Properties(rs...) {
		if _, err := r.resolve(prop); err != nil {
			return nil, err
		}
	}

	for _, spec := range b.order {
		terms, err := parseOrder(spec)
		if err != nil {
			return nil, err
		}
		for _, term := range terms {
			col, err := r.resolve(term.Property)
			if err != nil {
				return nil, err
			}
			term.Column = col
			p.orders = append(p.orders, term)
		}
	}

	if b.first != nil {
		p.first = *b.first
	}
	if b.max != nil {
		p.max = *b.max
		p.hasMax = true
	}
	return p, nil
}

// ParseAttributes splits a projection spec into trimmed attribute paths. The
// spec must name at least one path and no path may be empty.
func ParseAttributes(spec string) ([]string, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, planError("projection must name at least one attribute")
	}
	parts := strings.Split(spec, ",")
	paths := make([]string, 0, len(parts))
	for _, part := range parts {
		path := strings.TrimSpace(part)
		if path == "" {
			return nil, planError(fmt.Sprintf("empty attribute in projection %q", spec))
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func parseOrder(spec string) ([]OrderTerm, error) {
	var terms []OrderTerm
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Fields(part)
		switch len(fields) {
		case 0:
			return nil, planError(fmt.Sprintf("empty term in order %q", spec))
		case 1:
			terms = append(terms, OrderTerm{Property: fields[0]})
		case 2:
			switch strings.ToLower(fields[1]) {
			case "asc":
				terms = append(terms, OrderTerm{Property: fields[0]})
			case "desc":
				terms = append(terms, OrderTerm{Property: fields[0], Desc: true})
			default:
				return nil, planError(fmt.Sprintf("bad order direction %q", fields[1]))
			}
		default:
			return nil, planError(fmt.Sprintf("bad order term %q", strings.TrimSpace(part)))
		}
	}
	return terms, nil
}

func planError(msg string) error {
	return &restriction.InvalidRestrictionError{Code: restriction.ErrCodeBadPlan, Message: msg}
}
