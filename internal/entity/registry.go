package entity

import (
	"fmt"
	"sort"
	"strings"
)

// Registry holds the descriptors of an application, keyed by name.
//
// Register everything at startup and call Check once; lookups afterwards are
// read-only and safe for concurrent use.
type Registry struct {
	byName map[string]*Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Register validates and adds descriptors. Names must be unique.
func (r *Registry) Register(descs ...*Descriptor) error {
	for _, d := range descs {
		if d == nil {
			return fmt.Errorf("register: nil descriptor")
		}
		if err := d.validate(); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		if _, exists := r.byName[d.Name]; exists {
			return fmt.Errorf("register: duplicate entity %q", d.Name)
		}
		r.byName[d.Name] = d
	}
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// MustLookup is Lookup for names known to be registered; it panics otherwise.
func (r *Registry) MustLookup(name string) *Descriptor {
	d, ok := r.byName[name]
	if !ok {
		panic(fmt.Sprintf("entity %q is not registered", name))
	}
	return d
}

// Descriptors returns every registered descriptor sorted by name.
func (r *Registry) Descriptors() []*Descriptor {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	descs := make([]*Descriptor, len(names))
	for i, name := range names {
		descs[i] = r.byName[name]
	}
	return descs
}

// Check verifies every relation and collection points at a registered
// descriptor, and that collection mappedBy columns exist on their target.
func (r *Registry) Check() error {
	for _, d := range r.Descriptors() {
		for _, f := range d.Fields {
			if f.IsRelation() {
				if _, ok := r.byName[f.Ref]; !ok {
					return fmt.Errorf("entity %s: relation %q targets unknown entity %q", d.Name, f.Attr, f.Ref)
				}
			}
		}
		for _, c := range d.Collections {
			target, ok := r.byName[c.Target]
			if !ok {
				return fmt.Errorf("entity %s: collection %q targets unknown entity %q", d.Name, c.Attr, c.Target)
			}
			if _, ok := target.FieldByColumn(c.MappedBy); !ok {
				return fmt.Errorf("entity %s: collection %q: column %q not found on %s", d.Name, c.Attr, c.MappedBy, target.Name)
			}
		}
	}
	return nil
}

// Hop is one to-one relation traversed by a path.
type Hop struct {
	Prefix string      // path up to and including this relation, e.g. "address"
	From   *Descriptor // owner of the foreign key
	Via    Field       // the relation field on From
	To     *Descriptor // relation target
}

// Path is a dotted attribute path resolved against a root descriptor.
type Path struct {
	Raw   string
	Hops  []Hop       // to-one relations to join, outermost first
	Owner *Descriptor // descriptor that owns Field
	Field Field       // column the path ends at
}

// Resolve walks a dotted attribute path from root.
//
// Every segment except the last must be a to-one relation. The last segment
// must be a column of the descriptor reached so far; a relation name is
// accepted and resolves to its foreign key column. A trailing identifier
// reached through a relation ("address.id") collapses onto the foreign key so
// no join is needed. Collections never resolve.
func (r *Registry) Resolve(root *Descriptor, path string) (Path, error) {
	if root == nil {
		return Path{}, fmt.Errorf("resolve %q: nil entity", path)
	}
	raw := strings.TrimSpace(path)
	if raw == "" {
		return Path{}, fmt.Errorf("empty attribute path")
	}

	segments := strings.Split(raw, ".")
	current := root
	var hops []Hop

	for i, seg := range segments {
		if seg == "" {
			return Path{}, fmt.Errorf("attribute path %q has an empty segment", raw)
		}
		last := i == len(segments)-1

		field, ok := current.Field(seg)
		if !ok {
			if _, isColl := current.Collection(seg); isColl {
				return Path{}, fmt.Errorf("attribute path %q: %s.%s is a collection", raw, current.Name, seg)
			}
			return Path{}, fmt.Errorf("attribute path %q: %s has no attribute %q", raw, current.Name, seg)
		}

		if last {
			return Path{Raw: raw, Hops: hops, Owner: current, Field: field}, nil
		}

		if !field.IsRelation() {
			return Path{}, fmt.Errorf("attribute path %q: %s.%s is not a relation", raw, current.Name, seg)
		}
		target, ok := r.byName[field.Ref]
		if !ok {
			return Path{}, fmt.Errorf("attribute path %q: unknown entity %q", raw, field.Ref)
		}

		// "relation.<id>" is the foreign key itself.
		if i == len(segments)-2 && segments[i+1] == target.ID.Attr {
			return Path{Raw: raw, Hops: hops, Owner: current, Field: field}, nil
		}

		hops = append(hops, Hop{
			Prefix: strings.Join(segments[:i+1], "."),
			From:   current,
			Via:    field,
			To:     target,
		})
		current = target
	}

	// unreachable: the loop returns on the last segment
	return Path{}, fmt.Errorf("attribute path %q could not be resolved", raw)
}
