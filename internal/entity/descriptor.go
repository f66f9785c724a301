package entity

import (
	"fmt"
	"reflect"
)

// Strategy controls how an identifier gets its value on insert.
type Strategy string

const (
	// StrategyAuto lets the store generate the identifier (autoincrement / serial).
	StrategyAuto Strategy = "auto"

	// StrategyUUID generates a UUIDv7 string before the insert.
	StrategyUUID Strategy = "uuid"

	// StrategyAssigned expects the caller to set the identifier.
	StrategyAssigned Strategy = "assigned"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyAuto, StrategyUUID, StrategyAssigned:
		return true
	}
	return false
}

// Kind is the abstract storage type of a column.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindBytes  Kind = "bytes"
	KindAny    Kind = "any"
)

// Field describes a single column of an entity table.
//
// A Field with a non-empty Ref is a to-one relation: Column holds the foreign
// key and Ref names the target descriptor.
type Field struct {
	Attr   string // attribute name used in property paths
	Column string // column name in the table
	Kind   Kind
	Ref    string // target descriptor name for to-one relations
}

// IsRelation reports whether the field is a to-one relation.
func (f Field) IsRelation() bool { return f.Ref != "" }

// Collection describes a to-many relation: rows of Target whose MappedBy
// column holds this entity's identifier.
type Collection struct {
	Attr     string
	Target   string
	MappedBy string
}

// Descriptor declares how one entity type maps onto a table.
//
// Descriptors are built once at startup and treated as read-only afterwards.
type Descriptor struct {
	Name        string
	Table       string
	ID          Field
	Strategy    Strategy
	Fields      []Field // non-identifier columns in declaration order
	Collections []Collection

	goType reflect.Type
}

// GoType returns the Go type the descriptor was reflected from, or nil for
// record descriptors.
func (d *Descriptor) GoType() reflect.Type {
	return d.goType
}

// Columns returns the identifier followed by every other column.
func (d *Descriptor) Columns() []Field {
	cols := make([]Field, 0, len(d.Fields)+1)
	cols = append(cols, d.ID)
	cols = append(cols, d.Fields...)
	return cols
}

// Attrs returns the attribute names of Columns, in the same order.
func (d *Descriptor) Attrs() []string {
	cols := d.Columns()
	attrs := make([]string, len(cols))
	for i, c := range cols {
		attrs[i] = c.Attr
	}
	return attrs
}

// Field looks up a column by attribute name, including the identifier.
func (d *Descriptor) Field(attr string) (Field, bool) {
	if attr == d.ID.Attr {
		return d.ID, true
	}
	for _, f := range d.Fields {
		if f.Attr == attr {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByColumn looks up a column by column name, including the identifier.
func (d *Descriptor) FieldByColumn(column string) (Field, bool) {
	for _, f := range d.Columns() {
		if f.Column == column {
			return f, true
		}
	}
	return Field{}, false
}

// Collection looks up a to-many relation by attribute name.
func (d *Descriptor) Collection(attr string) (Collection, bool) {
	for _, c := range d.Collections {
		if c.Attr == attr {
			return c, true
		}
	}
	return Collection{}, false
}

// validate checks the descriptor is internally consistent.
func (d *Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor: name is required")
	}
	if d.Table == "" {
		return fmt.Errorf("descriptor %s: table is required", d.Name)
	}
	if d.ID.Attr == "" || d.ID.Column == "" {
		return fmt.Errorf("descriptor %s: exactly one identifier is required", d.Name)
	}
	if !d.Strategy.Valid() {
		return fmt.Errorf("descriptor %s: unknown id strategy %q", d.Name, d.Strategy)
	}

	attrs := map[string]bool{d.ID.Attr: true}
	columns := map[string]bool{d.ID.Column: true}
	for _, f := range d.Fields {
		if f.Attr == "" || f.Column == "" {
			return fmt.Errorf("descriptor %s: field with empty attribute or column", d.Name)
		}
		if attrs[f.Attr] {
			return fmt.Errorf("descriptor %s: duplicate attribute %q", d.Name, f.Attr)
		}
		if columns[f.Column] {
			return fmt.Errorf("descriptor %s: duplicate column %q", d.Name, f.Column)
		}
		attrs[f.Attr] = true
		columns[f.Column] = true
	}
	for _, c := range d.Collections {
		if attrs[c.Attr] {
			return fmt.Errorf("descriptor %s: duplicate attribute %q", d.Name, c.Attr)
		}
		if c.Target == "" || c.MappedBy == "" {
			return fmt.Errorf("descriptor %s: collection %q needs target and mappedBy", d.Name, c.Attr)
		}
		attrs[c.Attr] = true
	}
	return nil
}
