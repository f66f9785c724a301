package entity

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Mapper moves one entity type between Go values and rows.
type Mapper[T any] interface {
	// Descriptor returns the descriptor the mapper was built for.
	Descriptor() *Descriptor

	// New returns a fresh, empty instance.
	New() *T

	// ID reports the identifier state of v.
	ID(v *T) ID

	// SetID stores a generated or loaded identifier into v.
	SetID(v *T, id any) error

	// Values returns attribute → driver value for every column, identifier
	// included.
	Values(v *T) (map[string]any, error)

	// Scan reads one row whose columns are attrs, in order, into v.
	Scan(v *T, attrs []string, scan func(dest ...any) error) error
}

// Option adjusts a descriptor while it is being described.
type Option func(*Descriptor)

// HasMany declares a to-many collection: rows of target whose mappedBy
// column holds this entity's identifier.
func HasMany(attr, target, mappedBy string) Option {
	return func(d *Descriptor) {
		d.Collections = append(d.Collections, Collection{Attr: attr, Target: target, MappedBy: mappedBy})
	}
}

// StructMapper maps a struct type using `dao` field tags. The reflection
// happens once in Describe; mapping calls only index fields.
//
// Tag grammar: `dao:"column[,id][,auto|uuid|assigned][,ref=Entity][,attr=name]"`.
// The attribute name defaults to the column name; for ref fields a trailing
// "_id" is dropped ("address_id" → "address"). Untagged fields are ignored.
type StructMapper[T any] struct {
	desc    *Descriptor
	idIndex []int
	index   map[string][]int // attr → field index
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
)

// Describe reflects T into a descriptor and a mapper for it.
func Describe[T any](name, table string, opts ...Option) (*StructMapper[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("describe %s: %s is not a struct", name, t)
	}

	m := &StructMapper[T]{
		desc:  &Descriptor{Name: name, Table: table, goType: t},
		index: make(map[string][]int),
	}

	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag, ok := sf.Tag.Lookup("dao")
		if !ok || tag == "-" || !sf.IsExported() {
			continue
		}

		field, isID, strategy, err := parseTag(tag, sf.Type)
		if err != nil {
			return nil, fmt.Errorf("describe %s: field %s: %w", name, sf.Name, err)
		}

		if isID {
			if m.idIndex != nil {
				return nil, fmt.Errorf("describe %s: more than one identifier", name)
			}
			m.idIndex = sf.Index
			m.desc.ID = field
			m.desc.Strategy = strategy
		} else {
			m.desc.Fields = append(m.desc.Fields, field)
		}
		m.index[field.Attr] = sf.Index
	}

	if m.idIndex == nil {
		return nil, fmt.Errorf("describe %s: no field tagged as id", name)
	}

	for _, opt := range opts {
		opt(m.desc)
	}
	if err := m.desc.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MustDescribe is Describe for package-level declarations; it panics on error.
func MustDescribe[T any](name, table string, opts ...Option) *StructMapper[T] {
	m, err := Describe[T](name, table, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func parseTag(tag string, ft reflect.Type) (Field, bool, Strategy, error) {
	parts := strings.Split(tag, ",")
	field := Field{Column: strings.TrimSpace(parts[0]), Kind: kindOf(ft)}
	if field.Column == "" {
		return Field{}, false, "", fmt.Errorf("empty column in tag %q", tag)
	}

	isID := false
	strategy := StrategyAuto
	for _, opt := range parts[1:] {
		opt = strings.TrimSpace(opt)
		switch {
		case opt == "id":
			isID = true
		case opt == "auto" || opt == "uuid" || opt == "assigned":
			strategy = Strategy(opt)
		case strings.HasPrefix(opt, "ref="):
			field.Ref = strings.TrimPrefix(opt, "ref=")
		case strings.HasPrefix(opt, "attr="):
			field.Attr = strings.TrimPrefix(opt, "attr=")
		default:
			return Field{}, false, "", fmt.Errorf("unknown tag option %q", opt)
		}
	}

	if field.Attr == "" {
		field.Attr = field.Column
		if field.Ref != "" {
			field.Attr = strings.TrimSuffix(field.Column, "_id")
		}
	}
	if isID && field.Ref != "" {
		return Field{}, false, "", fmt.Errorf("identifier cannot be a relation")
	}
	return field, isID, strategy, nil
}

func kindOf(t reflect.Type) Kind {
	if t == timeType {
		return KindTime
	}
	if t.Kind() == reflect.Pointer {
		return kindOf(t.Elem())
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindInt
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Bool:
		return KindBool
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return KindBytes
		}
	}
	return KindAny
}

// Descriptor implements Mapper.
func (m *StructMapper[T]) Descriptor() *Descriptor { return m.desc }

// New implements Mapper.
func (m *StructMapper[T]) New() *T { return new(T) }

// ID implements Mapper.
func (m *StructMapper[T]) ID(v *T) ID {
	if v == nil {
		return NoID()
	}
	return IDOf(reflect.ValueOf(v).Elem().FieldByIndex(m.idIndex).Interface())
}

// SetID implements Mapper. The value is converted to the field type.
func (m *StructMapper[T]) SetID(v *T, id any) error {
	fv := reflect.ValueOf(v).Elem().FieldByIndex(m.idIndex)
	if b, ok := id.([]byte); ok {
		id = string(b)
	}
	iv := reflect.ValueOf(id)
	if !iv.IsValid() {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}
	if !iv.Type().ConvertibleTo(fv.Type()) || !convertible(iv.Kind(), fv.Kind()) {
		return fmt.Errorf("set id of %s: cannot use %T as %s", m.desc.Name, id, fv.Type())
	}
	fv.Set(iv.Convert(fv.Type()))
	return nil
}

// Values implements Mapper.
func (m *StructMapper[T]) Values(v *T) (map[string]any, error) {
	rv := reflect.ValueOf(v).Elem()
	values := make(map[string]any, len(m.index))
	for attr, idx := range m.index {
		dv, err := DriverValue(rv.FieldByIndex(idx).Interface())
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.desc.Name, attr, err)
		}
		values[attr] = dv
	}
	return values, nil
}

// Scan implements Mapper.
func (m *StructMapper[T]) Scan(v *T, attrs []string, scan func(dest ...any) error) error {
	rv := reflect.ValueOf(v).Elem()
	dest := make([]any, len(attrs))
	for i, attr := range attrs {
		idx, ok := m.index[attr]
		if !ok {
			return fmt.Errorf("scan %s: no field for attribute %q", m.desc.Name, attr)
		}
		fv := rv.FieldByIndex(idx)
		if fv.Kind() == reflect.Pointer || fv.Addr().Type().Implements(scannerType) {
			dest[i] = fv.Addr().Interface()
			continue
		}
		dest[i] = &nullable{target: fv}
	}
	return scan(dest...)
}

// nullable scans a possibly NULL column into a non-pointer field, leaving
// the zero value behind for NULL.
type nullable struct {
	target reflect.Value
}

func (n *nullable) Scan(src any) error {
	if src == nil {
		n.target.Set(reflect.Zero(n.target.Type()))
		return nil
	}
	if b, ok := src.([]byte); ok && n.target.Kind() == reflect.String {
		n.target.SetString(string(b))
		return nil
	}
	sv := reflect.ValueOf(src)
	if sv.Type().AssignableTo(n.target.Type()) {
		n.target.Set(sv)
		return nil
	}
	if sv.Type().ConvertibleTo(n.target.Type()) && convertible(sv.Kind(), n.target.Kind()) {
		n.target.Set(sv.Convert(n.target.Type()))
		return nil
	}
	return fmt.Errorf("cannot scan %T into %s", src, n.target.Type())
}

// convertible rejects the reflect conversions that silently change meaning,
// such as int64 → string.
func convertible(from, to reflect.Kind) bool {
	isNum := func(k reflect.Kind) bool {
		return (k >= reflect.Int && k <= reflect.Uint64) || k == reflect.Float32 || k == reflect.Float64
	}
	if isNum(from) && isNum(to) {
		return true
	}
	return from == to
}
