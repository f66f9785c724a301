package entity

import (
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
)

// Ref is a to-one reference that is either Unloaded(id) or Loaded(value).
//
// Rows scan into a Ref as Unloaded with the foreign key value; resolving it
// (see dao.GetInitialized) marks it Loaded so later resolutions skip the
// store. A Ref is owned by the entity holding it and must not be resolved
// from two goroutines at once.
type Ref[T any] struct {
	id     ID
	value  *T
	loaded bool
}

// RefTo returns an Unloaded reference to the entity identified by id.
func RefTo[T any](id any) Ref[T] {
	return Ref[T]{id: IDOf(id)}
}

// LoadedRef returns a reference that already holds its value.
func LoadedRef[T any](id any, v *T) Ref[T] {
	return Ref[T]{id: IDOf(id), value: v, loaded: v != nil}
}

// ID returns the referenced identifier.
func (r Ref[T]) ID() ID { return r.id }

// IsNil reports whether the reference points nowhere.
func (r Ref[T]) IsNil() bool { return r.id.State() == Unassigned && !r.loaded }

// IsLoaded reports whether the value has been materialized.
func (r Ref[T]) IsLoaded() bool { return r.loaded }

// Get returns the loaded value, or false when Unloaded.
func (r Ref[T]) Get() (*T, bool) {
	if !r.loaded {
		return nil, false
	}
	return r.value, true
}

// Resolve marks the reference Loaded with v.
func (r *Ref[T]) Resolve(v *T) {
	r.value = v
	r.loaded = v != nil
}

// Scan implements sql.Scanner; the column holds the foreign key.
func (r *Ref[T]) Scan(src any) error {
	r.value = nil
	r.loaded = false
	switch v := src.(type) {
	case nil:
		r.id = NoID()
	case []byte:
		r.id = IDOf(string(v))
	default:
		r.id = IDOf(v)
	}
	return nil
}

// Value implements driver.Valuer; it writes the foreign key.
func (r Ref[T]) Value() (driver.Value, error) {
	if r.id.State() == Unassigned {
		return nil, nil
	}
	return DriverValue(r.id.Value())
}

func (r Ref[T]) String() string {
	if r.loaded {
		return fmt.Sprintf("Loaded(%s)", r.id)
	}
	return fmt.Sprintf("Unloaded(%s)", r.id)
}

// DriverValue narrows a Go value to one of the types database/sql drivers
// accept. Valuers are unwrapped, sized integers widen to int64 and named
// scalar types drop their name.
func DriverValue(v any) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		return valuer.Value()
	}
	if driver.IsValue(v) {
		return v, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, nil
		}
		return DriverValue(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("unsigned value %d overflows int64", u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes(), nil
		}
	}
	return nil, fmt.Errorf("unsupported value type %T", v)
}
