package entity

import (
	"fmt"
	"reflect"
)

// IDState is the discriminator of the identifier variant.
type IDState int

const (
	// Unassigned means the entity has never been stored.
	Unassigned IDState = iota

	// Assigned means the entity carries an identifier value.
	Assigned
)

func (s IDState) String() string {
	switch s {
	case Unassigned:
		return "unassigned"
	case Assigned:
		return "assigned"
	default:
		return fmt.Sprintf("IDState(%d)", int(s))
	}
}

// ID is the identifier of one entity instance: Unassigned or Assigned(value).
type ID struct {
	state IDState
	value any
}

// NoID returns the Unassigned variant.
func NoID() ID {
	return ID{state: Unassigned}
}

// AssignedID returns the Assigned variant holding v.
func AssignedID(v any) ID {
	return ID{state: Assigned, value: v}
}

// IDOf classifies a raw identifier value: nil and zero values are
// Unassigned, anything else is Assigned.
func IDOf(v any) ID {
	if v == nil {
		return NoID()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return NoID()
		}
		rv = rv.Elem()
	}
	if rv.IsZero() {
		return NoID()
	}
	return AssignedID(rv.Interface())
}

// KeyOf classifies an identifier passed as a lookup key. Unlike IDOf only
// nil is Unassigned: 0 and "" are valid keys for caller-assigned ids.
func KeyOf(v any) ID {
	if v == nil {
		return NoID()
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return NoID()
		}
		rv = rv.Elem()
	}
	return AssignedID(rv.Interface())
}

// State returns the variant tag.
func (id ID) State() IDState { return id.state }

// Value returns the identifier value; nil when Unassigned.
func (id ID) Value() any { return id.value }

func (id ID) String() string {
	if id.state == Unassigned {
		return "<unassigned>"
	}
	return fmt.Sprintf("%v", id.value)
}
