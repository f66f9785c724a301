package entity

import (
	"fmt"
)

// Record is a map-backed entity instance keyed by attribute name. It is the
// instance type for descriptors declared in CUE, which have no Go struct.
type Record map[string]any

// RecordMapper maps Record instances for a descriptor.
type RecordMapper struct {
	desc *Descriptor
}

// NewRecordMapper returns a mapper for map-backed instances of desc.
func NewRecordMapper(desc *Descriptor) *RecordMapper {
	return &RecordMapper{desc: desc}
}

// Descriptor implements Mapper.
func (m *RecordMapper) Descriptor() *Descriptor { return m.desc }

// New implements Mapper.
func (m *RecordMapper) New() *Record {
	r := make(Record, len(m.desc.Fields)+1)
	return &r
}

// ID implements Mapper.
func (m *RecordMapper) ID(v *Record) ID {
	if v == nil {
		return NoID()
	}
	return IDOf((*v)[m.desc.ID.Attr])
}

// SetID implements Mapper.
func (m *RecordMapper) SetID(v *Record, id any) error {
	if *v == nil {
		*v = make(Record)
	}
	if b, ok := id.([]byte); ok {
		id = string(b)
	}
	(*v)[m.desc.ID.Attr] = id
	return nil
}

// Values implements Mapper. Attributes missing from the record are NULL.
func (m *RecordMapper) Values(v *Record) (map[string]any, error) {
	values := make(map[string]any, len(m.desc.Fields)+1)
	for _, f := range m.desc.Columns() {
		dv, err := DriverValue((*v)[f.Attr])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", m.desc.Name, f.Attr, err)
		}
		values[f.Attr] = dv
	}
	return values, nil
}

// Scan implements Mapper.
func (m *RecordMapper) Scan(v *Record, attrs []string, scan func(dest ...any) error) error {
	raw := make([]any, len(attrs))
	dest := make([]any, len(attrs))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := scan(dest...); err != nil {
		return err
	}

	if *v == nil {
		*v = make(Record, len(attrs))
	}
	for i, attr := range attrs {
		val := raw[i]
		if b, ok := val.([]byte); ok {
			if f, found := m.desc.Field(attr); !found || f.Kind != KindBytes {
				val = string(b)
			}
		}
		(*v)[attr] = val
	}
	return nil
}
