// Package entity is the mapping layer between Go values and relational rows.
//
// A Descriptor declares how one entity type is stored: its table, the single
// identifier attribute and its generation strategy, the plain columns, the
// to-one relations (foreign key columns) and the to-many collections. A
// Registry holds every descriptor of an application and resolves dotted
// attribute paths ("address.city") into the column they end at plus the
// to-one hops needed to reach it.
//
// Descriptors come from two places:
//   - Go structs, reflected once by Describe using `dao` struct tags
//   - CUE declarations, compiled by CompileCUE / LoadCUE for map-backed Records
//
// A Mapper moves values between an entity and database/sql: it reports the
// identifier state (ID), produces column values for writes and scans rows
// back into a fresh instance.
//
// Identifier state is an explicit variant, never an inferred nil:
//
//	switch id := m.ID(v); id.State() {
//	case entity.Unassigned:
//	    // insert
//	case entity.Assigned:
//	    // update / merge
//	}
//
// Ref[T] carries the same idea for relations: Unloaded(id) until resolved,
// Loaded(value) afterwards.
package entity
