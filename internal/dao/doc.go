// Package dao provides a generic data access object over registered
// entities.
//
// A DAO[T] binds an entity.Mapper[T] to a store and a registry. Reads take a
// query.Builder, which is compiled to parameterized SQL by querysql and run
// through the store:
//
//	people, err := dao.New[Person](st, reg, personMapper)
//	adults, err := people.List(ctx, query.New().
//	    Where(restriction.Ge("age", 18)).
//	    OrderBy("name"))
//
// # Persistence
//
// Writes dispatch on identifier state (entity.ID):
//
//	Save          unassigned → insert, identifier assigned afterwards
//	Update        assigned   → update, *NotFoundError when no row
//	SaveOrUpdate  insert or in-place update
//	SaveOrMerge   insert or Merge
//	Merge         update or insert-with-id; returns the reloaded row
//	Delete/Remove delete by id / by instance; *DeleteError on failure
//
// # Audit
//
// With a recorder configured (WithRecorder) and the audit policy on (the
// default), each successful write is mirrored as an audit.Entry through the
// same context. Inside store.WithTx a failing recorder aborts the whole unit
// of work; without an ambient transaction the write has already committed,
// so the failure is logged at Warn and not returned.
//
// Operations open an OpenTelemetry span each and log compiled SQL at Debug.
package dao
