// Package query turns caller filter shorthand into an immutable Plan.
//
// A Builder collects one filter form plus optional ordering, projection,
// target entity and pagination. Build validates everything against an
// entity registry and returns a Plan whose attribute paths are already
// resolved to aliased columns and LEFT JOINs, so SQL compilation needs no
// further lookups.
//
// FILTER PRECEDENCE:
//
// When more than one filter form is set on the same builder, exactly one
// wins and the others are ignored, never merged:
//
//	Where(list...)  >  Restriction(r)  >  Eq(property, value)  >  Match(map)
//
// ORDER:
//
// Without OrderBy the result order is the store's natural order, which is
// not stable across calls. Callers that page through results or compare
// them must pass an explicit order.
//
// Builders are single-use and not safe for concurrent use; they are cheap,
// so build a fresh one per call. Plans are immutable.
package query
