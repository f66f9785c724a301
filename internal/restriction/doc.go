// Package restriction provides the predicate algebra used to filter entity
// queries.
//
// A Restriction is either a Condition (property, operator, operands) or a
// named Group of restrictions combined by AND or OR. Restriction is a sealed
// interface: only this package implements it, so compilers can switch over
// the two cases exhaustively:
//
//	switch r := r.(type) {
//	case Condition:
//	    // property op operands
//	case Group:
//	    // (m1 AND m2 ...) or (m1 OR m2 ...)
//	}
//
// A list of restrictions is implicitly AND-ed. There is no implicit OR; use
// Or to build one.
//
// ARITY:
//
// Every operator declares how many operands it takes:
//
//	is-null, is-not-null      none
//	eq, ne, gt, ge, lt, le    one
//	like, not-like, ilike     one (string pattern)
//	in, not-in                one or more
//	between                   exactly two (low, high)
//
// New checks arity when the condition is built. The helper constructors (Eq,
// In, Between, ...) never fail; whatever they produce is checked again by
// Validate when a query plan is built, so an empty In surfaces as an
// InvalidRestrictionError before anything reaches the store.
//
// Values are immutable once built. Getters return copies of operand slices.
package restriction
