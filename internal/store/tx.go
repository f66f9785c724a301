package store

import (
	"context"
	"database/sql"
	"fmt"
)

type txKey struct{}

type txState struct {
	tx    *sql.Tx
	owner *Store
}

func (s *Store) txFrom(ctx context.Context) *sql.Tx {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok || st.owner != s {
		return nil
	}
	return st.tx
}

// InTx reports whether ctx carries a transaction of s.
func (s *Store) InTx(ctx context.Context) bool {
	return s.txFrom(ctx) != nil
}

// WithTx runs fn inside a transaction carried by the context it receives,
// then commits on success or rolls back on error/panic. Panics are rethrown.
// When ctx already carries a transaction of s, fn joins it and the outer
// call decides the outcome.
//
// Typical use:
//
//	err := st.WithTx(ctx, nil, func(ctx context.Context) error {
//	    if err := people.Save(ctx, p); err != nil {
//	        return err
//	    }
//	    return orders.Save(ctx, o)
//	})
func (s *Store) WithTx(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) (err error) {
	if s.InTx(ctx) {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit transaction: %w", cerr)
		}
	}()

	err = fn(context.WithValue(ctx, txKey{}, &txState{tx: tx, owner: s}))
	return err
}
