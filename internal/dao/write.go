package dao

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/slmyyl/xpert-framework/internal/audit"
	"github.com/slmyyl/xpert-framework/internal/entity"
)

// Save inserts v and assigns its identifier. Generated identifiers (auto,
// uuid) must be unassigned; assigned identifiers must be set by the caller.
func (d *DAO[T]) Save(ctx context.Context, v *T) (err error) {
	ctx, span := d.startSpan(ctx, "dao.save", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if v == nil {
		return &IllegalStateError{Entity: d.desc.Name, Operation: "save", Message: "nil entity"}
	}
	id := d.mapper.ID(v)
	switch d.desc.Strategy {
	case entity.StrategyAssigned:
		if id.State() == entity.Unassigned {
			return &IllegalStateError{Entity: d.desc.Name, Operation: "save", Message: "identifier must be assigned by the caller"}
		}
	default:
		if id.State() == entity.Assigned {
			return &IllegalStateError{Entity: d.desc.Name, Operation: "save", Message: fmt.Sprintf("identifier %v already assigned", id.Value())}
		}
	}

	values, err := d.mapper.Values(v)
	if err != nil {
		return err
	}
	if d.desc.Strategy == entity.StrategyUUID {
		u, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("save %s: generate id: %w", d.desc.Name, err)
		}
		values[d.desc.ID.Attr] = u.String()
	}

	newID, err := d.insert(ctx, values, d.desc.Strategy != entity.StrategyAuto)
	if err != nil {
		return err
	}
	values[d.desc.ID.Attr] = newID

	// v only receives its identifier once the row and its audit entry are in.
	if d.auditing() {
		err := d.record(ctx, audit.Entry{
			Entity:    d.desc.Name,
			EntityID:  formatID(newID),
			Operation: audit.OpInsert,
			After:     values,
		})
		if err != nil {
			return err
		}
	}
	return d.mapper.SetID(v, newID)
}

// Update writes every attribute of v over the stored row with the same
// identifier. *NotFoundError is returned when no row matches.
func (d *DAO[T]) Update(ctx context.Context, v *T) (err error) {
	ctx, span := d.startSpan(ctx, "dao.update", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if v == nil {
		return &IllegalStateError{Entity: d.desc.Name, Operation: "update", Message: "nil entity"}
	}
	id := d.mapper.ID(v)
	if id.State() == entity.Unassigned {
		return &IllegalStateError{Entity: d.desc.Name, Operation: "update", Message: "identifier is not assigned"}
	}
	values, err := d.mapper.Values(v)
	if err != nil {
		return err
	}

	var before map[string]any
	if d.auditing() {
		if before, err = d.snapshot(ctx, d.desc, id.Value()); err != nil {
			return err
		}
	}
	if err := d.update(ctx, values, id.Value()); err != nil {
		return err
	}

	if !d.auditing() {
		return nil
	}
	return d.record(ctx, audit.Entry{
		Entity:    d.desc.Name,
		EntityID:  formatID(id.Value()),
		Operation: audit.OpUpdate,
		Before:    before,
		After:     values,
	})
}

// SaveOrUpdate inserts v when its identifier is unassigned and updates it
// in place otherwise. Caller-assigned identifiers are always set, so for
// them the store decides: a missing row is inserted.
func (d *DAO[T]) SaveOrUpdate(ctx context.Context, v *T) error {
	if v == nil {
		return d.Save(ctx, v)
	}
	id := d.mapper.ID(v)
	if id.State() == entity.Unassigned {
		return d.Save(ctx, v)
	}
	if d.desc.Strategy == entity.StrategyAssigned {
		found, err := d.exists(ctx, d.desc, id.Value())
		if err != nil {
			return err
		}
		if !found {
			return d.Save(ctx, v)
		}
	}
	return d.Update(ctx, v)
}

// SaveOrMerge inserts v when its identifier is unassigned and merges it
// otherwise. The returned instance is v after a save, or the freshly
// loaded row after a merge.
func (d *DAO[T]) SaveOrMerge(ctx context.Context, v *T) (*T, error) {
	if v != nil && d.mapper.ID(v).State() == entity.Unassigned {
		if err := d.Save(ctx, v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return d.Merge(ctx, v)
}

// Merge reconciles the state of v into the store: the row with v's
// identifier is updated, or inserted with that identifier when missing
// (with a generated one when v has none). v itself is not modified; the
// freshly loaded instance is returned.
func (d *DAO[T]) Merge(ctx context.Context, v *T) (_ *T, err error) {
	ctx, span := d.startSpan(ctx, "dao.merge", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if v == nil {
		return nil, &IllegalStateError{Entity: d.desc.Name, Operation: "merge", Message: "nil entity"}
	}
	values, err := d.mapper.Values(v)
	if err != nil {
		return nil, err
	}
	id := d.mapper.ID(v)

	found := false
	if id.State() == entity.Assigned {
		if found, err = d.exists(ctx, d.desc, id.Value()); err != nil {
			return nil, err
		}
	}

	var before map[string]any
	var mergedID any
	if found {
		if d.auditing() {
			if before, err = d.snapshot(ctx, d.desc, id.Value()); err != nil {
				return nil, err
			}
		}
		if err := d.update(ctx, values, id.Value()); err != nil {
			return nil, err
		}
		mergedID = id.Value()
	} else {
		withID := id.State() == entity.Assigned
		if !withID {
			switch d.desc.Strategy {
			case entity.StrategyAssigned:
				return nil, &IllegalStateError{Entity: d.desc.Name, Operation: "merge", Message: "identifier must be assigned by the caller"}
			case entity.StrategyUUID:
				u, err := uuid.NewV7()
				if err != nil {
					return nil, fmt.Errorf("merge %s: generate id: %w", d.desc.Name, err)
				}
				values[d.desc.ID.Attr] = u.String()
				withID = true
			}
		}
		if mergedID, err = d.insert(ctx, values, withID); err != nil {
			return nil, err
		}
	}

	fresh, err := d.reload(ctx, mergedID)
	if err != nil {
		return nil, err
	}

	if !d.auditing() {
		return fresh, nil
	}
	after, err := d.mapper.Values(fresh)
	if err != nil {
		return nil, err
	}
	err = d.record(ctx, audit.Entry{
		Entity:    d.desc.Name,
		EntityID:  formatID(mergedID),
		Operation: audit.OpMerge,
		Before:    before,
		After:     after,
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// Delete removes the entity with identifier id. A missing row or a store
// failure is reported as *DeleteError.
func (d *DAO[T]) Delete(ctx context.Context, id any) error {
	return d.DeleteIn(ctx, d.desc, id)
}

// DeleteIn removes a row of another registered entity by identifier.
func (d *DAO[T]) DeleteIn(ctx context.Context, desc *entity.Descriptor, id any) (err error) {
	ctx, span := d.startSpan(ctx, "dao.delete", desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if registered, ok := d.reg.Lookup(desc.Name); !ok || registered != desc {
		return &IllegalStateError{Entity: desc.Name, Operation: "delete", Message: "entity is not registered"}
	}
	return d.delete(ctx, desc, entity.KeyOf(id), nil)
}

// Remove deletes exactly the row v was loaded from. The audit before-state
// is taken from v rather than re-read from the store.
func (d *DAO[T]) Remove(ctx context.Context, v *T) (err error) {
	ctx, span := d.startSpan(ctx, "dao.remove", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	if v == nil {
		return &IllegalStateError{Entity: d.desc.Name, Operation: "remove", Message: "nil entity"}
	}
	before, err := d.mapper.Values(v)
	if err != nil {
		return err
	}
	return d.delete(ctx, d.desc, d.mapper.ID(v), before)
}

func (d *DAO[T]) insert(ctx context.Context, values map[string]any, withID bool) (any, error) {
	stmt, params := d.compiler.Insert(d.desc, values, withID)
	d.logSQL("dao insert", d.desc, stmt, params)

	var newID any
	if err := d.st.Exec(ctx).QueryRowContext(ctx, stmt, params...).Scan(&newID); err != nil {
		return nil, fmt.Errorf("insert %s: %w", d.desc.Name, err)
	}
	if b, ok := newID.([]byte); ok {
		newID = string(b)
	}
	return newID, nil
}

func (d *DAO[T]) update(ctx context.Context, values map[string]any, id any) error {
	values[d.desc.ID.Attr] = id
	stmt, params := d.compiler.Update(d.desc, values)
	d.logSQL("dao update", d.desc, stmt, params)

	res, err := d.st.Exec(ctx).ExecContext(ctx, stmt, params...)
	if err != nil {
		return fmt.Errorf("update %s: %w", d.desc.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", d.desc.Name, err)
	}
	if n == 0 {
		return &NotFoundError{Entity: d.desc.Name, ID: id}
	}
	return nil
}

func (d *DAO[T]) reload(ctx context.Context, id any) (*T, error) {
	fresh, err := d.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, &NotFoundError{Entity: d.desc.Name, ID: id}
	}
	return fresh, nil
}

func (c *core) delete(ctx context.Context, desc *entity.Descriptor, id entity.ID, before map[string]any) error {
	if id.State() == entity.Unassigned {
		return &IllegalStateError{Entity: desc.Name, Operation: "delete", Message: "identifier is not assigned"}
	}
	idv, err := entity.DriverValue(id.Value())
	if err != nil {
		return &DeleteError{Entity: desc.Name, ID: id.Value(), Err: err}
	}

	if c.auditing() && before == nil {
		if before, err = c.snapshot(ctx, desc, idv); err != nil {
			return &DeleteError{Entity: desc.Name, ID: idv, Err: err}
		}
	}

	stmt, params := c.compiler.Delete(desc, idv)
	c.logSQL("dao delete", desc, stmt, params)

	res, err := c.st.Exec(ctx).ExecContext(ctx, stmt, params...)
	if err != nil {
		return &DeleteError{Entity: desc.Name, ID: idv, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &DeleteError{Entity: desc.Name, ID: idv, Err: err}
	}
	if n == 0 {
		return &DeleteError{Entity: desc.Name, ID: idv, Err: &NotFoundError{Entity: desc.Name, ID: idv}}
	}

	if !c.auditing() {
		return nil
	}
	return c.record(ctx, audit.Entry{
		Entity:    desc.Name,
		EntityID:  formatID(idv),
		Operation: audit.OpDelete,
		Before:    before,
	})
}
