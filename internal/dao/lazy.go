package dao

import (
	"context"

	"github.com/slmyyl/xpert-framework/internal/entity"
)

// GetInitialized returns the value behind ref, loading it through d when
// the ref is still Unloaded and marking it Loaded. A nil ref yields nil.
// Calling it again on the same ref does not touch the store.
func (d *DAO[T]) GetInitialized(ctx context.Context, ref *entity.Ref[T]) (_ *T, err error) {
	if ref == nil || ref.IsNil() {
		return nil, nil
	}
	if v, ok := ref.Get(); ok {
		return v, nil
	}

	ctx, span := d.startSpan(ctx, "dao.get_initialized", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	v, err := d.Find(ctx, ref.ID().Value())
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, &NotFoundError{Entity: d.desc.Name, ID: ref.ID().Value()}
	}
	ref.Resolve(v)
	return v, nil
}
