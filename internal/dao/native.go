package dao

import (
	"context"
	"fmt"

	"github.com/slmyyl/xpert-framework/internal/entity"
	"github.com/slmyyl/xpert-framework/internal/store"
)

// NativeQuery loads query text from the file system set with WithQueries.
func (d *DAO[T]) NativeQuery(path string) (*store.NativeQuery, error) {
	if d.queries == nil {
		return nil, &IllegalStateError{Entity: d.desc.Name, Operation: "native query", Message: "no query file system configured"}
	}
	return d.queries.Load(path)
}

// NativeList runs a native query and maps its columns onto T by column
// name. Every result column must be a column of the DAO's entity.
func (d *DAO[T]) NativeList(ctx context.Context, q *store.NativeQuery, args ...any) (_ []*T, err error) {
	ctx, span := d.startSpan(ctx, "dao.native_list", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	params, err := driverArgs(args)
	if err != nil {
		return nil, err
	}
	d.logSQL("dao native", d.desc, q.SQL, params)

	rows, err := d.st.Exec(ctx).QueryContext(ctx, q.SQL, params...)
	if err != nil {
		return nil, fmt.Errorf("native query %s: %w", q.Path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("native query %s: %w", q.Path, err)
	}
	attrs := make([]string, len(cols))
	for i, col := range cols {
		f, ok := d.desc.FieldByColumn(col)
		if !ok {
			return nil, fmt.Errorf("native query %s: column %q is not mapped on %s", q.Path, col, d.desc.Name)
		}
		attrs[i] = f.Attr
	}

	out := []*T{}
	for rows.Next() {
		v := d.mapper.New()
		if err := d.mapper.Scan(v, attrs, rows.Scan); err != nil {
			return nil, fmt.Errorf("native query %s: %w", q.Path, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("native query %s: %w", q.Path, err)
	}
	return out, d.recordQuery(ctx, d.desc, q.SQL)
}

// NativeTuples runs a native query and returns its rows as tuples.
func (d *DAO[T]) NativeTuples(ctx context.Context, q *store.NativeQuery, args ...any) (_ []Tuple, err error) {
	ctx, span := d.startSpan(ctx, "dao.native_tuples", d.desc)
	defer func() { recordAnyErrorAndEndSpan(err, span) }()

	params, err := driverArgs(args)
	if err != nil {
		return nil, err
	}
	d.logSQL("dao native", d.desc, q.SQL, params)

	rows, err := d.st.Exec(ctx).QueryContext(ctx, q.SQL, params...)
	if err != nil {
		return nil, fmt.Errorf("native query %s: %w", q.Path, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("native query %s: %w", q.Path, err)
	}
	kinds := make([]entity.Kind, len(cols))
	for i := range kinds {
		kinds[i] = entity.KindAny
	}
	out, err := scanTuples(rows, kinds)
	if err != nil {
		return nil, fmt.Errorf("native query %s: %w", q.Path, err)
	}
	return out, d.recordQuery(ctx, d.desc, q.SQL)
}

func driverArgs(args []any) ([]any, error) {
	out := make([]any, len(args))
	for i, a := range args {
		v, err := entity.DriverValue(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
