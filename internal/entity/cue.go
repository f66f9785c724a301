package entity

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// CompileError reports an invalid entity declaration with its CUE position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileCUE compiles entity declarations from CUE source.
//
//	entity: Person: {
//		table: "person"
//		id: {column: "id", strategy: "auto"}
//		fields: {
//			name:    "string"
//			age:     "int"
//			address: {ref: "Address"}
//		}
//		collections: orders: {target: "Order", mappedBy: "person_id"}
//	}
func CompileCUE(src, filename string) ([]*Descriptor, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileEntities(v)
}

// LoadCUE loads the CUE package in dir and compiles its entity declarations.
func LoadCUE(dir string) ([]*Descriptor, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("entities directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("entities directory: %s is not a directory", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("loading %s: no CUE instances", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return compileEntities(v)
}

func compileEntities(v cue.Value) ([]*Descriptor, error) {
	entities := v.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entity declarations found", Pos: v.Pos()}
	}

	iter, err := entities.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var descs []*Descriptor
	for iter.Next() {
		d, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		descs = append(descs, d)
	}
	return descs, nil
}

// CompileEntity parses one entity struct. The entity name is the struct label.
func CompileEntity(v cue.Value) (*Descriptor, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	d := &Descriptor{}
	if labels := v.Path().Selectors(); len(labels) > 0 {
		d.Name = labels[len(labels)-1].String()
	}

	table, err := optionalString(v, "table")
	if err != nil {
		return nil, err
	}
	if table == "" {
		return nil, &CompileError{Field: "table", Message: "table is required", Pos: v.Pos()}
	}
	d.Table = table

	if err := parseID(v, d); err != nil {
		return nil, err
	}
	if err := parseFields(v, d); err != nil {
		return nil, err
	}
	if err := parseCollections(v, d); err != nil {
		return nil, err
	}

	if err := d.validate(); err != nil {
		return nil, &CompileError{Field: "entity", Message: err.Error(), Pos: v.Pos()}
	}
	return d, nil
}

func parseID(v cue.Value, d *Descriptor) error {
	d.ID = Field{Attr: "id", Column: "id", Kind: KindInt}
	d.Strategy = StrategyAuto

	idVal := v.LookupPath(cue.ParsePath("id"))
	if !idVal.Exists() {
		return nil
	}

	// shorthand: id: "person_id"
	if col, err := idVal.String(); err == nil {
		d.ID.Column = col
		return nil
	}

	attr, err := optionalString(idVal, "attr")
	if err != nil {
		return err
	}
	if attr != "" {
		d.ID.Attr = attr
		d.ID.Column = attr
	}
	col, err := optionalString(idVal, "column")
	if err != nil {
		return err
	}
	if col != "" {
		d.ID.Column = col
	}
	strategy, err := optionalString(idVal, "strategy")
	if err != nil {
		return err
	}
	if strategy != "" {
		d.Strategy = Strategy(strategy)
		if !d.Strategy.Valid() {
			return &CompileError{Field: "id.strategy", Message: fmt.Sprintf("unknown strategy %q", strategy), Pos: idVal.Pos()}
		}
	}
	if d.Strategy == StrategyUUID {
		d.ID.Kind = KindString
	}
	kind, err := optionalString(idVal, "kind")
	if err != nil {
		return err
	}
	if kind != "" {
		if !validKind(Kind(kind)) {
			return &CompileError{Field: "id.kind", Message: fmt.Sprintf("unknown kind %q", kind), Pos: idVal.Pos()}
		}
		d.ID.Kind = Kind(kind)
	}
	return nil
}

func parseFields(v cue.Value, d *Descriptor) error {
	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		attr := iter.Selector().String()
		fv := iter.Value()
		f := Field{Attr: attr, Column: attr, Kind: KindAny}

		if kind, err := fv.String(); err == nil {
			f.Kind = Kind(kind)
		} else {
			if f.Ref, err = optionalString(fv, "ref"); err != nil {
				return err
			}
			if f.Ref != "" {
				f.Column = attr + "_id"
			}
			col, err := optionalString(fv, "column")
			if err != nil {
				return err
			}
			if col != "" {
				f.Column = col
			}
			kind, err := optionalString(fv, "kind")
			if err != nil {
				return err
			}
			if kind != "" {
				f.Kind = Kind(kind)
			}
		}

		if !validKind(f.Kind) {
			return &CompileError{Field: "fields." + attr, Message: fmt.Sprintf("unknown kind %q", f.Kind), Pos: fv.Pos()}
		}
		d.Fields = append(d.Fields, f)
	}
	return nil
}

func parseCollections(v cue.Value, d *Descriptor) error {
	collVal := v.LookupPath(cue.ParsePath("collections"))
	if !collVal.Exists() {
		return nil
	}

	iter, err := collVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		cv := iter.Value()
		c := Collection{Attr: iter.Selector().String()}
		if c.Target, err = optionalString(cv, "target"); err != nil {
			return err
		}
		if c.MappedBy, err = optionalString(cv, "mappedBy"); err != nil {
			return err
		}
		if c.Target == "" || c.MappedBy == "" {
			return &CompileError{Field: "collections." + c.Attr, Message: "target and mappedBy are required", Pos: cv.Pos()}
		}
		d.Collections = append(d.Collections, c)
	}
	return nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, nil
}

func validKind(k Kind) bool {
	switch k {
	case KindString, KindInt, KindFloat, KindBool, KindTime, KindBytes, KindAny:
		return true
	}
	return false
}

// formatCUEError keeps the position of the first CUE error.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{Field: "cue", Message: first.Error(), Pos: positions[0]}
	}
	return err
}
