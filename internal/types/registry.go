package types

import "fmt"

// Field is one member of a struct or union layout.
type Field struct {
	Name   string
	Type   *Type
	Offset int // byte offset within the aggregate
}

// StructLayout is the resolved layout of a struct: field order, per-field
// alignment, and an optional `packed` attribute.
type StructLayout struct {
	Name   string
	Fields []Field
	Size   int
	Align  int
	Packed bool
}

// FieldByName returns the field with the given name, or nil.
func (s *StructLayout) FieldByName(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// UnionLayout is the resolved layout of a union: size = max field size.
type UnionLayout struct {
	Name   string
	Fields []Field
	Size   int
	Align  int
}

func (u *UnionLayout) FieldByName(name string) *Field {
	for i := range u.Fields {
		if u.Fields[i].Name == name {
			return &u.Fields[i]
		}
	}
	return nil
}

// Registry is the program-wide, write-once-at-ingest, read-only-thereafter
// table of structs, unions, and typedefs, keyed on C aggregate layouts.
type Registry struct {
	structs  map[string]*StructLayout
	unions   map[string]*UnionLayout
	typedefs map[string]*Type
}

func NewRegistry() *Registry {
	return &Registry{
		structs:  make(map[string]*StructLayout),
		unions:   make(map[string]*UnionLayout),
		typedefs: make(map[string]*Type),
	}
}

func (r *Registry) DefineStruct(layout *StructLayout) { r.structs[layout.Name] = layout }
func (r *Registry) DefineUnion(layout *UnionLayout)    { r.unions[layout.Name] = layout }
func (r *Registry) DefineTypedef(name string, t *Type) { r.typedefs[name] = t }

func (r *Registry) Struct(name string) (*StructLayout, bool) { s, ok := r.structs[name]; return s, ok }
func (r *Registry) Union(name string) (*UnionLayout, bool)    { u, ok := r.unions[name]; return u, ok }
func (r *Registry) Typedef(name string) (*Type, bool)         { t, ok := r.typedefs[name]; return t, ok }

func (r *Registry) MustStruct(name string) *StructLayout {
	s, ok := r.structs[name]
	if !ok {
		panic(fmt.Sprintf("types: unknown struct %q", name))
	}
	return s
}

func (r *Registry) MustUnion(name string) *UnionLayout {
	u, ok := r.unions[name]
	if !ok {
		panic(fmt.Sprintf("types: unknown union %q", name))
	}
	return u
}

func (r *Registry) MustTypedef(name string) *Type {
	t, ok := r.typedefs[name]
	if !ok {
		panic(fmt.Sprintf("types: unknown typedef %q", name))
	}
	return t
}

// Resolve follows Typedef indirection until it reaches a concrete type.
func (r *Registry) Resolve(t *Type) *Type {
	for t.Kind == Typedef {
		t = r.MustTypedef(t.Name)
	}
	return t
}

// LayoutStruct computes field offsets for a struct declaration, respecting
// field order, per-field alignment, and the `packed` attribute. fieldTypes is in declaration order.
func LayoutStruct(name string, fieldNames []string, fieldTypes []*Type, packed bool, reg *Registry) *StructLayout {
	layout := &StructLayout{Name: name, Packed: packed}
	offset := 0
	maxAlign := 1
	for i, ft := range fieldTypes {
		align := 1
		if !packed {
			align = Align(ft, reg)
		}
		if align > maxAlign {
			maxAlign = align
		}
		offset = AlignUp(offset, align)
		layout.Fields = append(layout.Fields, Field{Name: fieldNames[i], Type: ft, Offset: offset})
		offset += Size(ft, reg)
	}
	if !packed {
		offset = AlignUp(offset, maxAlign)
	}
	layout.Size = offset
	layout.Align = maxAlign
	return layout
}

// LayoutUnion computes a union layout: size = max(field sizes), alignment =
// max(field alignments).
func LayoutUnion(name string, fieldNames []string, fieldTypes []*Type, reg *Registry) *UnionLayout {
	layout := &UnionLayout{Name: name}
	size, align := 0, 1
	for i, ft := range fieldTypes {
		layout.Fields = append(layout.Fields, Field{Name: fieldNames[i], Type: ft, Offset: 0})
		if s := Size(ft, reg); s > size {
			size = s
		}
		if a := Align(ft, reg); a > align {
			align = a
		}
	}
	layout.Size = size
	layout.Align = align
	return layout
}
