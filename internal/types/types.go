// Package types implements the C type model: sizes, alignments, and the
// struct/union layout rules the rest of the pipeline relies on. This is the
// leaves-first component of the core.
package types

import "fmt"

// Kind tags the variant a Type holds.
type Kind int

const (
	Void Kind = iota
	Char
	UnsignedChar
	Short
	UnsignedShort
	Int
	UnsignedInt
	Long
	UnsignedLong
	LongLong
	UnsignedLongLong
	Float
	Double
	Pointer
	Array
	Struct
	Union
	FunctionPointer
	Typedef
)

// Type is the tagged-variant C type (canonical sizes: int=4,
// long/pointer=8, double=8).
type Type struct {
	Kind Kind

	// Pointer, Array
	Elem *Type

	// Array
	Len int

	// Struct, Union, Typedef: name looked up in a Registry.
	Name string

	// FunctionPointer
	Return *Type
	Params []*Type
}

func Prim(k Kind) *Type { return &Type{Kind: k} }

func NewPointer(elem *Type) *Type { return &Type{Kind: Pointer, Elem: elem} }

func NewArray(elem *Type, length int) *Type { return &Type{Kind: Array, Elem: elem, Len: length} }

func NewStructRef(name string) *Type { return &Type{Kind: Struct, Name: name} }

func NewUnionRef(name string) *Type { return &Type{Kind: Union, Name: name} }

func NewTypedefRef(name string) *Type { return &Type{Kind: Typedef, Name: name} }

func NewFunctionPointer(ret *Type, params []*Type) *Type {
	return &Type{Kind: FunctionPointer, Return: ret, Params: params}
}

// IsScalar reports whether a type is promotable by mem2reg: int, float, or
// pointer.
func (t *Type) IsScalar() bool {
	switch t.Kind {
	case Char, UnsignedChar, Short, UnsignedShort, Int, UnsignedInt,
		Long, UnsignedLong, LongLong, UnsignedLongLong,
		Float, Double, Pointer:
		return true
	default:
		return false
	}
}

// IsFloat reports whether a type lives in the float/double family, which is
// allocated to xmm registers rather than the general-purpose set.
func (t *Type) IsFloat() bool {
	return t.Kind == Float || t.Kind == Double
}

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case Void:
		return "void"
	case Char:
		return "char"
	case UnsignedChar:
		return "unsigned char"
	case Short:
		return "short"
	case UnsignedShort:
		return "unsigned short"
	case Int:
		return "int"
	case UnsignedInt:
		return "unsigned int"
	case Long:
		return "long"
	case UnsignedLong:
		return "unsigned long"
	case LongLong:
		return "long long"
	case UnsignedLongLong:
		return "unsigned long long"
	case Float:
		return "float"
	case Double:
		return "double"
	case Pointer:
		return fmt.Sprintf("%s*", t.Elem)
	case Array:
		return fmt.Sprintf("%s[%d]", t.Elem, t.Len)
	case Struct:
		return fmt.Sprintf("struct %s", t.Name)
	case Union:
		return fmt.Sprintf("union %s", t.Name)
	case FunctionPointer:
		return fmt.Sprintf("%s(*)(...)", t.Return)
	case Typedef:
		return t.Name
	default:
		return "?"
	}
}

// Size returns the size in bytes of a type given a Registry to resolve
// struct/union/typedef names.
func Size(t *Type, reg *Registry) int {
	switch t.Kind {
	case Void:
		return 0
	case Char, UnsignedChar:
		return 1
	case Short, UnsignedShort:
		return 2
	case Int, UnsignedInt, Float:
		return 4
	case Long, UnsignedLong, LongLong, UnsignedLongLong, Double, Pointer, FunctionPointer:
		return 8
	case Array:
		return Size(t.Elem, reg) * t.Len
	case Struct:
		return reg.MustStruct(t.Name).Size
	case Union:
		return reg.MustUnion(t.Name).Size
	case Typedef:
		return Size(reg.MustTypedef(t.Name), reg)
	default:
		return 0
	}
}

// Align returns the alignment requirement of a type.
func Align(t *Type, reg *Registry) int {
	switch t.Kind {
	case Array:
		return Align(t.Elem, reg)
	case Struct:
		return reg.MustStruct(t.Name).Align
	case Union:
		return reg.MustUnion(t.Name).Align
	case Typedef:
		return Align(reg.MustTypedef(t.Name), reg)
	default:
		return Size(t, reg)
	}
}

// AlignUp rounds n up to the next multiple of align, matching the rounding
// rule used throughout codegen for 16-byte stack-frame alignment.
func AlignUp(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}
