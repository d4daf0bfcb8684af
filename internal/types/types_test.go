package types

import "testing"

func TestScalarSizes(t *testing.T) {
	reg := NewRegistry()
	cases := []struct {
		ty   *Type
		size int
	}{
		{Prim(Char), 1},
		{Prim(UnsignedChar), 1},
		{Prim(Short), 2},
		{Prim(Int), 4},
		{Prim(UnsignedInt), 4},
		{Prim(Float), 4},
		{Prim(Long), 8},
		{Prim(LongLong), 8},
		{Prim(Double), 8},
		{NewPointer(Prim(Int)), 8},
		{NewFunctionPointer(Prim(Int), nil), 8},
		{NewArray(Prim(Int), 5), 20},
		{NewArray(NewPointer(Prim(Char)), 3), 24},
	}
	for _, c := range cases {
		if got := Size(c.ty, reg); got != c.size {
			t.Errorf("Size(%s) = %d, want %d", c.ty, got, c.size)
		}
	}
}

func TestArrayAlignmentFollowsElement(t *testing.T) {
	reg := NewRegistry()
	if got := Align(NewArray(Prim(Int), 7), reg); got != 4 {
		t.Errorf("int[7] align = %d, want 4", got)
	}
	if got := Align(NewArray(Prim(Char), 16), reg); got != 1 {
		t.Errorf("char[16] align = %d, want 1", got)
	}
}

func TestStructLayoutPadsFields(t *testing.T) {
	reg := NewRegistry()
	// struct { char c; int x; char d; } -> c@0, x@4, d@8, size 12 align 4.
	layout := LayoutStruct("s",
		[]string{"c", "x", "d"},
		[]*Type{Prim(Char), Prim(Int), Prim(Char)},
		false, reg)
	wantOffsets := []int{0, 4, 8}
	for i, f := range layout.Fields {
		if f.Offset != wantOffsets[i] {
			t.Errorf("field %s offset = %d, want %d", f.Name, f.Offset, wantOffsets[i])
		}
	}
	if layout.Size != 12 {
		t.Errorf("size = %d, want 12", layout.Size)
	}
	if layout.Align != 4 {
		t.Errorf("align = %d, want 4", layout.Align)
	}
}

func TestPackedStructHasNoPadding(t *testing.T) {
	reg := NewRegistry()
	layout := LayoutStruct("p",
		[]string{"c", "x"},
		[]*Type{Prim(Char), Prim(Int)},
		true, reg)
	if layout.Fields[1].Offset != 1 {
		t.Errorf("packed field offset = %d, want 1", layout.Fields[1].Offset)
	}
	if layout.Size != 5 {
		t.Errorf("packed size = %d, want 5", layout.Size)
	}
}

func TestNestedStructSize(t *testing.T) {
	reg := NewRegistry()
	inner := LayoutStruct("inner", []string{"x", "y"}, []*Type{Prim(Int), Prim(Int)}, false, reg)
	reg.DefineStruct(inner)
	outer := LayoutStruct("outer",
		[]string{"c", "in"},
		[]*Type{Prim(Char), NewStructRef("inner")},
		false, reg)
	if outer.Fields[1].Offset != 4 {
		t.Errorf("nested struct offset = %d, want 4", outer.Fields[1].Offset)
	}
	if outer.Size != 12 {
		t.Errorf("outer size = %d, want 12", outer.Size)
	}
}

func TestUnionSizeIsMaxField(t *testing.T) {
	reg := NewRegistry()
	layout := LayoutUnion("u",
		[]string{"c", "d", "x"},
		[]*Type{Prim(Char), Prim(Double), Prim(Int)},
		reg)
	if layout.Size != 8 {
		t.Errorf("union size = %d, want 8", layout.Size)
	}
	if layout.Align != 8 {
		t.Errorf("union align = %d, want 8", layout.Align)
	}
	for _, f := range layout.Fields {
		if f.Offset != 0 {
			t.Errorf("union field %s offset = %d, want 0", f.Name, f.Offset)
		}
	}
}

func TestTypedefResolvesThroughRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.DefineTypedef("size_t", Prim(UnsignedLong))
	reg.DefineTypedef("my_size", NewTypedefRef("size_t"))

	td := NewTypedefRef("my_size")
	if got := Size(td, reg); got != 8 {
		t.Errorf("Size(my_size) = %d, want 8", got)
	}
	resolved := reg.Resolve(td)
	if resolved.Kind != UnsignedLong {
		t.Errorf("Resolve(my_size).Kind = %v, want UnsignedLong", resolved.Kind)
	}
}

func TestIsScalar(t *testing.T) {
	if !Prim(Int).IsScalar() || !Prim(Double).IsScalar() || !NewPointer(Prim(Int)).IsScalar() {
		t.Error("int/double/pointer should be scalar")
	}
	if NewArray(Prim(Int), 4).IsScalar() || NewStructRef("s").IsScalar() || Prim(Void).IsScalar() {
		t.Error("array/struct/void should not be scalar")
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want int }{
		{0, 16, 0},
		{1, 16, 16},
		{16, 16, 16},
		{17, 16, 32},
		{24, 8, 24},
		{5, 1, 5},
		{5, 0, 5},
	}
	for _, c := range cases {
		if got := AlignUp(c.n, c.align); got != c.want {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c.n, c.align, got, c.want)
		}
	}
}
