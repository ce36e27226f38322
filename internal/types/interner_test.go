package types

import (
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestInternerBuiltins(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	if b.Int == NoTypeID || b.Void == NoTypeID {
		t.Fatalf("builtins not initialized")
	}
	intType, _ := in.Lookup(b.Int)
	if intType.Kind != KindPrimitive || intType.Name != "int" {
		t.Fatalf("expected int primitive, got %+v", intType)
	}
	if in.Primitive("int") != b.Int {
		t.Fatalf("re-interning int must return the builtin id")
	}
}

func TestInternerDeduplicatesDescriptors(t *testing.T) {
	in := NewInterner()
	elem := in.Builtins().Char
	arr1 := in.Intern(MakeArray(elem, ArrayUnsized))
	arr2 := in.Intern(MakeArray(elem, ArrayUnsized))
	if arr1 != arr2 {
		t.Fatalf("array types should be deduplicated")
	}
	if in.Array(elem, 4) == arr1 {
		t.Fatalf("sized and unsized arrays must differ")
	}
	fn1 := in.RegisterFn([]TypeID{arr1}, elem, false)
	fn2 := in.RegisterFn([]TypeID{in.Intern(MakeArray(elem, ArrayUnsized))}, elem, false)
	if !in.IsSameType(fn1, fn2) || in.IsSameType(fn1, arr1) {
		t.Fatalf("structurally equal types must compare equal by id")
	}
}

func TestPointerAndReferenceDiffer(t *testing.T) {
	in := NewInterner()
	elem := in.Builtins().Int
	if in.Pointer(elem) == in.Reference(elem) {
		t.Fatalf("pointer and reference types must differ")
	}
}

func TestFunctionInterning(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	f1 := in.RegisterFn([]TypeID{b.Int, b.Float}, b.Void, false)
	f2 := in.RegisterFn([]TypeID{b.Int, b.Float}, b.Void, false)
	if f1 != f2 {
		t.Fatalf("function types should be deduplicated: %d vs %d", f1, f2)
	}
	if in.RegisterFn([]TypeID{b.Int, b.Float}, b.Void, true) == f1 {
		t.Fatalf("variadic flag must affect identity")
	}
	if in.RegisterFn([]TypeID{b.Float, b.Int}, b.Void, false) == f1 {
		t.Fatalf("parameter order must affect identity")
	}
	info, ok := in.FnInfo(f1)
	if !ok || len(info.Params) != 2 || info.Result != b.Void {
		t.Fatalf("unexpected fn info %+v", info)
	}
}

func TestFunctionParamsAreCopied(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	params := []TypeID{b.Int}
	fn := in.RegisterFn(params, b.Void, false)
	params[0] = b.Float
	info, _ := in.FnInfo(fn)
	if info.Params[0] != b.Int {
		t.Fatalf("interner must not alias caller slices")
	}
}

func TestRecordInterning(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	point := RecordInfo{Name: "Point", Fields: []Field{{Name: "x", Type: b.Int}, {Name: "y", Type: b.Int}}}
	r1 := in.RegisterRecord(point)
	r2 := in.RegisterRecord(point)
	if r1 != r2 {
		t.Fatalf("records should be deduplicated")
	}
	if ft, ok := in.FieldType(r1, "y"); !ok || ft != b.Int {
		t.Fatalf("expected field y:int, got %d %v", ft, ok)
	}
	if _, ok := in.FieldType(r1, "z"); ok {
		t.Fatalf("unexpected field z")
	}
	vecInt := in.RegisterRecord(RecordInfo{Name: "Vec", Args: []TypeID{b.Int}})
	vecFloat := in.RegisterRecord(RecordInfo{Name: "Vec", Args: []TypeID{b.Float}})
	if vecInt == vecFloat {
		t.Fatalf("specializations with different args must differ")
	}
}

func TestDependentBit(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	tp := in.TemplateParam(0, 0)
	ptr := in.Pointer(tp)
	fn := in.RegisterFn([]TypeID{b.Int, ptr}, b.Void, false)
	vec := in.RegisterRecord(RecordInfo{Name: "Vec", Args: []TypeID{tp}})
	member := in.Intern(MakeDependent(tp, "value_type"))
	for _, id := range []TypeID{tp, ptr, fn, vec, member} {
		if !in.IsDependent(id) {
			t.Fatalf("%s should be dependent", Label(in, id))
		}
	}
	concrete := in.RegisterFn([]TypeID{b.Int}, in.Pointer(b.Char), false)
	if in.IsDependent(concrete) || in.IsDependent(b.Int) {
		t.Fatalf("concrete types must not be dependent")
	}
	n := in.TemplateParam(0, 1)
	if !in.IsDependent(in.Intern(MakeDependentArray(b.Int, n))) {
		t.Fatalf("array with template bound should be dependent")
	}
}

func TestMustLookupPanicsOnForeignID(t *testing.T) {
	in := NewInterner()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for unknown id")
		}
	}()
	in.MustLookup(TypeID(in.Len() + 10))
}

func TestConcurrentInternReturnsSingleID(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := NewInterner()
	elem := in.Builtins().Int
	before := in.Len()

	const workers = 32
	ids := make([]TypeID, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ids[i] = in.Intern(MakePointer(elem))
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("worker %d got %d, worker 0 got %d", i, ids[i], ids[0])
		}
	}
	if got := in.Len() - before; got != 1 {
		t.Fatalf("expected exactly one new node, got %d", got)
	}
}

func TestConcurrentRegisterFn(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := NewInterner()
	b := in.Builtins()
	const workers = 16
	ids := make([]TypeID, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = in.RegisterFn([]TypeID{b.Int, b.Char}, b.Bool, false)
		}(i)
	}
	wg.Wait()
	for i := 1; i < workers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("function interned twice: %d vs %d", ids[i], ids[0])
		}
	}
}

func TestLabel(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	tp := in.TemplateParam(0, 0)
	fn := in.RegisterFn([]TypeID{in.Pointer(tp), in.Array(b.Int, 3)}, in.Reference(b.Char), true)
	got := Label(in, fn)
	want := "fn(type-parameter-0-0*, int[3], ...) -> char&"
	if got != want {
		t.Fatalf("label mismatch:\n got %q\nwant %q", got, want)
	}
	named := LabelQual(in, QualType{Type: in.Pointer(tp), Quals: QualConst}, func(d, i uint32) (string, bool) {
		return "T", d == 0 && i == 0
	})
	if named != "T* const" {
		t.Fatalf("unexpected qualified label %q", named)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	tp := in.TemplateParam(0, 0)
	vec := in.RegisterRecord(RecordInfo{Name: "Vec", Args: []TypeID{tp}, Fields: []Field{{Name: "data", Type: in.Pointer(tp)}}})
	fn := in.RegisterFn([]TypeID{vec, in.Reference(b.Int)}, tp, false)

	restored, err := FromSnapshot(in.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Len() != in.Len() {
		t.Fatalf("restored %d types, want %d", restored.Len(), in.Len())
	}
	if Label(restored, fn) != Label(in, fn) {
		t.Fatalf("restored fn label %q != %q", Label(restored, fn), Label(in, fn))
	}
	if restored.RegisterRecord(RecordInfo{Name: "Vec", Args: []TypeID{tp}, Fields: []Field{{Name: "data", Type: in.Pointer(tp)}}}) != vec {
		t.Fatalf("restored interner must keep record identity")
	}
}

func TestSnapshotRejectsForwardReference(t *testing.T) {
	in := NewInterner()
	snap := in.Snapshot()
	next := TypeID(len(snap.Types))
	snap.Types = append(snap.Types, MakePointer(next+1))
	if _, err := FromSnapshot(snap); err == nil {
		t.Fatalf("expected error for forward reference")
	}
}

func TestPointeeQualifiersAffectIdentity(t *testing.T) {
	in := NewInterner()
	b := in.Builtins()
	plain := in.Pointer(b.Int)
	toConst := in.PointerTo(QualType{Type: b.Int, Quals: QualConst})
	if plain == toConst {
		t.Fatalf("int* and const int* must differ")
	}
	if in.PointerTo(Unqualified(b.Int)) != plain {
		t.Fatalf("PointerTo with no qualifiers must match Pointer")
	}
	if got := Label(in, in.ReferenceTo(QualType{Type: b.Char, Quals: QualConst})); got != "const char&" {
		t.Fatalf("unexpected label %q", got)
	}
}
