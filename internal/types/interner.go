package types

import (
	"errors"
	"fmt"
	"sync"

	"fortio.org/safecast"

	"typeforge/internal/trace"
)

// ErrUnknownTypeID reports a TypeID that was never issued by the interner.
var ErrUnknownTypeID = errors.New("types: unknown TypeID")

// Builtins stores TypeIDs for common primitive types.
type Builtins struct {
	Invalid TypeID
	Void    TypeID
	Bool    TypeID
	Char    TypeID
	Int     TypeID
	Long    TypeID
	Float   TypeID
	Double  TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
//
// It is safe for concurrent use. Interning is serialized through a single
// writer lock; lookups take the read lock only.
type Interner struct {
	mu       sync.RWMutex
	types    []Type
	dep      []bool
	index    map[typeKey]TypeID
	fns      []FnInfo
	fnIndex  map[string]uint32
	recs     []RecordInfo
	recIndex map[string]uint32
	builtins Builtins
	tracer   trace.Tracer
}

// NewInterner constructs an interner seeded with built-in primitives.
func NewInterner() *Interner {
	in := &Interner{
		index:    make(map[typeKey]TypeID, 64),
		fnIndex:  make(map[string]uint32, 16),
		recIndex: make(map[string]uint32, 16),
		tracer:   trace.Nop,
	}
	in.fns = append(in.fns, FnInfo{})       // reserve 0 as invalid sentinel
	in.recs = append(in.recs, RecordInfo{}) // reserve 0 as invalid sentinel
	in.builtins.Invalid = in.internRaw(Type{Kind: KindInvalid})
	in.builtins.Void = in.Intern(MakePrimitive("void"))
	in.builtins.Bool = in.Intern(MakePrimitive("bool"))
	in.builtins.Char = in.Intern(MakePrimitive("char"))
	in.builtins.Int = in.Intern(MakePrimitive("int"))
	in.builtins.Long = in.Intern(MakePrimitive("long"))
	in.builtins.Float = in.Intern(MakePrimitive("float"))
	in.builtins.Double = in.Intern(MakePrimitive("double"))
	return in
}

// SetTracer routes node-creation events to t. A nil tracer disables them.
func (in *Interner) SetTracer(t trace.Tracer) {
	if t == nil {
		t = trace.Nop
	}
	in.mu.Lock()
	in.tracer = t
	in.mu.Unlock()
}

// Builtins returns TypeIDs for primitive types.
func (in *Interner) Builtins() Builtins {
	return in.builtins
}

// Intern ensures the provided descriptor has a stable TypeID.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	key := typeKey(t)
	in.mu.RLock()
	id, ok := in.index[key]
	in.mu.RUnlock()
	if ok {
		return id
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	return in.internLocked(t)
}

// internLocked returns the existing ID for t or allocates a new one.
// Callers hold the write lock.
func (in *Interner) internLocked(t Type) TypeID {
	// another writer may have won the race between the two locks
	if id, ok := in.index[typeKey(t)]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage. Callers hold the write lock
// (or own the interner exclusively during construction).
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	in.dep = append(in.dep, in.computeDependent(t))
	in.index[typeKey(t)] = id
	if in.tracer != nil && in.tracer.Level() >= trace.LevelDebug {
		trace.Point(in.tracer, trace.ScopeNode, "intern", fmt.Sprintf("#%d %s", id, t.Kind))
	}
	return id
}

func (in *Interner) computeDependent(t Type) bool {
	switch t.Kind {
	case KindTemplateParam, KindDependent:
		return true
	case KindPointer, KindReference:
		return in.depOf(t.Elem)
	case KindArray:
		return t.Bound != NoTypeID || in.depOf(t.Elem)
	case KindFunction:
		if int(t.Payload) >= len(in.fns) {
			return false
		}
		info := in.fns[t.Payload]
		if in.depOf(info.Result) {
			return true
		}
		for _, p := range info.Params {
			if in.depOf(p) {
				return true
			}
		}
	case KindRecord:
		if int(t.Payload) >= len(in.recs) {
			return false
		}
		info := in.recs[t.Payload]
		if info.Template != NoTypeID {
			return true
		}
		for _, a := range info.Args {
			if in.depOf(a) {
				return true
			}
		}
		for _, f := range info.Fields {
			if in.depOf(f.Type) {
				return true
			}
		}
	}
	return false
}

func (in *Interner) depOf(id TypeID) bool {
	return id != NoTypeID && int(id) < len(in.dep) && in.dep[id]
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid. A failure here means a collaborator
// fabricated a TypeID instead of interning it.
func (in *Interner) MustLookup(id TypeID) Type {
	tt, ok := in.Lookup(id)
	if !ok {
		panic(fmt.Errorf("%w: %d", ErrUnknownTypeID, id))
	}
	return tt
}

// IsDependent reports whether the type mentions a template parameter.
func (in *Interner) IsDependent(id TypeID) bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.depOf(id)
}

// IsSameType reports structural equality. Interning makes this an ID comparison.
func (in *Interner) IsSameType(a, b TypeID) bool {
	return a == b
}

// Len reports the number of issued TypeIDs including the invalid sentinel.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.types)
}

// Primitive interns a primitive type by name.
func (in *Interner) Primitive(name string) TypeID {
	return in.Intern(MakePrimitive(name))
}

// Pointer interns *elem.
func (in *Interner) Pointer(elem TypeID) TypeID {
	return in.Intern(MakePointer(elem))
}

// Reference interns elem&.
func (in *Interner) Reference(elem TypeID) TypeID {
	return in.Intern(MakeReference(elem))
}

// PointerTo interns a pointer to a qualified pointee.
func (in *Interner) PointerTo(elem QualType) TypeID {
	return in.Intern(MakePointerTo(elem))
}

// ReferenceTo interns a reference to a qualified referent.
func (in *Interner) ReferenceTo(elem QualType) TypeID {
	return in.Intern(MakeReferenceTo(elem))
}

// ArrayOf interns an array of qualified elements.
func (in *Interner) ArrayOf(elem QualType, count uint32) TypeID {
	t := MakeArray(elem.Type, count)
	t.ElemQuals = elem.Quals.Canonical()
	return in.Intern(t)
}

// Array interns elem[count].
func (in *Interner) Array(elem TypeID, count uint32) TypeID {
	return in.Intern(MakeArray(elem, count))
}

// TemplateParam interns the placeholder type for (depth, index).
func (in *Interner) TemplateParam(depth, index uint32) TypeID {
	return in.Intern(MakeTemplateParam(depth, index))
}

type typeKey struct {
	Kind      Kind
	Name      string
	Elem      TypeID
	ElemQuals Qualifiers
	Bound     TypeID
	Count     uint32
	Depth     uint32
	Payload   uint32
}
