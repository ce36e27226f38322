package types

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindPrimitive
	KindPointer
	KindReference
	KindArray
	KindFunction
	KindRecord
	KindTemplateParam
	KindDependent
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindPrimitive:
		return "primitive"
	case KindPointer:
		return "pointer"
	case KindReference:
		return "reference"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	case KindRecord:
		return "record"
	case KindTemplateParam:
		return "template-param"
	case KindDependent:
		return "dependent"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// ArrayUnsized marks arrays of unknown bound (T[]).
const ArrayUnsized = ^uint32(0)

// Type is a compact descriptor for any supported type.
//
// Children are referenced by TypeID, so two descriptors with equal fields
// describe the same structural type. Variable-length children (function
// parameters, record arguments and fields) live in side tables addressed by
// Payload and are deduplicated before the descriptor is interned.
type Type struct {
	Kind      Kind
	Name      string     // primitive name, dependent member name
	Elem      TypeID     // pointee, referent, array element, dependent base
	ElemQuals Qualifiers // qualifiers of Elem for pointers, references, arrays
	Bound     TypeID     // array bound template parameter (NonType)
	Count     uint32     // array length, template parameter index
	Depth     uint32     // template parameter depth
	Payload   uint32     // slot in fns/records
}

// Descriptor helpers ---------------------------------------------------------

// MakePrimitive describes a builtin scalar such as int or float.
func MakePrimitive(name string) Type {
	return Type{Kind: KindPrimitive, Name: name}
}

// MakePointer describes a pointer to elem.
func MakePointer(elem TypeID) Type {
	return Type{Kind: KindPointer, Elem: elem}
}

// MakeReference describes an lvalue reference to elem.
func MakeReference(elem TypeID) Type {
	return Type{Kind: KindReference, Elem: elem}
}

// MakePointerTo describes a pointer to a qualified pointee (const T*).
func MakePointerTo(elem QualType) Type {
	return Type{Kind: KindPointer, Elem: elem.Type, ElemQuals: elem.Quals.Canonical()}
}

// MakeReferenceTo describes a reference to a qualified referent (const T&).
func MakeReferenceTo(elem QualType) Type {
	return Type{Kind: KindReference, Elem: elem.Type, ElemQuals: elem.Quals.Canonical()}
}

// ElemType returns the qualified child of a pointer, reference or array.
func (t Type) ElemType() QualType {
	return QualType{Type: t.Elem, Quals: t.ElemQuals}
}

// MakeArray describes an array of elem. Use ArrayUnsized for T[].
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakeDependentArray describes T[N] where N is a non-type template parameter.
func MakeDependentArray(elem, bound TypeID) Type {
	return Type{Kind: KindArray, Elem: elem, Bound: bound}
}

// MakeTemplateParam describes the type-level placeholder for the template
// parameter at (depth, index).
func MakeTemplateParam(depth, index uint32) Type {
	return Type{Kind: KindTemplateParam, Depth: depth, Count: index}
}

// MakeDependent describes the nested name base::member.
func MakeDependent(base TypeID, member string) Type {
	return Type{Kind: KindDependent, Elem: base, Name: member}
}

// HasDependentBound reports whether an array descriptor is sized by a template parameter.
func (t Type) HasDependentBound() bool {
	return t.Kind == KindArray && t.Bound != NoTypeID
}

// ParamIndex returns the index of a template parameter descriptor.
func (t Type) ParamIndex() uint32 {
	return t.Count
}
