package types

import (
	"strconv"
	"strings"
)

// Qualifiers is the bit set of qualifiers attached to a TypeID.
//
// Layout: bits 0-2 hold const/volatile/restrict, bits 8-15 the address space
// tag and bits 16-18 the lifetime tag. Qualifiers never create TypeNodes; they
// live beside the TypeID in a QualType.
type Qualifiers uint32

const (
	QualConst Qualifiers = 1 << iota
	QualVolatile
	QualRestrict
)

const (
	QualNone Qualifiers = 0
	QualCV              = QualConst | QualVolatile

	qualCVRMask       Qualifiers = QualConst | QualVolatile | QualRestrict
	addrSpaceShift               = 8
	qualAddrSpaceMask Qualifiers = 0xff << addrSpaceShift
	lifetimeShift                = 16
	qualLifetimeMask  Qualifiers = 0x7 << lifetimeShift
	qualValidMask                = qualCVRMask | qualAddrSpaceMask | qualLifetimeMask
)

// Lifetime tags for managed pointers.
type Lifetime uint8

const (
	LifetimeNone Lifetime = iota
	LifetimeExplicitNone
	LifetimeStrong
	LifetimeWeak
	LifetimeAutoreleasing
)

func (l Lifetime) String() string {
	switch l {
	case LifetimeExplicitNone:
		return "__unsafe_unretained"
	case LifetimeStrong:
		return "__strong"
	case LifetimeWeak:
		return "__weak"
	case LifetimeAutoreleasing:
		return "__autoreleasing"
	default:
		return ""
	}
}

// AddressSpaceQual returns the qualifier bits for address space n.
func AddressSpaceQual(n uint8) Qualifiers {
	return Qualifiers(n) << addrSpaceShift
}

// LifetimeQual returns the qualifier bits for lifetime l.
func LifetimeQual(l Lifetime) Qualifiers {
	return (Qualifiers(l) << lifetimeShift) & qualLifetimeMask
}

// Has reports whether all bits of o are present in q.
func (q Qualifiers) Has(o Qualifiers) bool {
	return q&o == o
}

// Union combines two qualifier sets. It is commutative and idempotent.
func (q Qualifiers) Union(o Qualifiers) Qualifiers {
	return q | o
}

// Without removes the bits of o from q.
func (q Qualifiers) Without(o Qualifiers) Qualifiers {
	return q &^ o
}

// Deduce returns what is left of argument qualifiers q once a parameter
// with qualifiers p has matched them. The cvr bits are removed as a set.
// The address space and lifetime are tags: a tag p names must equal the tag
// of q and is consumed; a tag p leaves unset is kept. ok is false on a tag
// mismatch.
func (q Qualifiers) Deduce(p Qualifiers) (rest Qualifiers, ok bool) {
	rest = q.CVR().Without(p.CVR())
	for _, mask := range [...]Qualifiers{qualAddrSpaceMask, qualLifetimeMask} {
		want, have := p&mask, q&mask
		switch {
		case want == 0:
			rest |= have
		case want != have:
			return QualNone, false
		}
	}
	return rest, true
}

// CVR returns only the const/volatile/restrict bits.
func (q Qualifiers) CVR() Qualifiers {
	return q & qualCVRMask
}

// AddressSpace returns the address space tag.
func (q Qualifiers) AddressSpace() uint8 {
	return uint8((q & qualAddrSpaceMask) >> addrSpaceShift)
}

// Lifetime returns the lifetime tag.
func (q Qualifiers) Lifetime() Lifetime {
	return Lifetime((q & qualLifetimeMask) >> lifetimeShift)
}

// Canonical drops bits outside the defined layout.
func (q Qualifiers) Canonical() Qualifiers {
	return q & qualValidMask
}

func (q Qualifiers) String() string {
	parts := make([]string, 0, 5)
	if q.Has(QualConst) {
		parts = append(parts, "const")
	}
	if q.Has(QualVolatile) {
		parts = append(parts, "volatile")
	}
	if q.Has(QualRestrict) {
		parts = append(parts, "restrict")
	}
	if as := q.AddressSpace(); as != 0 {
		parts = append(parts, "__attribute__((address_space("+strconv.FormatUint(uint64(as), 10)+")))")
	}
	if lt := q.Lifetime(); lt != LifetimeNone {
		parts = append(parts, lt.String())
	}
	return strings.Join(parts, " ")
}

// QualType is a TypeID together with its qualifiers. It is a small value type
// and compares with ==.
type QualType struct {
	Type  TypeID
	Quals Qualifiers
}

// Unqualified wraps id without qualifiers.
func Unqualified(id TypeID) QualType {
	return QualType{Type: id}
}

// AddQualifiers returns q with extra qualifiers merged in.
func AddQualifiers(q QualType, extra Qualifiers) QualType {
	return QualType{Type: q.Type, Quals: q.Quals.Union(extra)}
}

// StripQualifiers returns the underlying TypeID.
func StripQualifiers(q QualType) TypeID {
	return q.Type
}

// IsNull reports whether q carries no type.
func (q QualType) IsNull() bool {
	return q.Type == NoTypeID
}

// Canonical normalizes the qualifiers of q. Besides dropping undefined bits,
// cv-qualifiers on references and function types are discarded since they
// have no meaning there.
func (in *Interner) Canonical(q QualType) QualType {
	quals := q.Quals.Canonical()
	if tt, ok := in.Lookup(q.Type); ok {
		switch tt.Kind {
		case KindReference, KindFunction:
			quals = quals.Without(qualCVRMask)
		}
	}
	return QualType{Type: q.Type, Quals: quals}
}
