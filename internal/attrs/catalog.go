// Package attrs is the closed catalog of declaration attributes.
//
// Every attribute is one Kind; what it may be applied to and how it behaves
// across redeclarations and instantiations is data in the catalog rather than
// a type hierarchy. Switches over Kind are checked for exhaustiveness by
// linters instead of relying on runtime classof-style tests.
package attrs

import (
	"slices"
	"strings"
)

// Kind identifies one attribute.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindAligned
	KindAlwaysInline
	KindConst
	KindDeprecated
	KindMSMultipleInheritance
	KindMSSingleInheritance
	KindMSVirtualInheritance
	KindNoDiscard
	KindNoInline
	KindNonNull
	KindNoReturn
	KindPacked
	KindPure
	KindUnused
	KindVisibility
	kindCount
)

// Target describes a set of declaration kinds an attribute may be applied to.
type Target uint8

const (
	TargetNone   Target = 0
	TargetFn     Target = 1 << iota // function templates and functions
	TargetRecord                    // record declarations
	TargetParam                     // function parameters
	TargetType                      // type positions
)

// Trait captures behavior beyond the applicability matrix.
type Trait uint8

const (
	TraitNone Trait = 0

	// TraitInheritable marks attributes that carry over to redeclarations
	// and template instantiations.
	TraitInheritable Trait = 1 << iota

	// TraitMSInheritance marks the Microsoft member-pointer inheritance model
	// attributes. At most one may be present on a record.
	TraitMSInheritance

	// TraitTakesArgs marks attributes spelled with an argument list.
	TraitTakesArgs
)

// Spec describes an attribute, its supported targets and traits.
type Spec struct {
	Kind    Kind
	Name    string
	Targets Target
	Traits  Trait
}

// Allows reports whether the attribute can be applied to the target.
func (s Spec) Allows(target Target) bool {
	return s.Targets&target != 0
}

// Has reports whether the spec carries the trait.
func (s Spec) Has(trait Trait) bool {
	return s.Traits&trait != 0
}

var catalog = [kindCount]Spec{
	KindAligned:               {Name: "aligned", Targets: TargetRecord | TargetParam, Traits: TraitInheritable | TraitTakesArgs},
	KindAlwaysInline:          {Name: "always_inline", Targets: TargetFn, Traits: TraitInheritable},
	KindConst:                 {Name: "const", Targets: TargetFn, Traits: TraitInheritable},
	KindDeprecated:            {Name: "deprecated", Targets: TargetFn | TargetRecord | TargetParam, Traits: TraitInheritable | TraitTakesArgs},
	KindMSMultipleInheritance: {Name: "__multiple_inheritance", Targets: TargetRecord, Traits: TraitInheritable | TraitMSInheritance},
	KindMSSingleInheritance:   {Name: "__single_inheritance", Targets: TargetRecord, Traits: TraitInheritable | TraitMSInheritance},
	KindMSVirtualInheritance:  {Name: "__virtual_inheritance", Targets: TargetRecord, Traits: TraitInheritable | TraitMSInheritance},
	KindNoDiscard:             {Name: "nodiscard", Targets: TargetFn | TargetRecord, Traits: TraitInheritable},
	KindNoInline:              {Name: "noinline", Targets: TargetFn, Traits: TraitInheritable},
	KindNonNull:               {Name: "nonnull", Targets: TargetFn | TargetParam, Traits: TraitInheritable | TraitTakesArgs},
	KindNoReturn:              {Name: "noreturn", Targets: TargetFn, Traits: TraitInheritable},
	KindPacked:                {Name: "packed", Targets: TargetRecord},
	KindPure:                  {Name: "pure", Targets: TargetFn, Traits: TraitInheritable},
	KindUnused:                {Name: "unused", Targets: TargetFn | TargetParam | TargetRecord},
	KindVisibility:            {Name: "visibility", Targets: TargetFn | TargetRecord, Traits: TraitTakesArgs},
}

var byName = func() map[string]Kind {
	m := make(map[string]Kind, kindCount)
	for k := KindInvalid + 1; k < kindCount; k++ {
		m[catalog[k].Name] = k
	}
	return m
}()

// Lookup returns the spec for a kind.
func Lookup(k Kind) (Spec, bool) {
	if k == KindInvalid || k >= kindCount {
		return Spec{}, false
	}
	spec := catalog[k]
	spec.Kind = k
	return spec, true
}

// LookupName resolves an attribute by spelling (case-insensitive).
// GNU-style __name__ spellings are accepted.
func LookupName(name string) (Spec, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Spec{}, false
	}
	if k, ok := byName[name]; ok {
		return Lookup(k)
	}
	if trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "__"), "__"); trimmed != name {
		if k, ok := byName[trimmed]; ok {
			return Lookup(k)
		}
	}
	return Spec{}, false
}

func (k Kind) String() string {
	if spec, ok := Lookup(k); ok {
		return spec.Name
	}
	return "invalid"
}

// Specs returns all attribute specs sorted by name.
func Specs() []Spec {
	specs := make([]Spec, 0, kindCount-1)
	for k := KindInvalid + 1; k < kindCount; k++ {
		spec, _ := Lookup(k)
		specs = append(specs, spec)
	}
	slices.SortFunc(specs, func(a, b Spec) int { return strings.Compare(a.Name, b.Name) })
	return specs
}
