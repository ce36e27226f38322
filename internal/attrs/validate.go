package attrs

import "fmt"

// Validate checks that every attribute in list may appear on target and that
// no two Microsoft inheritance-model attributes are combined.
func Validate(list []Kind, target Target) error {
	var model Kind
	seen := make(map[Kind]struct{}, len(list))
	for _, k := range list {
		spec, ok := Lookup(k)
		if !ok {
			return fmt.Errorf("unknown attribute kind %d", k)
		}
		if !spec.Allows(target) {
			return fmt.Errorf("attribute %q does not apply here", spec.Name)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if spec.Has(TraitMSInheritance) {
			if model != KindInvalid {
				return fmt.Errorf("attribute %q conflicts with %q", spec.Name, model)
			}
			model = k
		}
	}
	return nil
}

// Inherited returns the attributes of list that carry over to an
// instantiation, in their original order and without duplicates.
func Inherited(list []Kind) []Kind {
	var out []Kind
	for _, k := range list {
		spec, ok := Lookup(k)
		if !ok || !spec.Has(TraitInheritable) {
			continue
		}
		dup := false
		for _, have := range out {
			if have == k {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}
