// Package testkit holds invariant checks shared by tests of several packages.
package testkit

import (
	"fmt"

	"typeforge/internal/deduce"
	"typeforge/internal/types"
)

// CheckResult verifies the structural invariants of a deduction result for
// sig:
// 1) a success binds every declared parameter with an argument of the
// matching kind, in key order, and returns a non-dependent type
// 2) a failure carries no return type and no inherited attributes
// 3) the offending index is in range for the failure kind
func CheckResult(in *types.Interner, sig *deduce.Signature, r deduce.Result) error {
	if in == nil || sig == nil {
		return fmt.Errorf("nil interner or signature")
	}
	if r.Kind == deduce.Success {
		return checkSuccess(in, sig, r)
	}
	if !r.Return.IsNull() {
		return fmt.Errorf("%s result has return type %s", r.Kind, types.LabelQual(in, r.Return, nil))
	}
	if len(r.Attrs) != 0 {
		return fmt.Errorf("%s result has inherited attributes", r.Kind)
	}
	switch r.Kind {
	case deduce.Incomplete:
		if r.ParamIndex == deduce.NoParam {
			if _, ok := sig.TemplateParam(r.Param); !ok {
				return fmt.Errorf("incomplete result names undeclared parameter %v", r.Param)
			}
		}
	case deduce.SubstitutionFailure:
		if r.ParamIndex == deduce.NoParam && r.Reason == "" {
			return fmt.Errorf("substitution failure without a reason")
		}
	case deduce.Inconsistent:
		if r.First.IsZero() || r.Second.IsZero() {
			return fmt.Errorf("inconsistent result without both deductions")
		}
		if r.First.Equal(r.Second) {
			return fmt.Errorf("inconsistent result with equal deductions %s", r.First.Format(in))
		}
		fallthrough
	case deduce.NonDeducedMismatch, deduce.TooManyArguments, deduce.TooFewArguments:
		if r.ParamIndex < 0 {
			return fmt.Errorf("%s result without an offending index", r.Kind)
		}
	default:
		return fmt.Errorf("unknown result kind %d", r.Kind)
	}
	return nil
}

func checkSuccess(in *types.Interner, sig *deduce.Signature, r deduce.Result) error {
	if r.ParamIndex != deduce.NoParam {
		return fmt.Errorf("success with offending index %d", r.ParamIndex)
	}
	if got, want := r.Subst.Len(), len(sig.TemplateParams); got != want {
		return fmt.Errorf("success binds %d of %d parameters", got, want)
	}
	for i, b := range r.Subst.Bindings {
		if i > 0 {
			prev := r.Subst.Bindings[i-1].Param
			if prev.Depth > b.Param.Depth || prev.Depth == b.Param.Depth && prev.Index >= b.Param.Index {
				return fmt.Errorf("bindings out of order at %d", i)
			}
		}
		tp, ok := sig.TemplateParam(b.Param)
		if !ok {
			return fmt.Errorf("binding for undeclared parameter %v", b.Param)
		}
		if err := checkArgKind(in, tp, b.Arg); err != nil {
			return fmt.Errorf("%s: %w", tp.Name, err)
		}
	}
	if sig.Result.IsNull() {
		return nil
	}
	if r.Return.IsNull() {
		return fmt.Errorf("success without a return type")
	}
	if in.IsDependent(r.Return.Type) {
		return fmt.Errorf("return type %s is still dependent", types.LabelQual(in, r.Return, nil))
	}
	return nil
}

func checkArgKind(in *types.Interner, tp deduce.TemplateParam, arg deduce.DeducedArg) error {
	if tp.Pack {
		if arg.Kind != deduce.ArgPack {
			return fmt.Errorf("pack bound to %s", arg.Format(in))
		}
		for _, el := range arg.Pack {
			elem := tp
			elem.Pack = false
			if err := checkArgKind(in, elem, el); err != nil {
				return err
			}
		}
		return nil
	}
	var want deduce.ArgKind
	switch tp.Kind {
	case deduce.ParamType:
		want = deduce.ArgType
	case deduce.ParamNonType:
		want = deduce.ArgValue
	case deduce.ParamTemplate:
		want = deduce.ArgTemplate
	}
	if arg.Kind != want {
		return fmt.Errorf("bound to %s of the wrong kind", arg.Format(in))
	}
	if want == deduce.ArgType && in.IsDependent(arg.Type.Type) {
		return fmt.Errorf("bound to dependent type %s", arg.Format(in))
	}
	return nil
}
