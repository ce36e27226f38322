package deduce

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"typeforge/internal/attrs"
	"typeforge/internal/types"
)

// ArgKind tells which field of a DeducedArg is meaningful.
type ArgKind uint8

const (
	ArgNone ArgKind = iota
	ArgType
	ArgValue
	ArgTemplate
	ArgPack
)

// DeducedArg is the value bound to one template parameter.
type DeducedArg struct {
	Kind     ArgKind
	Type     types.QualType
	Value    int64
	Template string
	Pack     []DeducedArg
}

// TypeArg wraps a qualified type.
func TypeArg(q types.QualType) DeducedArg {
	return DeducedArg{Kind: ArgType, Type: q}
}

// ValueArg wraps an integer constant.
func ValueArg(v int64) DeducedArg {
	return DeducedArg{Kind: ArgValue, Value: v}
}

// TemplateArg wraps a template name.
func TemplateArg(name string) DeducedArg {
	return DeducedArg{Kind: ArgTemplate, Template: name}
}

// PackArg wraps pack elements. An empty pack is valid.
func PackArg(elems ...DeducedArg) DeducedArg {
	return DeducedArg{Kind: ArgPack, Pack: elems}
}

// IsZero reports whether a carries no value.
func (a DeducedArg) IsZero() bool {
	return a.Kind == ArgNone
}

// Equal compares two deduced arguments. Types compare by canonical id and
// qualifiers, so callers must canonicalize before storing.
func (a DeducedArg) Equal(b DeducedArg) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case ArgType:
		return a.Type == b.Type
	case ArgValue:
		return a.Value == b.Value
	case ArgTemplate:
		return a.Template == b.Template
	case ArgPack:
		return slices.EqualFunc(a.Pack, b.Pack, DeducedArg.Equal)
	default:
		return true
	}
}

// Format renders a using the type printer.
func (a DeducedArg) Format(in *types.Interner) string {
	switch a.Kind {
	case ArgType:
		return types.LabelQual(in, a.Type, nil)
	case ArgValue:
		return strconv.FormatInt(a.Value, 10)
	case ArgTemplate:
		return a.Template
	case ArgPack:
		parts := make([]string, len(a.Pack))
		for i, e := range a.Pack {
			parts[i] = e.Format(in)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "<none>"
	}
}

// Binding pairs a template parameter with its deduced value.
type Binding struct {
	Param ParamKey
	Arg   DeducedArg
}

// Substitution is a consistent set of bindings ordered by (depth, index).
type Substitution struct {
	Bindings []Binding
}

// Lookup returns the value bound to key.
func (s Substitution) Lookup(key ParamKey) (DeducedArg, bool) {
	i, ok := slices.BinarySearchFunc(s.Bindings, key, func(b Binding, k ParamKey) int {
		return compareKeys(b.Param, k)
	})
	if !ok {
		return DeducedArg{}, false
	}
	return s.Bindings[i].Arg, true
}

// Len returns the number of bound parameters.
func (s Substitution) Len() int {
	return len(s.Bindings)
}

// Equal compares two substitutions binding by binding.
func (s Substitution) Equal(o Substitution) bool {
	return slices.EqualFunc(s.Bindings, o.Bindings, func(a, b Binding) bool {
		return a.Param == b.Param && a.Arg.Equal(b.Arg)
	})
}

// Format renders s as {T: int, N: 3} using names from sig when available.
func (s Substitution) Format(in *types.Interner, sig *Signature) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, binding := range s.Bindings {
		if i > 0 {
			b.WriteString(", ")
		}
		name := fmt.Sprintf("$%d.%d", binding.Param.Depth, binding.Param.Index)
		if sig != nil {
			if tp, ok := sig.TemplateParam(binding.Param); ok && tp.Name != "" {
				name = tp.Name
			}
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(binding.Arg.Format(in))
	}
	b.WriteByte('}')
	return b.String()
}

func compareKeys(a, b ParamKey) int {
	switch {
	case a.Depth != b.Depth:
		if a.Depth < b.Depth {
			return -1
		}
		return 1
	case a.Index < b.Index:
		return -1
	case a.Index > b.Index:
		return 1
	default:
		return 0
	}
}

// ResultKind is the outcome of a deduction attempt.
type ResultKind uint8

const (
	Success ResultKind = iota
	Incomplete
	Inconsistent
	NonDeducedMismatch
	TooManyArguments
	TooFewArguments
	SubstitutionFailure
)

func (k ResultKind) String() string {
	switch k {
	case Success:
		return "success"
	case Incomplete:
		return "incomplete"
	case Inconsistent:
		return "inconsistent"
	case NonDeducedMismatch:
		return "non-deduced-mismatch"
	case TooManyArguments:
		return "too-many-arguments"
	case TooFewArguments:
		return "too-few-arguments"
	case SubstitutionFailure:
		return "substitution-failure"
	default:
		return fmt.Sprintf("ResultKind(%d)", k)
	}
}

// ParseResultKind maps the String form back to a ResultKind.
func ParseResultKind(s string) (ResultKind, error) {
	for k := Success; k <= SubstitutionFailure; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown result kind %q", s)
}

// NoParam marks a Result that is not tied to a parameter position.
const NoParam = -1

// Result is the structured outcome of Engine.Deduce. Failures carry the
// offending argument position and, for Inconsistent, both conflicting values.
type Result struct {
	Kind  ResultKind
	Subst Substitution
	// Return is the signature result with Subst applied (Success only).
	Return types.QualType
	// Attrs holds the inheritable signature attributes (Success only).
	Attrs []attrs.Kind

	ParamIndex int
	Param      ParamKey
	First      DeducedArg
	Second     DeducedArg
	// Reason is a short machine-generated note for SubstitutionFailure.
	Reason string
}

// OK reports whether r is a success.
func (r Result) OK() bool {
	return r.Kind == Success
}

// Equal compares two results field by field.
func (r Result) Equal(o Result) bool {
	return r.Kind == o.Kind &&
		r.Subst.Equal(o.Subst) &&
		r.Return == o.Return &&
		slices.Equal(r.Attrs, o.Attrs) &&
		r.ParamIndex == o.ParamIndex &&
		r.Param == o.Param &&
		r.First.Equal(o.First) &&
		r.Second.Equal(o.Second) &&
		r.Reason == o.Reason
}

func failure(kind ResultKind, index int) Result {
	return Result{Kind: kind, ParamIndex: index}
}
