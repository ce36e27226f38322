package deduce

import (
	"errors"
	"fmt"
	"slices"

	"typeforge/internal/attrs"
	"typeforge/internal/types"
)

// ErrInvalidSignature is wrapped by every Signature.Validate failure.
var ErrInvalidSignature = errors.New("invalid signature")

// ParamKind classifies a template parameter.
type ParamKind uint8

const (
	// ParamType is a type template parameter (typename T).
	ParamType ParamKind = iota
	// ParamNonType is an integral template parameter (int N).
	ParamNonType
	// ParamTemplate is a template template parameter (template<class> class TT).
	ParamTemplate
)

func (k ParamKind) String() string {
	switch k {
	case ParamType:
		return "type"
	case ParamNonType:
		return "non-type"
	case ParamTemplate:
		return "template"
	default:
		return fmt.Sprintf("ParamKind(%d)", k)
	}
}

// ParamKey identifies a template parameter by position.
type ParamKey struct {
	Depth uint32
	Index uint32
}

// TemplateParam is a deducible slot declared by a signature.
type TemplateParam struct {
	Name  string
	Depth uint32
	Index uint32
	Kind  ParamKind
	Pack  bool
}

// Key returns the position of p.
func (p TemplateParam) Key() ParamKey {
	return ParamKey{Depth: p.Depth, Index: p.Index}
}

func (p TemplateParam) String() string {
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("$%d.%d", p.Depth, p.Index)
	}
	if p.Pack {
		return name + "..."
	}
	return name
}

// Param is one function parameter of a signature.
type Param struct {
	Type types.QualType
	// Expansion marks a function parameter pack (T... args).
	Expansion bool
	// HasDefault marks a parameter with a default argument.
	HasDefault bool
}

// Signature is a parameterized function declaration.
//
// All TypeIDs must come from the interner the signature is deduced against.
// Signatures are immutable once handed to an engine or session.
type Signature struct {
	Name           string
	TemplateParams []TemplateParam
	Params         []Param
	Result         types.QualType
	Attrs          []attrs.Kind
}

// TemplateParam returns the declaration for the parameter at key.
func (s *Signature) TemplateParam(key ParamKey) (TemplateParam, bool) {
	for _, p := range s.TemplateParams {
		if p.Key() == key {
			return p, true
		}
	}
	return TemplateParam{}, false
}

// ExpansionIndex returns the position of the function parameter pack or -1.
func (s *Signature) ExpansionIndex() int {
	for i, p := range s.Params {
		if p.Expansion {
			return i
		}
	}
	return -1
}

// Namer spells template parameters with their declared names.
func (s *Signature) Namer() types.ParamNamer {
	return func(depth, index uint32) (string, bool) {
		p, ok := s.TemplateParam(ParamKey{Depth: depth, Index: index})
		if !ok || p.Name == "" {
			return "", false
		}
		return p.Name, true
	}
}

// Validate checks the structural rules deduction relies on.
func (s *Signature) Validate(in *types.Interner) error {
	if s == nil {
		return fmt.Errorf("%w: nil signature", ErrInvalidSignature)
	}
	seen := make(map[ParamKey]struct{}, len(s.TemplateParams))
	for _, p := range s.TemplateParams {
		if _, dup := seen[p.Key()]; dup {
			return fmt.Errorf("%w: %s: template parameter %s redeclared at depth %d index %d",
				ErrInvalidSignature, s.Name, p, p.Depth, p.Index)
		}
		seen[p.Key()] = struct{}{}
	}
	if err := attrs.Validate(s.Attrs, attrs.TargetFn); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidSignature, s.Name, err)
	}

	expansion := -1
	defaulted := -1
	for i, p := range s.Params {
		if _, ok := in.Lookup(p.Type.Type); !ok {
			return fmt.Errorf("%w: %s: parameter %d: %w", ErrInvalidSignature, s.Name, i, types.ErrUnknownTypeID)
		}
		mentioned, err := s.mentionedParams(in, p.Type.Type)
		if err != nil {
			return fmt.Errorf("%w: %s: parameter %d: %w", ErrInvalidSignature, s.Name, i, err)
		}
		hasPack := false
		for _, tp := range mentioned {
			hasPack = hasPack || tp.Pack
		}
		switch {
		case p.Expansion:
			if expansion >= 0 {
				return fmt.Errorf("%w: %s: more than one parameter pack", ErrInvalidSignature, s.Name)
			}
			if !hasPack {
				return fmt.Errorf("%w: %s: parameter pack %d does not mention a template parameter pack", ErrInvalidSignature, s.Name, i)
			}
			expansion = i
		case hasPack:
			return fmt.Errorf("%w: %s: template parameter pack used outside an expansion in parameter %d", ErrInvalidSignature, s.Name, i)
		}
		if tt := in.MustLookup(p.Type.Type); tt.Kind == types.KindTemplateParam {
			if tp, _ := s.TemplateParam(ParamKey{Depth: tt.Depth, Index: tt.ParamIndex()}); tp.Kind == ParamTemplate {
				return fmt.Errorf("%w: %s: template template parameter %s used as a parameter type", ErrInvalidSignature, s.Name, tp)
			}
		}
		if p.HasDefault {
			if defaulted < 0 {
				defaulted = i
			}
		} else if defaulted >= 0 && !p.Expansion {
			return fmt.Errorf("%w: %s: parameter %d lacks a default after defaulted parameter %d", ErrInvalidSignature, s.Name, i, defaulted)
		}
	}
	if expansion >= 0 && defaulted >= 0 {
		return fmt.Errorf("%w: %s: default arguments cannot be combined with a parameter pack", ErrInvalidSignature, s.Name)
	}
	if !s.Result.IsNull() {
		mentioned, err := s.mentionedParams(in, s.Result.Type)
		if err != nil {
			return fmt.Errorf("%w: %s: result: %w", ErrInvalidSignature, s.Name, err)
		}
		for _, tp := range mentioned {
			if tp.Pack {
				return fmt.Errorf("%w: %s: result type mentions parameter pack %s", ErrInvalidSignature, s.Name, tp)
			}
		}
	}
	return nil
}

// mentionedParams lists the declared template parameters referenced by id.
// A reference to an undeclared template parameter is an error.
func (s *Signature) mentionedParams(in *types.Interner, id types.TypeID) ([]TemplateParam, error) {
	var (
		out  []TemplateParam
		seen = make(map[ParamKey]bool)
		walk func(id types.TypeID, depth int) error
	)
	walk = func(id types.TypeID, depth int) error {
		if id == types.NoTypeID || !in.IsDependent(id) {
			return nil
		}
		if depth > DefaultMaxDepth {
			return fmt.Errorf("type nesting exceeds %d levels", DefaultMaxDepth)
		}
		tt, ok := in.Lookup(id)
		if !ok {
			return types.ErrUnknownTypeID
		}
		switch tt.Kind {
		case types.KindTemplateParam:
			key := ParamKey{Depth: tt.Depth, Index: tt.ParamIndex()}
			tp, ok := s.TemplateParam(key)
			if !ok {
				return fmt.Errorf("undeclared template parameter at depth %d index %d", key.Depth, key.Index)
			}
			if !seen[key] {
				seen[key] = true
				out = append(out, tp)
			}
		case types.KindPointer, types.KindReference, types.KindDependent:
			return walk(tt.Elem, depth+1)
		case types.KindArray:
			if err := walk(tt.Bound, depth+1); err != nil {
				return err
			}
			return walk(tt.Elem, depth+1)
		case types.KindFunction:
			info, _ := in.FnInfo(id)
			for _, p := range info.Params {
				if err := walk(p, depth+1); err != nil {
					return err
				}
			}
			return walk(info.Result, depth+1)
		case types.KindRecord:
			info, _ := in.RecordInfo(id)
			if err := walk(info.Template, depth+1); err != nil {
				return err
			}
			for _, a := range info.Args {
				if err := walk(a, depth+1); err != nil {
					return err
				}
			}
			for _, f := range info.Fields {
				if err := walk(f.Type, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(id, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// Equal reports whether two signatures are structurally identical.
func (s *Signature) Equal(o *Signature) bool {
	return s.Name == o.Name &&
		slices.Equal(s.TemplateParams, o.TemplateParams) &&
		slices.Equal(s.Params, o.Params) &&
		s.Result == o.Result &&
		slices.Equal(s.Attrs, o.Attrs)
}
