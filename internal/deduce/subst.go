package deduce

import (
	"errors"
	"fmt"

	"fortio.org/safecast"

	"typeforge/internal/types"
)

var (
	// ErrUnbound reports a template parameter with no binding.
	ErrUnbound = errors.New("template parameter is not bound")
	// ErrNoMember reports a dependent member name the bound record lacks.
	ErrNoMember = errors.New("no such member")
	// ErrBadSubstitution reports a binding of the wrong kind for its position.
	ErrBadSubstitution = errors.New("substitution produces an invalid type")
)

// Apply replaces every template parameter in q with its binding and interns
// the resulting types. Nested names T::m resolve through record fields.
func (s Substitution) Apply(in *types.Interner, q types.QualType) (types.QualType, error) {
	sub := substituter{types: in, subst: s, maxDepth: DefaultMaxDepth}
	return sub.qual(q, 0)
}

type substituter struct {
	types    *types.Interner
	subst    Substitution
	maxDepth int
	cache    map[types.TypeID]types.QualType
}

func (s *substituter) qual(q types.QualType, depth int) (types.QualType, error) {
	out, err := s.typ(q.Type, depth)
	if err != nil {
		return types.QualType{}, err
	}
	return s.types.Canonical(types.AddQualifiers(out, q.Quals)), nil
}

func (s *substituter) typ(id types.TypeID, depth int) (types.QualType, error) {
	if id == types.NoTypeID || !s.types.IsDependent(id) {
		return types.Unqualified(id), nil
	}
	if s.cache == nil {
		s.cache = make(map[types.TypeID]types.QualType, 16)
	} else if cached, ok := s.cache[id]; ok {
		return cached, nil
	}
	if depth > s.maxDepth {
		return types.QualType{}, fmt.Errorf("type nesting exceeds %d levels", s.maxDepth)
	}
	out, err := s.typeNoCache(id, depth)
	if err != nil {
		return types.QualType{}, err
	}
	s.cache[id] = out
	return out, nil
}

func (s *substituter) typeNoCache(id types.TypeID, depth int) (types.QualType, error) {
	in := s.types
	tt := in.MustLookup(id)

	switch tt.Kind {
	case types.KindTemplateParam:
		key := ParamKey{Depth: tt.Depth, Index: tt.ParamIndex()}
		arg, ok := s.subst.Lookup(key)
		if !ok {
			return types.QualType{}, fmt.Errorf("%w: depth %d index %d", ErrUnbound, key.Depth, key.Index)
		}
		if arg.Kind != ArgType {
			return types.QualType{}, fmt.Errorf("%w: %s argument in type position", ErrBadSubstitution, arg.Format(in))
		}
		return arg.Type, nil

	case types.KindPointer:
		elem, err := s.qual(tt.ElemType(), depth+1)
		if err != nil {
			return types.QualType{}, err
		}
		if et := in.MustLookup(elem.Type); et.Kind == types.KindReference {
			return types.QualType{}, fmt.Errorf("%w: pointer to reference %s", ErrBadSubstitution, types.LabelQual(in, elem, nil))
		}
		return types.Unqualified(in.PointerTo(elem)), nil

	case types.KindReference:
		elem, err := s.qual(tt.ElemType(), depth+1)
		if err != nil {
			return types.QualType{}, err
		}
		// T& with T = U& collapses to U&.
		if et := in.MustLookup(elem.Type); et.Kind == types.KindReference {
			return types.Unqualified(elem.Type), nil
		}
		return types.Unqualified(in.ReferenceTo(elem)), nil

	case types.KindArray:
		elem, err := s.qual(tt.ElemType(), depth+1)
		if err != nil {
			return types.QualType{}, err
		}
		count := tt.Count
		if tt.HasDependentBound() {
			bt := in.MustLookup(tt.Bound)
			arg, ok := s.subst.Lookup(ParamKey{Depth: bt.Depth, Index: bt.ParamIndex()})
			if !ok {
				return types.QualType{}, fmt.Errorf("%w: array bound", ErrUnbound)
			}
			if arg.Kind != ArgValue {
				return types.QualType{}, fmt.Errorf("%w: array bound %s is not a value", ErrBadSubstitution, arg.Format(in))
			}
			n, convErr := safecast.Conv[uint32](arg.Value)
			if convErr != nil || n == types.ArrayUnsized {
				return types.QualType{}, fmt.Errorf("%w: array bound %d out of range", ErrBadSubstitution, arg.Value)
			}
			count = n
		}
		return types.Unqualified(in.ArrayOf(elem, count)), nil

	case types.KindFunction:
		info, ok := in.FnInfo(id)
		if !ok {
			return types.QualType{}, types.ErrUnknownTypeID
		}
		params := make([]types.TypeID, len(info.Params))
		for i, p := range info.Params {
			out, err := s.typ(p, depth+1)
			if err != nil {
				return types.QualType{}, err
			}
			params[i] = out.Type
		}
		result, err := s.typ(info.Result, depth+1)
		if err != nil {
			return types.QualType{}, err
		}
		return types.Unqualified(in.RegisterFn(params, result.Type, info.Variadic)), nil

	case types.KindRecord:
		info, ok := in.RecordInfo(id)
		if !ok {
			return types.QualType{}, types.ErrUnknownTypeID
		}
		out := types.RecordInfo{Name: info.Name}
		if info.Template != types.NoTypeID {
			tmpl := in.MustLookup(info.Template)
			arg, ok := s.subst.Lookup(ParamKey{Depth: tmpl.Depth, Index: tmpl.ParamIndex()})
			if !ok {
				return types.QualType{}, fmt.Errorf("%w: record template", ErrUnbound)
			}
			if arg.Kind != ArgTemplate {
				return types.QualType{}, fmt.Errorf("%w: %s is not a template name", ErrBadSubstitution, arg.Format(in))
			}
			out.Name = arg.Template
		}
		out.Args = make([]types.TypeID, len(info.Args))
		for i, a := range info.Args {
			sa, err := s.typ(a, depth+1)
			if err != nil {
				return types.QualType{}, err
			}
			out.Args[i] = sa.Type
		}
		out.Fields = make([]types.Field, len(info.Fields))
		for i, f := range info.Fields {
			ft, err := s.typ(f.Type, depth+1)
			if err != nil {
				return types.QualType{}, err
			}
			out.Fields[i] = types.Field{Name: f.Name, Type: ft.Type}
		}
		return types.Unqualified(in.RegisterRecord(out)), nil

	case types.KindDependent:
		base, err := s.typ(tt.Elem, depth+1)
		if err != nil {
			return types.QualType{}, err
		}
		member, ok := in.FieldType(base.Type, tt.Name)
		if !ok {
			return types.QualType{}, fmt.Errorf("%w: %s::%s", ErrNoMember, types.Label(in, base.Type), tt.Name)
		}
		return types.Unqualified(member), nil

	default:
		return types.Unqualified(id), nil
	}
}
