package deduce

import (
	"context"
	"slices"

	"typeforge/internal/attrs"
	"typeforge/internal/trace"
	"typeforge/internal/types"
)

// DefaultMaxDepth bounds recursion through nested type structure.
const DefaultMaxDepth = 64

// Options tune an Engine.
type Options struct {
	// MaxDepth is the recursion ceiling for unification; 0 means DefaultMaxDepth.
	MaxDepth int
}

// Arg is one call-site argument.
type Arg struct {
	Type types.QualType
	// Value is meaningful only when Const is set.
	Value int64
	Const bool
}

// TypeOf builds a non-constant argument of type q.
func TypeOf(q types.QualType) Arg {
	return Arg{Type: q}
}

// Constant builds a constant integral argument.
func Constant(t types.TypeID, v int64) Arg {
	return Arg{Type: types.Unqualified(t), Value: v, Const: true}
}

// Engine deduces template arguments for signatures over one interner.
//
// Deduce keeps all working state local to the call, so an Engine may be used
// from many goroutines at once.
type Engine struct {
	types    *types.Interner
	maxDepth int
}

// NewEngine creates an engine bound to in.
func NewEngine(in *types.Interner, opts Options) *Engine {
	depth := opts.MaxDepth
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	return &Engine{types: in, maxDepth: depth}
}

// Types returns the interner the engine works against.
func (e *Engine) Types() *types.Interner {
	return e.types
}

// Deduce matches args against the parameters of sig and returns either a
// complete substitution or a typed failure. sig is expected to have passed
// Validate.
func (e *Engine) Deduce(ctx context.Context, sig *Signature, args []Arg) Result {
	_, span := trace.StartSpan(ctx, trace.ScopeCall, "deduce")
	res := e.deduce(sig, args)
	span.WithExtra("result", res.Kind.String()).End(sig.Name)
	return res
}

func (e *Engine) deduce(sig *Signature, args []Arg) Result {
	st := &state{
		types:    e.types,
		sig:      sig,
		maxDepth: e.maxDepth,
		bound:    make(map[ParamKey]DeducedArg, len(sig.TemplateParams)),
	}

	n := len(sig.Params)
	pack := sig.ExpansionIndex()
	if pack < 0 {
		if len(args) > n {
			return failure(TooManyArguments, n)
		}
		for i := len(args); i < n; i++ {
			if !sig.Params[i].HasDefault {
				return failure(TooFewArguments, i)
			}
		}
		for i, arg := range args {
			if !st.deduceParam(sig.Params[i], arg, i) {
				return st.fail
			}
		}
	} else {
		trailing := n - pack - 1
		if len(args) < pack+trailing {
			return failure(TooFewArguments, len(args))
		}
		for i := range pack {
			if !st.deduceParam(sig.Params[i], args[i], i) {
				return st.fail
			}
		}
		packEnd := len(args) - trailing
		if !st.deducePack(sig.Params[pack], args[pack:packEnd], pack) {
			return st.fail
		}
		for j := range trailing {
			if !st.deduceParam(sig.Params[pack+1+j], args[packEnd+j], packEnd+j) {
				return st.fail
			}
		}
	}

	subst, ok := st.complete()
	if !ok {
		return st.fail
	}
	res := Result{Kind: Success, Subst: subst, ParamIndex: NoParam}
	if !sig.Result.IsNull() {
		ret, err := subst.Apply(e.types, sig.Result)
		if err != nil {
			return Result{Kind: SubstitutionFailure, ParamIndex: NoParam, Subst: subst, Reason: err.Error()}
		}
		res.Return = ret
	}
	res.Attrs = attrs.Inherited(sig.Attrs)
	return res
}

// state is the working data of one deduction attempt.
type state struct {
	types    *types.Interner
	sig      *Signature
	maxDepth int

	bound map[ParamKey]DeducedArg
	// scratch collects pack bindings for the current expansion element.
	scratch map[ParamKey]DeducedArg
	inPack  bool

	argIndex int
	fail     Result
}

func (st *state) failWith(kind ResultKind) bool {
	st.fail = failure(kind, st.argIndex)
	return false
}

func (st *state) substFailure(reason string) bool {
	st.fail = failure(SubstitutionFailure, st.argIndex)
	st.fail.Reason = reason
	return false
}

// deduceParam handles one top-level (parameter, argument) pair.
func (st *state) deduceParam(param Param, arg Arg, index int) bool {
	st.argIndex = index
	in := st.types
	p := param.Type
	pt := in.MustLookup(p.Type)
	if pt.Kind == types.KindTemplateParam {
		tp, ok := st.sig.TemplateParam(ParamKey{Depth: pt.Depth, Index: pt.ParamIndex()})
		if ok && tp.Kind == ParamNonType {
			if !arg.Const {
				return st.substFailure("argument for " + tp.String() + " is not a constant")
			}
			return st.bind(tp, ValueArg(arg.Value))
		}
	}

	a := arg.Type
	at := in.MustLookup(a.Type)
	if at.Kind == types.KindReference {
		a = at.ElemType()
		at = in.MustLookup(a.Type)
	}
	if pt.Kind == types.KindReference {
		elem := pt.ElemType()
		if !in.IsDependent(elem.Type) {
			// A reference may add cv to what it refers to, never drop it.
			if elem.Type != a.Type || !elem.Quals.CVR().Has(a.Quals.CVR()) {
				return st.failWith(NonDeducedMismatch)
			}
			return true
		}
		return st.unify(elem, a, 0)
	}

	// By-value parameters see the decayed, cv-unqualified argument.
	switch {
	case at.Kind == types.KindArray && pt.Kind != types.KindArray:
		elem := at.ElemType()
		elem.Quals = elem.Quals.Union(a.Quals.CVR())
		a = types.Unqualified(in.PointerTo(elem))
	case at.Kind == types.KindFunction && pt.Kind != types.KindFunction:
		a = types.Unqualified(in.Pointer(a.Type))
	}
	a.Quals = a.Quals.Without(a.Quals.CVR())
	p.Quals = p.Quals.Without(p.Quals.CVR())
	return st.unify(p, a, 0)
}

// deducePack unifies the expansion pattern once per argument. Every pack
// parameter the pattern mentions collects one element per argument.
func (st *state) deducePack(param Param, args []Arg, first int) bool {
	packs, err := st.sig.mentionedParams(st.types, param.Type.Type)
	if err != nil {
		st.argIndex = first
		return st.substFailure(err.Error())
	}
	packs = slices.DeleteFunc(packs, func(tp TemplateParam) bool { return !tp.Pack })
	elems := make(map[ParamKey][]DeducedArg, len(packs))
	for _, tp := range packs {
		elems[tp.Key()] = make([]DeducedArg, 0, len(args))
	}

	st.inPack = true
	defer func() { st.inPack = false }()
	for i, arg := range args {
		st.scratch = make(map[ParamKey]DeducedArg, len(packs))
		if !st.deduceParam(param, arg, first+i) {
			return false
		}
		for _, tp := range packs {
			v, ok := st.scratch[tp.Key()]
			if !ok {
				st.fail = failure(Incomplete, first+i)
				st.fail.Param = tp.Key()
				return false
			}
			elems[tp.Key()] = append(elems[tp.Key()], v)
		}
	}
	st.scratch = nil
	for _, tp := range packs {
		st.bound[tp.Key()] = PackArg(elems[tp.Key()]...)
	}
	return true
}

// unify matches parameter shape p against argument shape a.
func (st *state) unify(p, a types.QualType, depth int) bool {
	if depth > st.maxDepth {
		return st.substFailure("recursion depth limit exceeded")
	}
	in := st.types
	pt := in.MustLookup(p.Type)

	switch {
	case pt.Kind == types.KindTemplateParam:
		return st.unifyParam(pt, p, a)
	case pt.Kind == types.KindDependent:
		return true
	case !in.IsDependent(p.Type):
		if p.Type != a.Type || p.Quals.CVR() != a.Quals.CVR() {
			return st.failWith(NonDeducedMismatch)
		}
		return true
	}

	at := in.MustLookup(a.Type)
	if pt.Kind != at.Kind {
		return st.failWith(NonDeducedMismatch)
	}

	switch pt.Kind {
	case types.KindPointer, types.KindReference:
		return st.unify(pt.ElemType(), at.ElemType(), depth+1)

	case types.KindArray:
		if !st.unify(pt.ElemType(), at.ElemType(), depth+1) {
			return false
		}
		if !pt.HasDependentBound() {
			if pt.Count != at.Count {
				return st.failWith(NonDeducedMismatch)
			}
			return true
		}
		if at.HasDependentBound() || at.Count == types.ArrayUnsized {
			return st.failWith(NonDeducedMismatch)
		}
		bt := in.MustLookup(pt.Bound)
		tp, ok := st.sig.TemplateParam(ParamKey{Depth: bt.Depth, Index: bt.ParamIndex()})
		if !ok {
			return st.substFailure("undeclared array bound parameter")
		}
		if tp.Kind != ParamNonType {
			return st.failWith(NonDeducedMismatch)
		}
		return st.bind(tp, ValueArg(int64(at.Count)))

	case types.KindFunction:
		pinfo, _ := in.FnInfo(p.Type)
		ainfo, _ := in.FnInfo(a.Type)
		if len(pinfo.Params) != len(ainfo.Params) || pinfo.Variadic != ainfo.Variadic {
			return st.failWith(NonDeducedMismatch)
		}
		for i := range pinfo.Params {
			if !st.unify(types.Unqualified(pinfo.Params[i]), types.Unqualified(ainfo.Params[i]), depth+1) {
				return false
			}
		}
		return st.unify(types.Unqualified(pinfo.Result), types.Unqualified(ainfo.Result), depth+1)

	case types.KindRecord:
		return st.unifyRecord(p.Type, a.Type, depth)

	default:
		return st.failWith(NonDeducedMismatch)
	}
}

func (st *state) unifyParam(pt types.Type, p, a types.QualType) bool {
	tp, ok := st.sig.TemplateParam(ParamKey{Depth: pt.Depth, Index: pt.ParamIndex()})
	if !ok {
		return st.substFailure("undeclared template parameter")
	}
	if tp.Kind != ParamType {
		return st.failWith(NonDeducedMismatch)
	}
	// const T against const int binds T = int.
	rest, ok := a.Quals.Deduce(p.Quals)
	if !ok {
		return st.failWith(NonDeducedMismatch)
	}
	bound := st.types.Canonical(types.QualType{Type: a.Type, Quals: rest})
	return st.bind(tp, TypeArg(bound))
}

func (st *state) unifyRecord(p, a types.TypeID, depth int) bool {
	in := st.types
	pinfo, _ := in.RecordInfo(p)
	ainfo, _ := in.RecordInfo(a)
	if pinfo.Template != types.NoTypeID {
		tt := in.MustLookup(pinfo.Template)
		tp, ok := st.sig.TemplateParam(ParamKey{Depth: tt.Depth, Index: tt.ParamIndex()})
		if !ok {
			return st.substFailure("undeclared template template parameter")
		}
		if tp.Kind != ParamTemplate || ainfo.Template != types.NoTypeID {
			return st.failWith(NonDeducedMismatch)
		}
		if !st.bind(tp, TemplateArg(ainfo.Name)) {
			return false
		}
	} else if pinfo.Name != ainfo.Name {
		return st.failWith(NonDeducedMismatch)
	}
	if len(pinfo.Args) != len(ainfo.Args) {
		return st.failWith(NonDeducedMismatch)
	}
	for i := range pinfo.Args {
		if !st.unify(types.Unqualified(pinfo.Args[i]), types.Unqualified(ainfo.Args[i]), depth+1) {
			return false
		}
	}
	if len(pinfo.Fields) == 0 {
		return true
	}
	if len(pinfo.Fields) != len(ainfo.Fields) {
		return st.failWith(NonDeducedMismatch)
	}
	for i := range pinfo.Fields {
		if pinfo.Fields[i].Name != ainfo.Fields[i].Name {
			return st.failWith(NonDeducedMismatch)
		}
		if !st.unify(types.Unqualified(pinfo.Fields[i].Type), types.Unqualified(ainfo.Fields[i].Type), depth+1) {
			return false
		}
	}
	return true
}

// bind records value for tp, failing with Inconsistent on a conflicting
// earlier binding.
func (st *state) bind(tp TemplateParam, value DeducedArg) bool {
	table := st.bound
	if tp.Pack {
		if !st.inPack {
			return st.substFailure("parameter pack " + tp.String() + " used outside an expansion")
		}
		table = st.scratch
	}
	key := tp.Key()
	if prev, ok := table[key]; ok {
		if !prev.Equal(value) {
			st.fail = failure(Inconsistent, st.argIndex)
			st.fail.Param = key
			st.fail.First = prev
			st.fail.Second = value
			return false
		}
		return true
	}
	table[key] = value
	return true
}

// complete checks that every non-pack parameter is bound, binds untouched
// packs to empty packs and returns the sorted substitution.
func (st *state) complete() (Substitution, bool) {
	for _, tp := range st.sig.TemplateParams {
		if _, ok := st.bound[tp.Key()]; ok {
			continue
		}
		if tp.Pack {
			st.bound[tp.Key()] = PackArg()
			continue
		}
		st.fail = failure(Incomplete, NoParam)
		st.fail.Param = tp.Key()
		return Substitution{}, false
	}
	bindings := make([]Binding, 0, len(st.bound))
	for key, arg := range st.bound {
		bindings = append(bindings, Binding{Param: key, Arg: arg})
	}
	slices.SortFunc(bindings, func(a, b Binding) int {
		return compareKeys(a.Param, b.Param)
	})
	return Substitution{Bindings: bindings}, true
}
