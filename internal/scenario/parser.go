package scenario

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"typeforge/internal/deduce"
	"typeforge/internal/types"
)

// recordDepth is the template depth of record-level parameters. Signature
// parameters live at depth 0, so the two never collide.
const recordDepth = 1

var primitiveNames = map[string]bool{
	"void": true, "bool": true, "char": true, "short": true,
	"int": true, "long": true, "float": true, "double": true,
}

var lifetimeNames = map[string]types.Lifetime{
	types.LifetimeExplicitNone.String():  types.LifetimeExplicitNone,
	types.LifetimeStrong.String():        types.LifetimeStrong,
	types.LifetimeWeak.String():          types.LifetimeWeak,
	types.LifetimeAutoreleasing.String(): types.LifetimeAutoreleasing,
}

// recordTemplate is a [[record]] with template parameters. Field types are
// stored as patterns over depth-1 template parameters.
type recordTemplate struct {
	name   string
	params []string
	fields []types.Field
}

// registry resolves names that are not template parameters.
type registry struct {
	in        *types.Interner
	records   map[string]types.TypeID
	templates map[string]*recordTemplate
}

func newRegistry(in *types.Interner) *registry {
	return &registry{
		in:        in,
		records:   make(map[string]types.TypeID),
		templates: make(map[string]*recordTemplate),
	}
}

func (r *registry) instantiate(tmpl *recordTemplate, args []types.TypeID) (types.TypeID, error) {
	if len(args) != len(tmpl.params) {
		return types.NoTypeID, fmt.Errorf("%s takes %d template arguments, got %d", tmpl.name, len(tmpl.params), len(args))
	}
	var subst deduce.Substitution
	for i, a := range args {
		idx, err := safecast.Conv[uint32](i)
		if err != nil {
			return types.NoTypeID, err
		}
		subst.Bindings = append(subst.Bindings, deduce.Binding{
			Param: deduce.ParamKey{Depth: recordDepth, Index: idx},
			Arg:   deduce.TypeArg(types.Unqualified(a)),
		})
	}
	fields := make([]types.Field, len(tmpl.fields))
	for i, f := range tmpl.fields {
		ft, err := subst.Apply(r.in, types.Unqualified(f.Type))
		if err != nil {
			return types.NoTypeID, fmt.Errorf("%s<...>::%s: %w", tmpl.name, f.Name, err)
		}
		fields[i] = types.Field{Name: f.Name, Type: ft.Type}
	}
	return r.in.RegisterRecord(types.RecordInfo{Name: tmpl.name, Args: args, Fields: fields}), nil
}

// parser reads one type expression.
type parser struct {
	src    string
	toks   []token
	pos    int
	reg    *registry
	params map[string]deduce.TemplateParam
}

func newParser(src string, reg *registry, params map[string]deduce.TemplateParam) (*parser, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", src, err)
	}
	return &parser{src: src, toks: toks, reg: reg, params: params}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) at(text string) bool {
	t := p.peek()
	return (t.kind == tokPunct || t.kind == tokIdent) && t.text == text
}

func (p *parser) expect(text string) error {
	if !p.at(text) {
		return p.errorf("expected %q, found %s", text, p.peek())
	}
	p.next()
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%q at offset %d: %s", p.src, p.peek().pos, fmt.Sprintf(format, args...))
}

func (p *parser) done() error {
	if p.peek().kind != tokEOF {
		return p.errorf("unexpected %s", p.peek())
	}
	return nil
}

// parseType parses a full type expression such as "const Vec<T>::value_type*".
func (p *parser) parseType() (types.QualType, error) {
	quals, err := p.parseQuals()
	if err != nil {
		return types.QualType{}, err
	}
	base, err := p.parseBase()
	if err != nil {
		return types.QualType{}, err
	}
	trailing, err := p.parseQuals()
	if err != nil {
		return types.QualType{}, err
	}
	q := types.QualType{Type: base, Quals: quals.Union(trailing)}
	return p.parseSuffixes(q)
}

func (p *parser) parseSuffixes(q types.QualType) (types.QualType, error) {
	in := p.reg.in
	for {
		switch {
		case p.at("*"):
			p.next()
			if in.MustLookup(q.Type).Kind == types.KindReference {
				return types.QualType{}, p.errorf("pointer to reference")
			}
			quals, err := p.parseQuals()
			if err != nil {
				return types.QualType{}, err
			}
			q = types.QualType{Type: in.PointerTo(q), Quals: quals}
		case p.at("&"):
			p.next()
			if in.MustLookup(q.Type).Kind == types.KindReference {
				return types.QualType{}, p.errorf("reference to reference")
			}
			q = types.Unqualified(in.ReferenceTo(q))
		case p.at("["):
			p.next()
			arr, err := p.parseArray(q)
			if err != nil {
				return types.QualType{}, err
			}
			q = types.Unqualified(arr)
		default:
			return q, nil
		}
	}
}

func (p *parser) parseArray(elem types.QualType) (types.TypeID, error) {
	in := p.reg.in
	t := p.next()
	switch t.kind {
	case tokPunct:
		if t.text != "]" {
			return types.NoTypeID, p.errorf("expected array bound, found %s", t)
		}
		return in.ArrayOf(elem, types.ArrayUnsized), nil
	case tokNumber:
		n, err := strconv.ParseUint(t.text, 10, 32)
		if err != nil || uint32(n) == types.ArrayUnsized {
			return types.NoTypeID, p.errorf("array bound %s out of range", t.text)
		}
		if err := p.expect("]"); err != nil {
			return types.NoTypeID, err
		}
		return in.ArrayOf(elem, uint32(n)), nil
	case tokIdent:
		tp, ok := p.params[t.text]
		if !ok || tp.Kind != deduce.ParamNonType {
			return types.NoTypeID, p.errorf("array bound %s is not a value parameter", t.text)
		}
		if err := p.expect("]"); err != nil {
			return types.NoTypeID, err
		}
		arr := types.MakeDependentArray(elem.Type, in.TemplateParam(tp.Depth, tp.Index))
		arr.ElemQuals = elem.Quals.Canonical()
		return in.Intern(arr), nil
	default:
		return types.NoTypeID, p.errorf("unterminated array bound")
	}
}

// parseQuals reads any run of qualifier keywords.
func (p *parser) parseQuals() (types.Qualifiers, error) {
	var q types.Qualifiers
	for {
		t := p.peek()
		if t.kind != tokIdent {
			return q, nil
		}
		switch t.text {
		case "const":
			q |= types.QualConst
		case "volatile":
			q |= types.QualVolatile
		case "restrict":
			q |= types.QualRestrict
		case "__attribute__":
			p.next()
			as, err := p.parseAddressSpace()
			if err != nil {
				return 0, err
			}
			q |= types.AddressSpaceQual(as)
			continue
		default:
			lt, ok := lifetimeNames[t.text]
			if !ok {
				return q, nil
			}
			q |= types.LifetimeQual(lt)
		}
		p.next()
	}
}

// parseAddressSpace reads ((address_space(N))) after __attribute__.
func (p *parser) parseAddressSpace() (uint8, error) {
	for _, want := range []string{"(", "(", "address_space", "("} {
		if err := p.expect(want); err != nil {
			return 0, err
		}
	}
	t := p.next()
	n, err := strconv.ParseUint(t.text, 10, 8)
	if t.kind != tokNumber || err != nil {
		return 0, p.errorf("invalid address space %s", t)
	}
	for range 3 {
		if err := p.expect(")"); err != nil {
			return 0, err
		}
	}
	return uint8(n), nil
}

func (p *parser) parseBase() (types.TypeID, error) {
	in := p.reg.in
	var base types.TypeID
	t := p.next()
	switch {
	case t.kind == tokPunct && t.text == "(":
		q, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		if q.Quals != 0 {
			return types.NoTypeID, p.errorf("qualifiers inside parentheses")
		}
		if err := p.expect(")"); err != nil {
			return types.NoTypeID, err
		}
		base = q.Type
	case t.kind == tokIdent && t.text == "fn":
		fn, err := p.parseFn()
		if err != nil {
			return types.NoTypeID, err
		}
		base = fn
	case t.kind == tokIdent:
		id, err := p.resolveName(t.text)
		if err != nil {
			return types.NoTypeID, err
		}
		base = id
	default:
		return types.NoTypeID, p.errorf("expected a type, found %s", t)
	}

	for p.at("::") {
		p.next()
		member := p.next()
		if member.kind != tokIdent {
			return types.NoTypeID, p.errorf("expected member name, found %s", member)
		}
		if in.IsDependent(base) {
			base = in.Intern(types.MakeDependent(base, member.text))
			continue
		}
		ft, ok := in.FieldType(base, member.text)
		if !ok {
			return types.NoTypeID, p.errorf("%s has no member %s", types.Label(in, base), member.text)
		}
		base = ft
	}
	return base, nil
}

func (p *parser) resolveName(name string) (types.TypeID, error) {
	in := p.reg.in
	if tp, ok := p.params[name]; ok {
		switch tp.Kind {
		case deduce.ParamType:
			return in.TemplateParam(tp.Depth, tp.Index), nil
		case deduce.ParamTemplate:
			args, err := p.parseTemplateArgs()
			if err != nil {
				return types.NoTypeID, err
			}
			return in.RegisterRecord(types.RecordInfo{Template: in.TemplateParam(tp.Depth, tp.Index), Args: args}), nil
		default:
			return types.NoTypeID, p.errorf("value parameter %s used as a type", name)
		}
	}
	if tmpl, ok := p.reg.templates[name]; ok {
		args, err := p.parseTemplateArgs()
		if err != nil {
			return types.NoTypeID, err
		}
		id, err := p.reg.instantiate(tmpl, args)
		if err != nil {
			return types.NoTypeID, p.errorf("%v", err)
		}
		return id, nil
	}
	if id, ok := p.reg.records[name]; ok {
		return id, nil
	}
	if primitiveNames[name] {
		return in.Primitive(name), nil
	}
	return types.NoTypeID, p.errorf("unknown type name %s", name)
}

func (p *parser) parseTemplateArgs() ([]types.TypeID, error) {
	if err := p.expect("<"); err != nil {
		return nil, err
	}
	var args []types.TypeID
	for !p.at(">") {
		if len(args) > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		q, err := p.parseType()
		if err != nil {
			return nil, err
		}
		if q.Quals != 0 {
			return nil, p.errorf("qualified template arguments are not supported")
		}
		args = append(args, q.Type)
	}
	p.next()
	return args, nil
}

func (p *parser) parseFn() (types.TypeID, error) {
	if err := p.expect("("); err != nil {
		return types.NoTypeID, err
	}
	var (
		params   []types.TypeID
		variadic bool
	)
	for !p.at(")") {
		if len(params) > 0 || variadic {
			if err := p.expect(","); err != nil {
				return types.NoTypeID, err
			}
		}
		if p.at("...") {
			p.next()
			variadic = true
			continue
		}
		if variadic {
			return types.NoTypeID, p.errorf("parameter after ...")
		}
		q, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		params = append(params, q.Type)
	}
	p.next()
	if err := p.expect("->"); err != nil {
		return types.NoTypeID, err
	}
	result, err := p.parseType()
	if err != nil {
		return types.NoTypeID, err
	}
	return p.reg.in.RegisterFn(params, result.Type, variadic), nil
}

// parseType parses src against the names declared in reg and params.
func parseType(src string, reg *registry, params map[string]deduce.TemplateParam) (types.QualType, error) {
	p, err := newParser(src, reg, params)
	if err != nil {
		return types.QualType{}, err
	}
	q, err := p.parseType()
	if err != nil {
		return types.QualType{}, err
	}
	if err := p.done(); err != nil {
		return types.QualType{}, err
	}
	return reg.in.Canonical(q), nil
}

// parseParam parses a function parameter. A trailing "..." marks a pack
// expansion and a trailing "= default" a defaulted parameter.
func parseParam(src string, reg *registry, params map[string]deduce.TemplateParam) (deduce.Param, error) {
	text := strings.TrimSpace(src)
	var param deduce.Param
	if rest, ok := strings.CutSuffix(text, "= default"); ok {
		param.HasDefault = true
		text = strings.TrimSpace(rest)
	}
	if rest, ok := strings.CutSuffix(text, "..."); ok {
		param.Expansion = true
		text = strings.TrimSpace(rest)
	}
	q, err := parseType(text, reg, params)
	if err != nil {
		return deduce.Param{}, err
	}
	param.Type = q
	return param, nil
}

// parseArg parses a call argument: an integer literal is a constant int,
// anything else a type.
func parseArg(src string, reg *registry) (deduce.Arg, error) {
	text := strings.TrimSpace(src)
	if v, err := strconv.ParseInt(text, 10, 64); err == nil {
		return deduce.Constant(reg.in.Primitive("int"), v), nil
	}
	q, err := parseType(text, reg, nil)
	if err != nil {
		return deduce.Arg{}, err
	}
	return deduce.TypeOf(q), nil
}
