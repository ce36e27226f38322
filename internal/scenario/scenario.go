// Package scenario reads TOML scenario files that declare records,
// parameterized signatures and calls, and runs the calls through a session.
package scenario

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"fortio.org/safecast"
	"github.com/BurntSushi/toml"

	"typeforge/internal/attrs"
	"typeforge/internal/deduce"
	"typeforge/internal/session"
	"typeforge/internal/types"
)

// File is a decoded scenario file.
type File struct {
	Path       string          `toml:"-"`
	Records    []RecordDecl    `toml:"record"`
	Signatures []SignatureDecl `toml:"signature"`
	Calls      []CallDecl      `toml:"call"`
}

// RecordDecl declares a record or record template.
type RecordDecl struct {
	Name   string      `toml:"name"`
	Params []string    `toml:"params"`
	Fields []FieldDecl `toml:"fields"`
}

type FieldDecl struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

// SignatureDecl declares a parameterized function.
//
// Template parameters are spelled "T", "Ts..." (pack), "N:value" (non-type)
// or "C:template" (template template). Parameters are type expressions with
// an optional trailing "..." (expansion) or "= default".
type SignatureDecl struct {
	Name     string   `toml:"name"`
	Template []string `toml:"template"`
	Params   []string `toml:"params"`
	Result   string   `toml:"result"`
	Attrs    []string `toml:"attrs"`
}

// CallDecl is a call site with optional expectations.
type CallDecl struct {
	Name      string            `toml:"name"`
	Signature string            `toml:"signature"`
	Args      []string          `toml:"args"`
	Expect    string            `toml:"expect"`
	Index     *int              `toml:"index"`
	Bindings  map[string]string `toml:"bindings"`
	Returns   string            `toml:"returns"`
}

// Load decodes a scenario file.
func Load(path string) (*File, error) {
	var f File
	meta, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if len(f.Calls) == 0 {
		return nil, fmt.Errorf("%s: no [[call]] entries", path)
	}
	f.Path = path
	return &f, nil
}

// Program is a scenario compiled into a session.
type Program struct {
	File  *File
	Calls []Call
	reg   *registry
}

// Call is one compiled call.
type Call struct {
	Decl      CallDecl
	Signature *deduce.Signature
	Request   session.Call
}

// Label names the call in reports.
func (c Call) Label() string {
	if c.Decl.Name != "" {
		return c.Decl.Name
	}
	return c.Decl.Signature + "(" + strings.Join(c.Decl.Args, ", ") + ")"
}

// Compile declares the records and signatures of f in s and resolves every
// call.
func (f *File) Compile(ctx context.Context, s *session.Session) (*Program, error) {
	reg := newRegistry(s.Types())
	for _, rd := range f.Records {
		if err := declareRecord(reg, rd); err != nil {
			return nil, fmt.Errorf("%s: record %s: %w", f.Path, rd.Name, err)
		}
	}

	sigs := make(map[string]session.SignatureID, len(f.Signatures))
	for _, sd := range f.Signatures {
		name := normalizeName(sd.Name)
		if _, dup := sigs[name]; dup {
			return nil, fmt.Errorf("%s: signature %s declared twice", f.Path, name)
		}
		sig, err := buildSignature(reg, sd)
		if err != nil {
			return nil, fmt.Errorf("%s: signature %s: %w", f.Path, name, err)
		}
		id, err := s.Declare(ctx, sig)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		sigs[name] = id
	}

	prog := &Program{File: f, Calls: make([]Call, 0, len(f.Calls)), reg: reg}
	for i, cd := range f.Calls {
		id, ok := sigs[normalizeName(cd.Signature)]
		if !ok {
			return nil, fmt.Errorf("%s: call %d: unknown signature %q", f.Path, i, cd.Signature)
		}
		if cd.Expect != "" {
			if _, err := deduce.ParseResultKind(cd.Expect); err != nil {
				return nil, fmt.Errorf("%s: call %d: %w", f.Path, i, err)
			}
		}
		args := make([]deduce.Arg, len(cd.Args))
		for j, src := range cd.Args {
			a, err := parseArg(src, reg)
			if err != nil {
				return nil, fmt.Errorf("%s: call %d argument %d: %w", f.Path, i, j, err)
			}
			args[j] = a
		}
		sig, err := s.Signature(id)
		if err != nil {
			return nil, err
		}
		prog.Calls = append(prog.Calls, Call{
			Decl:      cd,
			Signature: sig,
			Request:   session.Call{Signature: id, Args: args},
		})
	}
	return prog, nil
}

func declareRecord(reg *registry, rd RecordDecl) error {
	name := normalizeName(rd.Name)
	if name == "" {
		return fmt.Errorf("missing name")
	}
	if _, ok := reg.records[name]; ok {
		return fmt.Errorf("declared twice")
	}
	if _, ok := reg.templates[name]; ok {
		return fmt.Errorf("declared twice")
	}
	params := make(map[string]deduce.TemplateParam, len(rd.Params))
	for i, pn := range rd.Params {
		idx, err := safecast.Conv[uint32](i)
		if err != nil {
			return err
		}
		params[normalizeName(pn)] = deduce.TemplateParam{Name: pn, Depth: recordDepth, Index: idx}
	}
	fields := make([]types.Field, len(rd.Fields))
	for i, fd := range rd.Fields {
		q, err := parseType(fd.Type, reg, params)
		if err != nil {
			return fmt.Errorf("field %s: %w", fd.Name, err)
		}
		if q.Quals != 0 {
			return fmt.Errorf("field %s: qualified field types are not supported", fd.Name)
		}
		fields[i] = types.Field{Name: normalizeName(fd.Name), Type: q.Type}
	}
	if len(rd.Params) > 0 {
		reg.templates[name] = &recordTemplate{name: name, params: rd.Params, fields: fields}
		return nil
	}
	reg.records[name] = reg.in.RegisterRecord(types.RecordInfo{Name: name, Fields: fields})
	return nil
}

func buildSignature(reg *registry, sd SignatureDecl) (deduce.Signature, error) {
	sig := deduce.Signature{Name: normalizeName(sd.Name)}
	params := make(map[string]deduce.TemplateParam, len(sd.Template))
	for i, spec := range sd.Template {
		tp, err := parseTemplateParam(spec, i)
		if err != nil {
			return deduce.Signature{}, err
		}
		if _, dup := params[tp.Name]; dup {
			return deduce.Signature{}, fmt.Errorf("template parameter %s declared twice", tp.Name)
		}
		params[tp.Name] = tp
		sig.TemplateParams = append(sig.TemplateParams, tp)
	}
	for i, src := range sd.Params {
		p, err := parseParam(src, reg, params)
		if err != nil {
			return deduce.Signature{}, fmt.Errorf("parameter %d: %w", i, err)
		}
		sig.Params = append(sig.Params, p)
	}
	result := strings.TrimSpace(sd.Result)
	if result == "" {
		result = "void"
	}
	q, err := parseType(result, reg, params)
	if err != nil {
		return deduce.Signature{}, fmt.Errorf("result: %w", err)
	}
	sig.Result = q
	for _, name := range sd.Attrs {
		spec, ok := attrs.LookupName(name)
		if !ok {
			return deduce.Signature{}, fmt.Errorf("unknown attribute %q", name)
		}
		sig.Attrs = append(sig.Attrs, spec.Kind)
	}
	return sig, nil
}

func parseTemplateParam(spec string, index int) (deduce.TemplateParam, error) {
	text := strings.TrimSpace(spec)
	kind := deduce.ParamType
	if name, k, ok := strings.Cut(text, ":"); ok {
		switch strings.TrimSpace(k) {
		case "type":
		case "value":
			kind = deduce.ParamNonType
		case "template":
			kind = deduce.ParamTemplate
		default:
			return deduce.TemplateParam{}, fmt.Errorf("template parameter %q: unknown kind %q", spec, k)
		}
		text = strings.TrimSpace(name)
	}
	idx, err := safecast.Conv[uint32](index)
	if err != nil {
		return deduce.TemplateParam{}, err
	}
	tp := deduce.TemplateParam{Kind: kind, Index: idx}
	if rest, ok := strings.CutSuffix(text, "..."); ok {
		tp.Pack = true
		text = strings.TrimSpace(rest)
	}
	toks, err := lex(text)
	if err != nil || len(toks) != 2 || toks[0].kind != tokIdent {
		return deduce.TemplateParam{}, fmt.Errorf("template parameter %q: expected an identifier", spec)
	}
	tp.Name = toks[0].text
	return tp, nil
}

// Report is the outcome of one call, with any failed expectations.
type Report struct {
	// Index is the position of the call in the scenario.
	Index    int
	Call     Call
	Result   deduce.Result
	Err      error
	Explain  string
	Mismatch []string
}

// OK reports whether the call ran and met its expectations.
func (r Report) OK() bool {
	return r.Err == nil && len(r.Mismatch) == 0
}

// Run deduces every call of prog in s with up to jobs workers. progress,
// when non-nil, is called as calls finish.
func Run(ctx context.Context, s *session.Session, prog *Program, jobs int, progress func(done int, r Report)) ([]Report, error) {
	reqs := make([]session.Call, len(prog.Calls))
	for i, c := range prog.Calls {
		reqs[i] = c.Request
	}
	reports := make([]Report, len(prog.Calls))
	build := func(i int, out session.Outcome) Report {
		c := prog.Calls[i]
		r := Report{Index: i, Call: c, Result: out.Result, Err: out.Err}
		if out.Err == nil {
			r.Explain = deduce.Explain(s.Types(), c.Signature, out.Result)
			r.Mismatch = prog.Check(c, out.Result)
		}
		return r
	}
	var (
		mu       sync.Mutex
		finished int
	)
	outcomes, err := s.DeduceBatch(ctx, reqs, jobs, func(i int, out session.Outcome) {
		if progress == nil {
			return
		}
		r := build(i, out)
		mu.Lock()
		defer mu.Unlock()
		finished++
		progress(finished, r)
	})
	if err != nil {
		return nil, err
	}
	for i, out := range outcomes {
		reports[i] = build(i, out)
	}
	return reports, nil
}

// Check compares r with the expectations of c and returns one line per
// mismatch.
func (prog *Program) Check(c Call, r deduce.Result) []string {
	in := prog.reg.in
	var out []string
	d := c.Decl
	if d.Expect != "" && d.Expect != r.Kind.String() {
		out = append(out, fmt.Sprintf("expected %s, got %s", d.Expect, r.Kind))
	}
	if d.Index != nil && *d.Index != r.ParamIndex {
		out = append(out, fmt.Sprintf("expected offending index %d, got %d", *d.Index, r.ParamIndex))
	}
	names := make([]string, 0, len(d.Bindings))
	for name := range d.Bindings {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		want := d.Bindings[name]
		var (
			got   deduce.DeducedArg
			found bool
		)
		for _, tp := range c.Signature.TemplateParams {
			if tp.Name == normalizeName(name) {
				got, found = r.Subst.Lookup(tp.Key())
				break
			}
		}
		if !found {
			out = append(out, fmt.Sprintf("%s: not bound", name))
			continue
		}
		if spelled := got.Format(in); spelled != prog.reg.canonicalSpelling(want) {
			out = append(out, fmt.Sprintf("%s: expected %s, got %s", name, want, spelled))
		}
	}
	if d.Returns != "" {
		got := types.LabelQual(in, r.Return, nil)
		if r.Return.IsNull() || got != prog.reg.canonicalSpelling(d.Returns) {
			out = append(out, fmt.Sprintf("returns: expected %s, got %s", d.Returns, got))
		}
	}
	return out
}

// canonicalSpelling reprints a type written in an expectation so that
// spacing and qualifier order do not matter. Packs are written [a, b].
func (reg *registry) canonicalSpelling(want string) string {
	text := strings.TrimSpace(want)
	if inner, ok := strings.CutPrefix(text, "["); ok {
		inner, _ = strings.CutSuffix(inner, "]")
		if strings.TrimSpace(inner) == "" {
			return "[]"
		}
		parts := splitTopLevel(inner)
		for i, p := range parts {
			parts[i] = reg.canonicalSpelling(p)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	if q, err := parseType(text, reg, nil); err == nil {
		return types.LabelQual(reg.in, q, nil)
	}
	return text
}

// splitTopLevel splits s at commas outside angle brackets, parentheses and
// square brackets.
func splitTopLevel(s string) []string {
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range s {
		switch r {
		case '<', '(', '[':
			depth++
		case '>':
			if i == 0 || s[i-1] != '-' {
				depth--
			}
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}
