package testkit

import (
	"context"
	"strings"
	"testing"

	"typeforge/internal/deduce"
	"typeforge/internal/types"
)

func pairSig(in *types.Interner) *deduce.Signature {
	T := types.Unqualified(in.TemplateParam(0, 0))
	return &deduce.Signature{
		Name:           "pair",
		TemplateParams: []deduce.TemplateParam{{Name: "T"}},
		Params:         []deduce.Param{{Type: T}, {Type: T}},
		Result:         types.Unqualified(in.PointerTo(T)),
	}
}

func TestCheckResultAcceptsEngineOutput(t *testing.T) {
	in := types.NewInterner()
	sig := pairSig(in)
	eng := deduce.NewEngine(in, deduce.Options{})
	b := in.Builtins()
	for _, args := range [][]types.TypeID{{b.Int, b.Int}, {b.Int, b.Float}, {b.Int}, {b.Int, b.Int, b.Int}} {
		call := make([]deduce.Arg, len(args))
		for i, id := range args {
			call[i] = deduce.TypeOf(types.Unqualified(id))
		}
		r := eng.Deduce(context.Background(), sig, call)
		if err := CheckResult(in, sig, r); err != nil {
			t.Errorf("%d args, %s: %v", len(args), r.Kind, err)
		}
	}
}

func TestCheckResultRejectsBrokenResults(t *testing.T) {
	in := types.NewInterner()
	sig := pairSig(in)
	intArg := deduce.TypeArg(types.Unqualified(in.Builtins().Int))
	cases := map[string]deduce.Result{
		"binds 0 of 1": {Kind: deduce.Success, ParamIndex: deduce.NoParam},
		"without a return type": {
			Kind:       deduce.Success,
			ParamIndex: deduce.NoParam,
			Subst:      deduce.Substitution{Bindings: []deduce.Binding{{Arg: intArg}}},
		},
		"has return type":            {Kind: deduce.TooManyArguments, ParamIndex: 2, Return: intArg.Type},
		"without both deductions":    {Kind: deduce.Inconsistent, ParamIndex: 1, First: intArg},
		"without an offending index": {Kind: deduce.NonDeducedMismatch, ParamIndex: deduce.NoParam},
	}
	for want, r := range cases {
		err := CheckResult(in, sig, r)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("expected error containing %q, got %v", want, err)
		}
	}
}
