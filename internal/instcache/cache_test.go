package instcache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"typeforge/internal/deduce"
	"typeforge/internal/types"
)

func intArgs(in *types.Interner) []deduce.Arg {
	return []deduce.Arg{deduce.TypeOf(types.Unqualified(in.Builtins().Int))}
}

func TestGetOrComputeRunsOncePerKey(t *testing.T) {
	in := types.NewInterner()
	c := New(in, 4)
	var calls int
	compute := func() deduce.Result {
		calls++
		return deduce.Result{Kind: deduce.Inconsistent, ParamIndex: 1}
	}

	first := c.GetOrCompute(context.Background(), 1, intArgs(in), compute)
	second := c.GetOrCompute(context.Background(), 1, intArgs(in), compute)
	if calls != 1 {
		t.Fatalf("compute ran %d times, want 1", calls)
	}
	if !first.Equal(second) || second.Kind != deduce.Inconsistent {
		t.Fatalf("cached failure not returned: %+v", second)
	}
	c.GetOrCompute(context.Background(), 2, intArgs(in), compute)
	if calls != 2 {
		t.Fatalf("different signature must miss")
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 2 || st.Computations != 2 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestKeyCanonicalizesArguments(t *testing.T) {
	in := types.NewInterner()
	c := New(in, 4)
	ref := in.Reference(in.Builtins().Int)
	plain := c.KeyFor(1, []deduce.Arg{deduce.TypeOf(types.Unqualified(ref))})
	withConst := c.KeyFor(1, []deduce.Arg{deduce.TypeOf(types.QualType{Type: ref, Quals: types.QualConst})})
	if plain != withConst {
		t.Fatalf("cv on a reference must not change the key: %q vs %q", plain.Args, withConst.Args)
	}
	if c.KeyFor(1, []deduce.Arg{deduce.Constant(in.Builtins().Int, 3)}) == c.KeyFor(1, []deduce.Arg{deduce.Constant(in.Builtins().Int, 4)}) {
		t.Fatalf("constant values must be part of the key")
	}
}

func TestConcurrentCallersShareOneComputation(t *testing.T) {
	defer goleak.VerifyNone(t)

	in := types.NewInterner()
	c := New(in, 4)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func() deduce.Result {
		calls.Add(1)
		<-release
		return deduce.Result{Kind: deduce.Success, ParamIndex: deduce.NoParam}
	}

	const workers = 16
	results := make([]deduce.Result, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.GetOrCompute(context.Background(), 7, intArgs(in), compute)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Fatalf("compute ran %d times, want 1", n)
	}
	for i := 1; i < workers; i++ {
		if !results[i].Equal(results[0]) {
			t.Fatalf("caller %d observed a different result", i)
		}
	}
	if c.Len() != 1 {
		t.Fatalf("expected one entry, got %d", c.Len())
	}
}

func TestEntriesRestore(t *testing.T) {
	in := types.NewInterner()
	c := New(in, 4)
	c.GetOrCompute(context.Background(), 3, intArgs(in), func() deduce.Result {
		return deduce.Result{Kind: deduce.TooFewArguments, ParamIndex: 0}
	})

	restored := New(in, 4)
	restored.Restore(c.Entries())
	res, ok := restored.Get(restored.KeyFor(3, intArgs(in)))
	if !ok || res.Kind != deduce.TooFewArguments {
		t.Fatalf("restored entry missing: %+v %v", res, ok)
	}
}
