package session

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"typeforge/internal/config"
	"typeforge/internal/deduce"
	"typeforge/internal/testkit"
	"typeforge/internal/types"
)

func identitySig(in *types.Interner) deduce.Signature {
	T := types.Unqualified(in.TemplateParam(0, 0))
	return deduce.Signature{
		Name:           "id",
		TemplateParams: []deduce.TemplateParam{{Name: "T"}},
		Params:         []deduce.Param{{Type: T}},
		Result:         T,
	}
}

func typeArgs(ids ...types.TypeID) []deduce.Arg {
	out := make([]deduce.Arg, len(ids))
	for i, id := range ids {
		out[i] = deduce.TypeOf(types.Unqualified(id))
	}
	return out
}

func TestDeclareAndDeduce(t *testing.T) {
	ctx := context.Background()
	s := New(config.Default())
	defer s.Close()

	id, err := s.Declare(ctx, identitySig(s.Types()))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	if got := s.Overloads("id"); len(got) != 1 || got[0] != id {
		t.Fatalf("overloads = %v", got)
	}
	b := s.Types().Builtins()
	res, err := s.Deduce(ctx, id, typeArgs(b.Int))
	if err != nil || res.Kind != deduce.Success {
		t.Fatalf("deduce: %v %s", err, res.Kind)
	}
	if _, err := s.Deduce(ctx, id, typeArgs(b.Int)); err != nil {
		t.Fatalf("second deduce: %v", err)
	}
	if st := s.Stats(); st.Computations != 1 || st.Hits != 1 {
		t.Fatalf("expected one computation and one hit, got %+v", st)
	}
}

func TestDeclareRejectsInvalidSignature(t *testing.T) {
	s := New(config.Default())
	sig := identitySig(s.Types())
	sig.Params[0].Expansion = true
	if _, err := s.Declare(context.Background(), sig); !errors.Is(err, deduce.ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("invalid signature must not be registered")
	}
}

func TestUnknownSignatureAndClose(t *testing.T) {
	ctx := context.Background()
	s := New(config.Default())
	if _, err := s.Deduce(ctx, 42, nil); !errors.Is(err, ErrUnknownSignature) {
		t.Fatalf("expected ErrUnknownSignature, got %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := s.Declare(ctx, identitySig(s.Types())); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := s.Close(); !errors.Is(err, ErrClosed) {
		t.Fatalf("second close should report ErrClosed, got %v", err)
	}
}

func TestDeduceBatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	s := New(config.Default())
	defer s.Close()
	id, err := s.Declare(ctx, identitySig(s.Types()))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	b := s.Types().Builtins()
	calls := []Call{
		{Signature: id, Args: typeArgs(b.Int)},
		{Signature: id, Args: typeArgs(b.Float)},
		{Signature: id, Args: typeArgs(b.Int)},
		{Signature: id, Args: typeArgs(b.Int, b.Int)},
		{Signature: 99, Args: typeArgs(b.Int)},
	}
	var finished atomic.Int32
	out, err := s.DeduceBatch(ctx, calls, 3, func(int, Outcome) { finished.Add(1) })
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if int(finished.Load()) != len(calls) {
		t.Fatalf("progress callback ran %d times", finished.Load())
	}
	sig, _ := s.Signature(id)
	for i, o := range out[:4] {
		if err := testkit.CheckResult(s.Types(), sig, o.Result); err != nil {
			t.Errorf("call %d: %v", i, err)
		}
	}
	if out[1].Result.Return != types.Unqualified(b.Float) {
		t.Fatalf("results must stay positional")
	}
	if out[3].Result.Kind != deduce.TooManyArguments {
		t.Fatalf("expected too-many-arguments, got %s", out[3].Result.Kind)
	}
	if !errors.Is(out[4].Err, ErrUnknownSignature) {
		t.Fatalf("expected per-call error, got %v", out[4].Err)
	}
	if s.CacheLen() != 3 {
		t.Fatalf("expected 3 cache entries, got %d", s.CacheLen())
	}
}

func TestDeduceBatchCanceled(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := New(config.Default())
	id, _ := s.Declare(context.Background(), identitySig(s.Types()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.DeduceBatch(ctx, []Call{{Signature: id, Args: typeArgs(s.Types().Builtins().Int)}}, 1, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(config.Default())
	id, err := s.Declare(ctx, identitySig(s.Types()))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	b := s.Types().Builtins()
	ptr := s.Types().Pointer(b.Char)
	want, _ := s.Deduce(ctx, id, typeArgs(ptr))

	path := filepath.Join(t.TempDir(), "snap", "session.msgpack")
	if err := s.Save(ctx, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	restored, err := Load(ctx, path, config.Default())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if restored.Len() != 1 || restored.CacheLen() != 1 {
		t.Fatalf("restored %d signatures and %d entries", restored.Len(), restored.CacheLen())
	}
	got, err := restored.Deduce(ctx, id, typeArgs(ptr))
	if err != nil {
		t.Fatalf("deduce: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("restored result differs:\n got %+v\nwant %+v", got, want)
	}
	if st := restored.Stats(); st.Hits != 1 || st.Computations != 0 {
		t.Fatalf("restored result should come from the cache, stats %+v", st)
	}
}

func TestLoadOrNewMissingFile(t *testing.T) {
	s, err := LoadOrNew(context.Background(), filepath.Join(t.TempDir(), "absent.msgpack"), config.Default())
	if err != nil || s.Len() != 0 {
		t.Fatalf("expected fresh session, got %v", err)
	}
}

func TestRedeclareReturnsSameID(t *testing.T) {
	ctx := context.Background()
	s := New(config.Default())
	first, err := s.Declare(ctx, identitySig(s.Types()))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	second, err := s.Declare(ctx, identitySig(s.Types()))
	if err != nil || second != first {
		t.Fatalf("identical redeclaration got %d (%v), want %d", second, err, first)
	}
	other := identitySig(s.Types())
	other.Result = types.Unqualified(s.Types().Builtins().Void)
	third, err := s.Declare(ctx, other)
	if err != nil || third == first {
		t.Fatalf("overload must get a new id, got %d (%v)", third, err)
	}
	if got := s.Overloads("id"); len(got) != 2 {
		t.Fatalf("expected two overloads, got %v", got)
	}
}

func TestDeduceRacingCloseReportsClosed(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	s := New(config.Default())
	id, err := s.Declare(ctx, identitySig(s.Types()))
	if err != nil {
		t.Fatalf("declare: %v", err)
	}
	args := typeArgs(s.Types().Builtins().Int)

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	errs := make(chan error, 64)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for range 200 {
				if _, err := s.Deduce(ctx, id, args); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	close(start)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("deduce during close returned %v, want ErrClosed", err)
		}
	}
	if _, err := s.Deduce(ctx, id, args); !errors.Is(err, ErrClosed) {
		t.Fatalf("deduce after close returned %v, want ErrClosed", err)
	}
}
