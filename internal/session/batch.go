package session

import (
	"context"
	"runtime"
	"strconv"

	"golang.org/x/sync/errgroup"

	"typeforge/internal/deduce"
	"typeforge/internal/trace"
)

// Call is one deduction request of a batch.
type Call struct {
	Signature SignatureID
	Args      []deduce.Arg
}

// Outcome is the answer to one Call.
type Outcome struct {
	Result deduce.Result
	Err    error
}

// DeduceBatch runs calls concurrently with at most jobs workers (the
// configured [batch] jobs when jobs is 0). Results are positional.
// done, when non-nil, is called from the worker goroutines as each call
// finishes. Only context cancellation aborts the batch; per-call errors are
// reported in the outcomes.
func (s *Session) DeduceBatch(ctx context.Context, calls []Call, jobs int, done func(i int, out Outcome)) ([]Outcome, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if jobs <= 0 {
		jobs = s.cfg.Batch.Jobs
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	ctx, span := trace.StartSpan(ctx, trace.ScopeSession, "deduce.batch")
	defer func() {
		span.WithExtra("calls", strconv.Itoa(len(calls))).End("")
	}()

	outcomes := make([]Outcome, len(calls))
	if len(calls) == 0 {
		return outcomes, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(calls)))
	for i, call := range calls {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := s.Deduce(trace.WithItem(gctx, i+1), call.Signature, call.Args)
			outcomes[i] = Outcome{Result: res, Err: err}
			if done != nil {
				done(i, outcomes[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}
