package trace

import "context"

type ctxKey struct{}

// FromContext extracts the Tracer from context, falling back to Nop.
func FromContext(ctx context.Context) Tracer {
	if ctx == nil {
		return Nop
	}
	if t, ok := ctx.Value(ctxKey{}).(Tracer); ok {
		return t
	}
	return Nop
}

// WithTracer attaches a Tracer to context.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	return context.WithValue(ctx, ctxKey{}, t)
}

// SpanContext is where in a session the current work sits: the enclosing
// span and, inside a batch, the position of the call being deduced.
type SpanContext struct {
	SpanID uint64
	Item   int
}

type spanCtxKey struct{}

// CurrentSpan retrieves the active span context from context.
func CurrentSpan(ctx context.Context) SpanContext {
	if ctx == nil {
		return SpanContext{}
	}
	if sc, ok := ctx.Value(spanCtxKey{}).(SpanContext); ok {
		return sc
	}
	return SpanContext{}
}

// WithSpanContext attaches span context.
func WithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	return context.WithValue(ctx, spanCtxKey{}, sc)
}

// WithItem marks ctx as working on call item (1-based) of a batch. Spans
// started under it carry the item so interleaved workers can be told apart.
func WithItem(ctx context.Context, item int) context.Context {
	sc := CurrentSpan(ctx)
	sc.Item = item
	return WithSpanContext(ctx, sc)
}

// StartSpan begins a span under the span already carried by ctx and returns
// a context in which the new span is current.
func StartSpan(ctx context.Context, scope Scope, name string) (context.Context, *Span) {
	sc := CurrentSpan(ctx)
	span := begin(FromContext(ctx), scope, name, sc.SpanID, sc.Item)
	if span.ID() == 0 {
		return ctx, span
	}
	return WithSpanContext(ctx, SpanContext{SpanID: span.ID(), Item: sc.Item}), span
}
