// Package trace is the logging and tracing layer of typeforge.
//
// Events describe what a compilation session is doing: signatures being
// declared, deductions being computed or served from the instantiation cache,
// batch fan-out, and (at debug level) individual type nodes being interned.
//
// # Levels
//
//   - LevelOff: No tracing
//   - LevelError: Only ring-buffer dumps
//   - LevelPhase: Driver and session boundaries
//   - LevelDetail: Individual deduction calls
//   - LevelDebug: Everything including interned nodes
//
// # Scopes
//
//   - ScopeDriver: Top-level CLI operations
//   - ScopeSession: Session lifecycle, batches, snapshots
//   - ScopeCall: One deduction request
//   - ScopeNode: Type-node level
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx = trace.WithItem(ctx, i+1) // inside a batch worker
//
//	ctx, span := trace.StartSpan(ctx, trace.ScopeCall, "deduce")
//	defer span.End(sig.Name)
//
// Spans started this way record their parent span and batch item, so the
// text format prefixes them with #item and NDJSON carries an item field.
package trace
