package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"typeforge/internal/config"
	"typeforge/internal/trace"
)

// ringDumper is implemented by tracers that keep a ring buffer.
type ringDumper interface {
	Ring() (*trace.RingTracer, bool)
}

// setupTracing builds the tracer described by tc, attaches it to the command
// context and returns the cleanup to run when the command finishes. status
// feeds the heartbeat events.
func setupTracing(cmd *cobra.Command, tc config.TraceConfig, status func() string) (func(failed bool), error) {
	cfg, err := tc.Tracer()
	if err != nil {
		return nil, fmt.Errorf("invalid trace configuration: %w", err)
	}
	if cfg.Level == trace.LevelOff {
		ctx := trace.WithTracer(cmd.Context(), trace.Nop)
		cmd.SetContext(ctx)
		return func(bool) {}, nil
	}
	if cfg.Heartbeat, err = cmd.Flags().GetDuration("trace-heartbeat"); err != nil {
		return nil, fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	tracer, err := trace.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}
	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)

	heartbeat := trace.StartHeartbeat(tracer, cfg.Heartbeat, status)

	return func(failed bool) {
		if heartbeat != nil {
			heartbeat.Stop()
		}
		if failed {
			dumpRing(cmd, tracer, cfg.Format)
		}
		if err := tracer.Flush(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: flush error: %v\n", err)
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}, nil
}

// dumpRing writes the most recent events to stderr after a failed run.
func dumpRing(cmd *cobra.Command, tracer trace.Tracer, format trace.Format) {
	var ring *trace.RingTracer
	switch t := tracer.(type) {
	case *trace.RingTracer:
		ring = t
	case ringDumper:
		ring, _ = t.Ring()
	}
	if ring == nil {
		return
	}
	if format == trace.FormatAuto {
		format = trace.FormatText
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "trace: last events before failure")
	if err := ring.Dump(cmd.ErrOrStderr(), format); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
	}
}
