package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"typeforge/internal/config"
)

// runState is shared between the persistent hooks and the subcommands.
type runState struct {
	cfg     config.Config
	cfgPath string
	// cleanup flushes tracing; failed asks it to dump the ring buffer.
	cleanup  func(failed bool)
	progress *callProgress
}

// callProgress counts the calls of every scenario file in a run. The trace
// heartbeat reports it so a slow batch shows how far it got.
type callProgress struct {
	total atomic.Int64
	done  atomic.Int64
}

func (p *callProgress) planned(n int) {
	if p != nil {
		p.total.Add(int64(n))
	}
}

func (p *callProgress) finished() {
	if p != nil {
		p.done.Add(1)
	}
}

func (p *callProgress) status() string {
	total := p.total.Load()
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("calls %d/%d", p.done.Load(), total)
}

type runStateKey struct{}

// setRunState attaches st to the context of cmd and of the root command,
// which main inspects after Execute returns.
func setRunState(cmd *cobra.Command, st *runState) {
	ctx := context.WithValue(cmd.Context(), runStateKey{}, st)
	cmd.SetContext(ctx)
	cmd.Root().SetContext(ctx)
}

func getRunState(cmd *cobra.Command) *runState {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	st, _ := ctx.Value(runStateKey{}).(*runState)
	return st
}

func applyColorFlag(cmd *cobra.Command) error {
	mode, err := cmd.Flags().GetString("color")
	if err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "auto":
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected auto|on|off)", mode)
	}
	return nil
}

// loadConfig reads --config, or discovers typeforge.toml upward from the
// working directory, and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, string, error) {
	flags := cmd.Flags()
	path, err := flags.GetString("config")
	if err != nil {
		return config.Config{}, "", err
	}
	var cfg config.Config
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, path, err = config.Discover(".")
	}
	if err != nil {
		return config.Config{}, "", err
	}

	if flags.Changed("jobs") {
		if cfg.Batch.Jobs, err = flags.GetInt("jobs"); err != nil {
			return config.Config{}, "", err
		}
	}
	for flag, dst := range map[string]*string{
		"trace":        &cfg.Trace.Output,
		"trace-level":  &cfg.Trace.Level,
		"trace-mode":   &cfg.Trace.Mode,
		"trace-format": &cfg.Trace.Format,
	} {
		if !flags.Changed(flag) {
			continue
		}
		if *dst, err = flags.GetString(flag); err != nil {
			return config.Config{}, "", err
		}
	}
	// An explicit output with no level means the user wants a trace.
	if flags.Changed("trace") && !flags.Changed("trace-level") && cfg.Trace.Level == "off" {
		cfg.Trace.Level = "phase"
	}
	if flags.Changed("trace-ring-size") {
		if cfg.Trace.RingSize, err = flags.GetInt("trace-ring-size"); err != nil {
			return config.Config{}, "", err
		}
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, path, nil
}
