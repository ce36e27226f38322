package main

import (
	"os"

	"github.com/spf13/cobra"

	"typeforge/internal/version"
)

// newRootCmd builds the command tree. Tests build a fresh tree per run.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "typeforge",
		Short:         "Template argument deduction workbench",
		Long:          `typeforge declares parameterized signatures from scenario files and deduces their template arguments for each call`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "path to typeforge.toml (default: search upward from the working directory)")
	flags.String("color", "auto", "colorize output (auto|on|off)")
	flags.Bool("quiet", false, "print only failing calls")
	flags.Bool("timings", false, "show timing information")
	flags.Int("jobs", 0, "concurrent deductions (0 = [batch] jobs or GOMAXPROCS)")
	flags.String("ui", "auto", "progress UI (auto|on|off)")
	flags.String("trace", "", "trace output file (\"-\" for stderr)")
	flags.String("trace-level", "", "trace level (off|error|phase|detail|debug)")
	flags.String("trace-mode", "", "trace storage mode (stream|ring|both)")
	flags.String("trace-format", "", "trace format (auto|text|ndjson)")
	flags.Int("trace-ring-size", 0, "ring buffer capacity for ring mode")
	flags.Duration("trace-heartbeat", 0, "emit heartbeat events at this interval")
	flags.String("cpu-profile", "", "write a CPU profile to this file")
	flags.String("mem-profile", "", "write a heap profile to this file on exit")
	flags.String("runtime-trace", "", "write a Go runtime trace to this file")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := applyColorFlag(cmd); err != nil {
			return err
		}
		cfg, cfgPath, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		profiler, err := setupProfiling(cmd)
		if err != nil {
			return err
		}
		progress := &callProgress{}
		stopTrace, err := setupTracing(cmd, cfg.Trace, progress.status)
		if err != nil {
			_ = profiler.Stop()
			return err
		}
		cleanup := func(failed bool) {
			stopTrace(failed)
			if err := profiler.Stop(); err != nil {
				cmd.PrintErrln("profile:", err)
			}
		}
		setRunState(cmd, &runState{cfg: cfg, cfgPath: cfgPath, cleanup: cleanup, progress: progress})
		return nil
	}
	root.PersistentPostRun = func(cmd *cobra.Command, _ []string) {
		if st := getRunState(cmd); st != nil && st.cleanup != nil {
			st.cleanup(false)
		}
	}

	root.AddCommand(newDeduceCmd())
	root.AddCommand(newAttrsCmd())
	root.AddCommand(newCacheCmd())
	root.AddCommand(newVersionCmd())
	return root
}

// main executes the root command and exits with status 1 on error.
func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if st := getRunState(root); st != nil && st.cleanup != nil {
			st.cleanup(true)
		}
		root.PrintErrln("error:", err)
		os.Exit(1)
	}
}
