package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"typeforge/internal/observ"
	"typeforge/internal/scenario"
	"typeforge/internal/session"
	"typeforge/internal/trace"
)

type deduceOptions struct {
	snapshot string
	format   string
	explain  bool
	quiet    bool
	timings  bool
	display  progressDisplay
}

func newDeduceCmd() *cobra.Command {
	var opts deduceOptions
	cmd := &cobra.Command{
		Use:   "deduce <scenario.toml>...",
		Short: "Run the calls of scenario files and check their expectations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			flags := cmd.Flags()
			if opts.quiet, err = flags.GetBool("quiet"); err != nil {
				return err
			}
			if opts.timings, err = flags.GetBool("timings"); err != nil {
				return err
			}
			uiValue, err := flags.GetString("ui")
			if err != nil {
				return err
			}
			if opts.display, err = parseProgressDisplay(uiValue); err != nil {
				return err
			}
			opts.format = strings.ToLower(strings.TrimSpace(opts.format))
			switch opts.format {
			case "pretty", "json":
			default:
				return fmt.Errorf("unsupported format %q (must be pretty or json)", opts.format)
			}
			return runDeduce(cmd, args, opts)
		},
	}
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "session snapshot to load before and save after the run (overrides [cache] snapshot)")
	cmd.Flags().StringVar(&opts.format, "format", "pretty", "output format (pretty|json)")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "explain every result, not only failures")
	return cmd
}

var errCallsFailed = errors.New("calls failed")

func runDeduce(cmd *cobra.Command, files []string, opts deduceOptions) (err error) {
	st := getRunState(cmd)
	if st == nil {
		return fmt.Errorf("missing run state")
	}
	cfg := st.cfg
	ctx, span := trace.StartSpan(cmd.Context(), trace.ScopeDriver, "deduce")
	defer func() {
		detail := "ok"
		if err != nil {
			detail = err.Error()
		}
		span.WithExtra("files", fmt.Sprint(len(files))).End(detail)
	}()

	if st.cfgPath != "" {
		trace.Point(trace.FromContext(ctx), trace.ScopeDriver, "config", st.cfgPath)
	}

	timer := observ.NewTimer()
	snapshot := opts.snapshot
	if snapshot == "" {
		snapshot = cfg.Cache.Snapshot
	}

	var s *session.Session
	if err := timer.Measure("session", func() error {
		if snapshot == "" {
			s = session.New(cfg)
			return nil
		}
		var lerr error
		s, lerr = session.LoadOrNew(ctx, snapshot, cfg)
		return lerr
	}); err != nil {
		return err
	}
	defer s.Close()
	s.Types().SetTracer(trace.FromContext(ctx))

	out := cmd.OutOrStdout()
	useUI := opts.display.live(out, opts.format, opts.quiet)
	var (
		all    []fileReport
		failed int
		total  int
	)
	for _, path := range files {
		fr, err := deduceFile(ctx, s, timer, path, cfg.Batch.Jobs, st.progress, uiOut(useUI, out))
		if err != nil {
			return err
		}
		for _, r := range fr.Reports {
			total++
			if !r.OK() {
				failed++
			}
		}
		if opts.format == "pretty" {
			renderPretty(out, s, fr, opts)
		}
		all = append(all, fr)
	}

	if snapshot != "" {
		if err := timer.Measure("snapshot", func() error { return s.Save(ctx, snapshot) }); err != nil {
			return err
		}
	}

	stats := s.Stats()
	if opts.format == "json" {
		if err := renderJSON(out, s, all, stats); err != nil {
			return err
		}
	} else {
		renderSummary(out, total, failed, stats)
	}
	if opts.timings {
		printTimings(cmd.ErrOrStderr(), timer)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d %w", failed, total, errCallsFailed)
	}
	return nil
}

type fileReport struct {
	Path    string
	Reports []scenario.Report
}

// uiOut returns the writer the live view renders to, or nil for a plain run.
func uiOut(live bool, out io.Writer) io.Writer {
	if !live {
		return nil
	}
	return out
}

func deduceFile(ctx context.Context, s *session.Session, timer *observ.Timer, path string, jobs int, progress *callProgress, view io.Writer) (fileReport, error) {
	name := filepath.Base(path)
	var (
		file *scenario.File
		prog *scenario.Program
	)
	if err := timer.Measure("load "+name, func() (err error) {
		file, err = scenario.Load(path)
		return err
	}); err != nil {
		return fileReport{}, err
	}
	if err := timer.Measure("compile "+name, func() (err error) {
		prog, err = file.Compile(ctx, s)
		return err
	}); err != nil {
		return fileReport{}, err
	}

	var reports []scenario.Report
	err := timer.Measure("deduce "+name, func() (err error) {
		progress.planned(len(prog.Calls))
		if view != nil {
			reports, err = runWithUI(ctx, view, name, s, prog, jobs, progress)
			return err
		}
		reports, err = scenario.Run(ctx, s, prog, jobs, func(int, scenario.Report) { progress.finished() })
		return err
	})
	if err != nil {
		return fileReport{}, err
	}
	return fileReport{Path: path, Reports: reports}, nil
}
