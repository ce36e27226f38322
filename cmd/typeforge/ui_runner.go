package main

import (
	"context"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"typeforge/internal/scenario"
	"typeforge/internal/session"
	"typeforge/internal/ui"
)

type runOutcome struct {
	reports []scenario.Report
	err     error
}

// runWithUI runs prog while a Bubble Tea program renders per-call progress.
func runWithUI(ctx context.Context, out io.Writer, title string, s *session.Session, prog *scenario.Program, jobs int, progress *callProgress) ([]scenario.Report, error) {
	labels := make([]string, len(prog.Calls))
	for i, c := range prog.Calls {
		labels[i] = c.Label()
	}
	events := make(chan ui.Event, 256)
	outcomeCh := make(chan runOutcome, 1)

	go func() {
		reports, err := scenario.Run(ctx, s, prog, jobs, func(_ int, r scenario.Report) {
			progress.finished()
			events <- ui.Event{Item: r.Index, Status: reportStatus(r), Detail: r.Result.Kind.String()}
		})
		outcomeCh <- runOutcome{reports: reports, err: err}
		close(events)
	}()

	program := tea.NewProgram(ui.NewProgressModel(title, labels, events), tea.WithOutput(out), tea.WithContext(ctx))
	_, uiErr := program.Run()
	// The program may stop before the last event; drain so the runner
	// never blocks on a full channel.
	go func() {
		for range events {
		}
	}()
	outcome := <-outcomeCh
	if outcome.err != nil {
		return nil, outcome.err
	}
	return outcome.reports, uiErr
}

func reportStatus(r scenario.Report) ui.Status {
	switch {
	case r.Err != nil:
		return ui.StatusError
	case !r.OK():
		return ui.StatusFailed
	default:
		return ui.StatusPassed
	}
}
