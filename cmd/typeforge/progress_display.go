package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// progressDisplay selects how deduce shows calls while a batch runs.
type progressDisplay uint8

const (
	// progressAuto renders live progress only when the report goes to a terminal.
	progressAuto progressDisplay = iota
	progressLive
	progressPlain
)

func (d progressDisplay) String() string {
	switch d {
	case progressLive:
		return "on"
	case progressPlain:
		return "off"
	default:
		return "auto"
	}
}

func parseProgressDisplay(value string) (progressDisplay, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "auto":
		return progressAuto, nil
	case "on", "live":
		return progressLive, nil
	case "off", "plain":
		return progressPlain, nil
	}
	return progressAuto, fmt.Errorf("invalid --ui value %q (expected auto|on|off)", value)
}

// live reports whether the Bubble Tea view should render the batch. JSON and
// quiet reports are always plain, since the view would interleave with them.
func (d progressDisplay) live(out io.Writer, format string, quiet bool) bool {
	if format != "pretty" || quiet {
		return false
	}
	switch d {
	case progressLive:
		return true
	case progressPlain:
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
