package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestProgressModelCountsFinishedCalls(t *testing.T) {
	events := make(chan Event)
	m := NewProgressModel("basic.toml", []string{"identity(int)", "same(int, float)"}, events).(*progressModel)

	m.Update(eventMsg{Item: 0, Status: StatusPassed, Detail: "success"})
	m.Update(eventMsg{Item: 1, Status: StatusFailed, Detail: "inconsistent"})
	m.Update(eventMsg{Item: 1, Status: StatusFailed, Detail: "inconsistent"})
	m.Update(eventMsg{Item: 7, Status: StatusPassed})

	if m.finished != 2 || m.failed != 1 {
		t.Fatalf("finished=%d failed=%d, want 2 and 1", m.finished, m.failed)
	}
	view := m.View()
	for _, frag := range []string{"basic.toml (2/2, 1 failed)", "identity(int)", "mismatch", "inconsistent"} {
		if !strings.Contains(view, frag) {
			t.Errorf("view lacks %q:\n%s", frag, view)
		}
	}

	_, cmd := m.Update(doneMsg{})
	if cmd == nil {
		t.Fatalf("done must quit the program")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "done: ") {
		t.Fatalf("finished view should be marked done")
	}
}

func TestListenForEventReportsClose(t *testing.T) {
	events := make(chan Event, 1)
	m := NewProgressModel("x", []string{"a"}, events).(*progressModel)
	events <- Event{Item: 0, Status: StatusError}
	close(events)
	if msg, ok := m.listenForEvent()().(eventMsg); !ok || msg.Status != StatusError {
		t.Fatalf("expected the queued event, got %#v", msg)
	}
	if _, ok := m.listenForEvent()().(doneMsg); !ok {
		t.Fatalf("closed channel must yield doneMsg")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Vec<double>", 8); got != "Vec<d..." {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("int", 8); got != "int" {
		t.Fatalf("short labels are kept, got %q", got)
	}
}
