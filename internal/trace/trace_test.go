package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestStreamTracerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatText)

	Point(tr, ScopeSession, "declare", "f")
	Point(tr, ScopeCall, "deduce", "hidden at phase level")

	out := buf.String()
	if !strings.Contains(out, "session:declare (f)") {
		t.Fatalf("missing session event in %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("call-scope event leaked at phase level: %q", out)
	}
}

func TestStreamTracerNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatNDJSON)
	span := Begin(tr, ScopeCall, "deduce", 0)
	span.WithExtra("result", "success").End("f")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected begin+end lines, got %d: %q", len(lines), buf.String())
	}
	var end jsonEvent
	if err := json.Unmarshal([]byte(lines[1]), &end); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if end.Kind != "end" || end.Extra["result"] != "success" || end.Detail != "f" {
		t.Fatalf("unexpected end event %+v", end)
	}
}

func TestRingTracerWraps(t *testing.T) {
	ring := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(ring, ScopeNode, name, "")
	}
	events := ring.Snapshot()
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	got := []string{events[0].Name, events[1].Name, events[2].Name}
	if strings.Join(got, "") != "cde" {
		t.Fatalf("expected chronological tail cde, got %v", got)
	}
}

func TestStartSpanPropagatesParent(t *testing.T) {
	ring := NewRingTracer(16, LevelDetail)
	ctx := WithTracer(context.Background(), ring)

	ctx, outer := StartSpan(ctx, ScopeSession, "batch")
	_, inner := StartSpan(ctx, ScopeCall, "deduce")
	inner.End("")
	outer.End("")

	events := ring.Snapshot()
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[1].ParentID != outer.ID() {
		t.Fatalf("inner span parent = %d, want %d", events[1].ParentID, outer.ID())
	}
}

func TestNopTracerWhenLevelOff(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if tr.Enabled() {
		t.Fatalf("level off must produce a disabled tracer")
	}
	if FromContext(context.Background()) != Nop {
		t.Fatalf("empty context must yield Nop")
	}
}

func TestParseLevelAndMode(t *testing.T) {
	if l, err := ParseLevel("DETAIL"); err != nil || l != LevelDetail {
		t.Fatalf("ParseLevel(DETAIL) = %v, %v", l, err)
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if m, err := ParseMode("both"); err != nil || m != ModeBoth {
		t.Fatalf("ParseMode(both) = %v, %v", m, err)
	}
}

func TestHeartbeatStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	ring := NewRingTracer(64, LevelPhase)
	hb := StartHeartbeat(ring, time.Millisecond, func() string { return "calls 2/5" })
	time.Sleep(10 * time.Millisecond)
	hb.Stop()
	hb.Stop()

	events := ring.Snapshot()
	if len(events) == 0 {
		t.Fatalf("expected at least one heartbeat")
	}
	if got := events[0].Detail; got != "#1 calls 2/5" {
		t.Fatalf("heartbeat detail = %q", got)
	}
	if StartHeartbeat(Nop, time.Millisecond, nil) != nil {
		t.Fatalf("disabled tracer must not start a heartbeat")
	}
}

func TestBatchItemPropagates(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)
	ctx := WithTracer(context.Background(), tr)

	ctx, batch := StartSpan(ctx, ScopeSession, "batch")
	_, call := StartSpan(WithItem(ctx, 3), ScopeCall, "deduce")
	call.End("f")
	batch.End("")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %q", buf.String())
	}
	if strings.Contains(lines[0], "#") {
		t.Fatalf("batch span must not carry an item: %q", lines[0])
	}
	if !strings.Contains(lines[1], "#3 ") || !strings.Contains(lines[2], "#3 ") {
		t.Fatalf("call span must carry item 3: %q", buf.String())
	}
	if CurrentSpan(ctx).Item != 0 {
		t.Fatalf("WithItem must not leak into the parent context")
	}
}

func TestNDJSONCarriesItem(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatNDJSON)
	ctx := WithItem(WithTracer(context.Background(), tr), 7)
	_, span := StartSpan(ctx, ScopeCall, "deduce")
	span.End("")

	var ev jsonEvent
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if err := json.Unmarshal([]byte(first), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Item != 7 {
		t.Fatalf("item = %d, want 7", ev.Item)
	}
}
