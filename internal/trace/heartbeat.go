package trace

import (
	"strconv"
	"sync"
	"time"
)

// Heartbeat periodically emits liveness events so a stuck batch is visible
// in the trace: heartbeats keep arriving while span ends stop. Each beat
// carries the status reported by the session's owner, such as how many
// calls have finished.
type Heartbeat struct {
	tracer   Tracer
	interval time.Duration
	status   func() string
	stopCh   chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// StartHeartbeat starts emitting at the given interval. status may be nil.
// It returns nil when tracing is disabled or the interval is not positive.
func StartHeartbeat(tracer Tracer, interval time.Duration, status func() string) *Heartbeat {
	if tracer == nil || !tracer.Enabled() || interval <= 0 {
		return nil
	}
	h := &Heartbeat{
		tracer:   tracer,
		interval: interval,
		status:   status,
		stopCh:   make(chan struct{}),
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Heartbeat) run() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var beats uint64
	for {
		select {
		case <-ticker.C:
			beats++
			h.tracer.Emit(h.beat(beats))
		case <-h.stopCh:
			return
		}
	}
}

func (h *Heartbeat) beat(n uint64) *Event {
	ev := &Event{
		Time:   time.Now(),
		Seq:    NextSeq(),
		Kind:   KindHeartbeat,
		Scope:  ScopeDriver,
		Name:   "heartbeat",
		Detail: "#" + strconv.FormatUint(n, 10),
	}
	if h.status != nil {
		if s := h.status(); s != "" {
			ev.Detail += " " + s
		}
	}
	return ev
}

// Stop halts the heartbeat goroutine and waits for it to exit. Safe to call
// more than once and on a nil Heartbeat.
func (h *Heartbeat) Stop() {
	if h == nil {
		return
	}
	h.once.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}
