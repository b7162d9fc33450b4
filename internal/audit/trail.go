package audit

import (
	"context"
	"sync"
	"sync/atomic"
)

// TrailConfig sizes the queue in front of the audit sinks.
type TrailConfig struct {
	Enabled   bool
	QueueSize int
	// OnDrop is called, on the recording goroutine, with every event a full
	// queue turns away.
	OnDrop func(Event)
}

// Trail appends events to a sink from one writer goroutine, so persisted
// order follows Record order. Record never waits on the sink; a full queue
// turns the event away and counts it.
type Trail struct {
	sink    Sink
	queue   chan Event
	written chan struct{}
	onDrop  func(Event)
	dropped atomic.Uint64

	mu     sync.RWMutex
	sealed bool
}

// NewTrail starts the writer. A disabled config yields a nil *Trail, whose
// methods are no-ops.
func NewTrail(cfg TrailConfig, sink Sink) *Trail {
	if !cfg.Enabled {
		return nil
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	t := &Trail{
		sink:    sink,
		queue:   make(chan Event, cfg.QueueSize),
		written: make(chan struct{}),
		onDrop:  cfg.OnDrop,
	}
	go t.write()
	return t
}

func (t *Trail) write() {
	defer close(t.written)
	for ev := range t.queue {
		t.sink.Emit(context.Background(), ev)
	}
}

// Record queues ev and reports whether it was accepted. Events recorded
// after Seal are ignored and not counted as dropped.
func (t *Trail) Record(ev Event) bool {
	if t == nil {
		return false
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.sealed {
		return false
	}

	select {
	case t.queue <- ev:
		return true
	default:
		t.dropped.Add(1)
		if t.onDrop != nil {
			t.onDrop(ev)
		}
		return false
	}
}

// Seal stops accepting events and returns once every queued event has
// reached the sink. Further calls return immediately.
func (t *Trail) Seal() {
	if t == nil {
		return
	}

	t.mu.Lock()
	if !t.sealed {
		t.sealed = true
		close(t.queue)
	}
	t.mu.Unlock()

	<-t.written
}

// Pending returns the number of queued events not yet written.
func (t *Trail) Pending() int {
	if t == nil {
		return 0
	}
	return len(t.queue)
}

// Dropped returns the number of events turned away by a full queue.
func (t *Trail) Dropped() uint64 {
	if t == nil {
		return 0
	}
	return t.dropped.Load()
}
