package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/MrEthical07/goMagicLink/internal"
	"github.com/MrEthical07/goMagicLink/internal/stores"
)

// Event is the canonical audit event model used by internal dispatching and root APIs.
type Event struct {
	ID          string            `json:"id"`
	Timestamp   time.Time         `json:"timestamp"`
	Identity    string            `json:"identity,omitempty"`
	UserID      string            `json:"user_id,omitempty"`
	Action      string            `json:"action"`
	Success     bool              `json:"success"`
	ErrorDetail string            `json:"error,omitempty"`
	IPAddress   string            `json:"ip,omitempty"`
	UserAgent   string            `json:"user_agent,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	TokenID     string            `json:"token_id,omitempty"`
	RequestID   string            `json:"request_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ToRecord converts e to its persisted form.
func (e Event) ToRecord() stores.AuditEvent {
	return stores.AuditEvent{
		ID:          e.ID,
		Timestamp:   e.Timestamp,
		Identity:    e.Identity,
		UserID:      e.UserID,
		Action:      e.Action,
		Success:     e.Success,
		ErrorDetail: e.ErrorDetail,
		IPAddress:   e.IPAddress,
		UserAgent:   e.UserAgent,
		SessionID:   e.SessionID,
		TokenID:     e.TokenID,
		RequestID:   e.RequestID,
		Metadata:    e.Metadata,
	}
}

// FromRecord converts a persisted event.
func FromRecord(r stores.AuditEvent) Event {
	return Event{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		Identity:    r.Identity,
		UserID:      r.UserID,
		Action:      r.Action,
		Success:     r.Success,
		ErrorDetail: r.ErrorDetail,
		IPAddress:   r.IPAddress,
		UserAgent:   r.UserAgent,
		SessionID:   r.SessionID,
		TokenID:     r.TokenID,
		RequestID:   r.RequestID,
		Metadata:    r.Metadata,
	}
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// ErrorHandler receives sink failures. It must not block.
type ErrorHandler func(err error, event Event)

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{
		events: make(chan Event, buffer),
	}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{
		writer: w,
	}
}

func (s *JSONWriterSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}

// MultiSink fans one event out to every sink in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, event Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, event)
		}
	}
}

// StoreSink persists events through an AuditStore. Write failures go to
// the error handler and are otherwise swallowed.
type StoreSink struct {
	store   stores.AuditStore
	timeout time.Duration
	onError ErrorHandler
}

// NewStoreSink creates a sink writing to store with a per-write timeout.
func NewStoreSink(store stores.AuditStore, timeout time.Duration, onError ErrorHandler) *StoreSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &StoreSink{store: store, timeout: timeout, onError: onError}
}

func (s *StoreSink) Emit(ctx context.Context, event Event) {
	if s == nil || s.store == nil {
		return
	}
	if event.ID == "" {
		event.ID = internal.NewID()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.AppendAudit(ctx, event.ToRecord()); err != nil && s.onError != nil {
		s.onError(err, event)
	}
}
