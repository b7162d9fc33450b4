package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goMagicLink/internal/stores"
	"github.com/MrEthical07/goMagicLink/internal/stores/redisstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

var t0 = time.UnixMilli(1_700_000_000_000).UTC()

func newTestStore(t *testing.T) *redisstore.Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client, "at")
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	got     []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.got = append(s.got, e)
	s.mu.Unlock()
}

func TestTrailTurnsEventsAwayWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	var onDrop []string
	tr := NewTrail(TrailConfig{
		Enabled:   true,
		QueueSize: 2,
		OnDrop:    func(ev Event) { onDrop = append(onDrop, ev.ID) },
	}, sink)

	start := time.Now()
	accepted := 0
	for i := 0; i < 20; i++ {
		if tr.Record(Event{ID: fmt.Sprint(i), Action: "validate_attempt"}) {
			accepted++
		}
	}
	if time.Since(start) > time.Second {
		t.Fatalf("Record must not block")
	}

	// At most one event in flight plus two queued.
	if accepted > 3 || tr.Dropped() < 17 {
		t.Fatalf("expected at most 3 accepted, got accepted=%d dropped=%d", accepted, tr.Dropped())
	}
	if uint64(len(onDrop)) != tr.Dropped() {
		t.Fatalf("OnDrop saw %d events, counter says %d", len(onDrop), tr.Dropped())
	}

	close(sink.release)
	tr.Seal()

	sink.mu.Lock()
	delivered := len(sink.got)
	sink.mu.Unlock()
	if delivered != accepted || uint64(delivered)+tr.Dropped() != 20 {
		t.Fatalf("delivered %d, accepted %d, dropped %d", delivered, accepted, tr.Dropped())
	}
	if tr.Pending() != 0 {
		t.Fatalf("sealed trail must have nothing pending, got %d", tr.Pending())
	}
}

func TestTrailPreservesRecordOrder(t *testing.T) {
	sink := NewChannelSink(64)
	tr := NewTrail(TrailConfig{Enabled: true, QueueSize: 64}, sink)

	for i := 0; i < 50; i++ {
		if !tr.Record(Event{ID: fmt.Sprint(i)}) {
			t.Fatalf("event %d turned away", i)
		}
	}
	tr.Seal()

	for i := 0; i < 50; i++ {
		ev := <-sink.Events()
		if ev.ID != fmt.Sprint(i) {
			t.Fatalf("expected event %d, got %s", i, ev.ID)
		}
	}
}

func TestTrailIgnoresRecordsAfterSeal(t *testing.T) {
	sink := NewChannelSink(4)
	tr := NewTrail(TrailConfig{Enabled: true, QueueSize: 4}, sink)
	tr.Seal()
	tr.Seal()

	if tr.Record(Event{ID: "late"}) {
		t.Fatal("sealed trail must not accept events")
	}
	if tr.Dropped() != 0 {
		t.Fatalf("late events are not drops, got %d", tr.Dropped())
	}
	select {
	case ev := <-sink.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestTrailDisabledIsNil(t *testing.T) {
	tr := NewTrail(TrailConfig{Enabled: false}, NoOpSink{})
	if tr != nil {
		t.Fatalf("disabled trail must be nil")
	}
	if tr.Record(Event{}) {
		t.Fatalf("nil trail must not accept events")
	}
	tr.Seal()
	if tr.Dropped() != 0 || tr.Pending() != 0 {
		t.Fatalf("nil trail must report zero drops and nothing pending")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{ID: "1", Action: "request_sent", Success: true, Identity: "a@x.com"})
	sink.Emit(context.Background(), Event{ID: "2", Action: "rate_limited"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var ev Event
	if err := json.Unmarshal([]byte(lines[0]), &ev); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if ev.Action != "request_sent" || ev.Identity != "a@x.com" || !ev.Success {
		t.Fatalf("unexpected decoded event %+v", ev)
	}
}

type failingAuditStore struct {
	stores.AuditStore
}

func (failingAuditStore) AppendAudit(context.Context, stores.AuditEvent) error {
	return fmt.Errorf("%w: disk full", stores.ErrUnavailable)
}

func TestStoreSinkReportsFailures(t *testing.T) {
	var (
		gotErr   error
		gotEvent Event
	)
	sink := NewStoreSink(failingAuditStore{}, time.Second, func(err error, ev Event) {
		gotErr = err
		gotEvent = ev
	})

	sink.Emit(context.Background(), Event{Action: "token_used"})

	if !errors.Is(gotErr, stores.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable in handler, got %v", gotErr)
	}
	if gotEvent.Action != "token_used" || gotEvent.ID == "" {
		t.Fatalf("handler must receive the event with an id, got %+v", gotEvent)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a := NewChannelSink(1)
	b := NewChannelSink(1)
	MultiSink{a, nil, b}.Emit(context.Background(), Event{ID: "x"})

	if (<-a.Events()).ID != "x" || (<-b.Events()).ID != "x" {
		t.Fatalf("both sinks must receive the event")
	}
}

func seed(t *testing.T, store stores.AuditStore) {
	t.Helper()

	events := []Event{
		{ID: "e0", Timestamp: t0, Identity: "a@x.com", UserID: "u1", Action: "validate_success", Success: true},
		{ID: "e1", Timestamp: t0.Add(time.Minute), Identity: "a@x.com", Action: "validate_failure"},
		{ID: "e2", Timestamp: t0.Add(2 * time.Minute), Identity: "b@x.com", UserID: "u2", Action: "validate_success", Success: true},
		{ID: "e3", Timestamp: t0.Add(3 * time.Minute), Identity: "b@x.com", Action: "rate_limited"},
		{ID: "e4", Timestamp: t0.Add(-48 * time.Hour), Identity: "c@x.com", Action: "validate_success", Success: true},
	}
	sink := NewStoreSink(store, time.Second, func(err error, _ Event) {
		t.Fatalf("unexpected sink error: %v", err)
	})
	for _, ev := range events {
		sink.Emit(context.Background(), ev)
	}
}

func TestLogQueryLimits(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	log := NewLog(store, LogConfig{DefaultQueryLimit: 2, MaxQueryLimit: 3})
	ctx := context.Background()

	page, err := log.Query(ctx, stores.AuditFilter{})
	if err != nil || len(page) != 2 || page[0].ID != "e3" {
		t.Fatalf("default limit page: %+v err=%v", page, err)
	}

	page, err = log.Query(ctx, stores.AuditFilter{Limit: 100})
	if err != nil || len(page) != 3 {
		t.Fatalf("limit must clamp to 3, got %d err=%v", len(page), err)
	}

	page, err = log.Query(ctx, stores.AuditFilter{Identity: "a@x.com", Limit: 10})
	if err != nil || len(page) != 2 || page[0].ID != "e1" || page[1].ID != "e0" {
		t.Fatalf("identity page: %+v err=%v", page, err)
	}

	page, err = log.Query(ctx, stores.AuditFilter{Action: "validate_success", Offset: 1, Limit: 10})
	if err != nil || len(page) != 2 || page[0].ID != "e0" {
		t.Fatalf("action page with offset: %+v err=%v", page, err)
	}
}

func TestLogStats(t *testing.T) {
	store := newTestStore(t)
	seed(t, store)
	log := NewLog(store, LogConfig{})
	ctx := context.Background()
	now := t0.Add(10 * time.Minute)

	st, err := log.Stats(ctx, 24*time.Hour, "", now)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if st.TotalEvents != 4 || st.SuccessfulEvents != 2 || st.FailedEvents != 2 {
		t.Fatalf("unexpected totals %+v", st)
	}
	if st.UniqueIdentities != 2 || st.UniqueUsers != 2 {
		t.Fatalf("unexpected uniques %+v", st)
	}
	if got := st.Actions["validate_success"]; got != (ActionStats{Total: 2, Successful: 2}) {
		t.Fatalf("unexpected breakdown %+v", got)
	}
	if !st.WindowStart.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("unexpected window start %v", st.WindowStart)
	}

	st, err = log.Stats(ctx, 24*time.Hour, "rate_limited", now)
	if err != nil || st.TotalEvents != 1 || st.FailedEvents != 1 || len(st.Actions) != 1 {
		t.Fatalf("action-filtered stats: %+v err=%v", st, err)
	}
}
