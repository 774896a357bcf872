package audit

import (
	"context"
	"sync"
	"testing"
	"time"
)

type collectSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *collectSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *collectSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestDispatcherDisabledReturnsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, NoOpSink{}); d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}

	// Nil dispatchers are safe to use.
	var d *Dispatcher
	d.Emit(context.Background(), Event{Action: "noop"})
	d.Close()
	if got := d.Dropped(); got != 0 {
		t.Fatalf("nil dispatcher Dropped = %d", got)
	}
}

func TestDispatcherCloseDrainsBuffer(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Action: "login", Timestamp: int64(i + 1)})
	}
	d.Close()

	if got := len(sink.all()); got != 10 {
		t.Fatalf("expected 10 delivered events after Close, got %d", got)
	}

	// Emitting after Close is a no-op.
	d.Emit(context.Background(), Event{Action: "late"})
	if got := len(sink.all()); got != 10 {
		t.Fatalf("post-Close emit must be dropped, got %d events", got)
	}
}

func TestDispatcherStampsMissingTimestamps(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_123_456)
	sink := &collectSink{}
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 4,
		Now:        func() time.Time { return fixed },
	}, sink)

	d.Emit(context.Background(), Event{Action: "unstamped"})
	d.Emit(context.Background(), Event{Action: "stamped", Timestamp: 42})
	d.Close()

	events := sink.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	for _, e := range events {
		switch e.Action {
		case "unstamped":
			if e.Timestamp != fixed.UnixMilli() {
				t.Fatalf("unstamped event got timestamp %d", e.Timestamp)
			}
		case "stamped":
			if e.Timestamp != 42 {
				t.Fatalf("stamped event was overwritten: %d", e.Timestamp)
			}
		}
	}
}

type blockingSink struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func (s *blockingSink) Emit(context.Context, Event) {
	s.once.Do(func() { close(s.entered) })
	<-s.release
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{
		release: make(chan struct{}),
		entered: make(chan struct{}),
	}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// First event occupies the sink, second fills the buffer, the rest drop.
	d.Emit(context.Background(), Event{Action: "a"})
	<-sink.entered
	d.Emit(context.Background(), Event{Action: "b"})
	d.Emit(context.Background(), Event{Action: "c"})
	d.Emit(context.Background(), Event{Action: "d"})

	if got := d.Dropped(); got == 0 {
		t.Fatal("expected dropped events once the buffer filled")
	}

	close(sink.release)
	d.Close()
}
