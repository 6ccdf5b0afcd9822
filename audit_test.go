package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

// blockingSink holds the dispatcher goroutine until released so tests
// can fill the buffer deterministically.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	seen    []AuditEvent
}

func newBlockingSink() *blockingSink {
	return &blockingSink{release: make(chan struct{})}
}

func (s *blockingSink) Emit(_ context.Context, event AuditEvent) {
	<-s.release
	s.mu.Lock()
	s.seen = append(s.seen, event)
	s.mu.Unlock()
}

func (s *blockingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestAuditDispatcherDeliversAndDrains(t *testing.T) {
	sink := NewChannelSink(16)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 16}, sink)

	for i := 0; i < 5; i++ {
		if !d.Emit(context.Background(), AuditEvent{EventType: auditEventSignInSuccess}) {
			t.Fatalf("emit %d refused with room in the buffer", i)
		}
	}
	d.Close()

	if d.Emit(context.Background(), AuditEvent{EventType: auditEventSignInSuccess}) {
		t.Fatal("emit accepted after Close")
	}

	got := 0
	for {
		select {
		case <-sink.Events():
			got++
		case <-time.After(time.Second):
			if got != 5 {
				t.Fatalf("delivered %d events, want 5", got)
			}
			return
		}
	}
}

func TestAuditDispatcherDropIfFull(t *testing.T) {
	sink := newBlockingSink()
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 2, DropIfFull: true}, sink)

	// One event is pulled into the sink (where it blocks), two fill
	// the buffer, the rest must be dropped.
	refused := uint64(0)
	for i := 0; i < 10; i++ {
		if !d.Emit(context.Background(), AuditEvent{EventType: auditEventSignInFailure}) {
			refused++
		}
	}

	if d.Dropped() == 0 {
		t.Fatal("no events dropped with a full buffer")
	}
	if refused != d.Dropped() {
		t.Fatalf("emit refused %d events, drop counter says %d", refused, d.Dropped())
	}

	close(sink.release)
	d.Close()

	if got := d.Dropped() + uint64(sink.count()); got != 10 {
		t.Fatalf("delivered+dropped = %d, want 10", got)
	}
}

func TestAuditDispatcherDisabled(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{}, NoOpSink{})
	if d != nil {
		t.Fatal("disabled config built a dispatcher")
	}

	// Nil dispatchers absorb every call.
	if d.Emit(context.Background(), AuditEvent{}) {
		t.Fatal("nil dispatcher accepted an event")
	}
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

func TestJSONWriterSinkWritesLines(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		EventType: auditEventPasswordChangeSuccess,
		UserID:    "u1",
		Success:   true,
	})
	sink.Emit(context.Background(), AuditEvent{
		EventType: auditEventSignInFailure,
		Email:     "ann@example.com",
		Success:   false,
		Error:     string(auditErrInvalidCredentials),
	})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("wrote %d lines, want 2", len(lines))
	}

	var first AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line 1 is not valid JSON: %v", err)
	}
	if first.EventType != auditEventPasswordChangeSuccess || first.UserID != "u1" || !first.Success {
		t.Fatalf("unexpected first event: %+v", first)
	}

	var second AuditEvent
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("line 2 is not valid JSON: %v", err)
	}
	if second.Error != string(auditErrInvalidCredentials) {
		t.Fatalf("unexpected error code: %q", second.Error)
	}
}

func TestEngineEmitsAuditEvents(t *testing.T) {
	mr, rdb := newTestRedis(t)
	defer mr.Close()

	sink := NewChannelSink(64)

	cfg := fastTestConfig()
	store := newMockStore()
	sender := newCaptureSender()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(store).
		WithSender(sender).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.SignUp(ctx, "ann@example.com", "Test User", "Str0ng-pass"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if _, err := engine.SignIn(ctx, "ann@example.com", "wrong-pass-1A"); err == nil {
		t.Fatal("bad sign-in succeeded")
	}

	events := map[string]AuditEvent{}
	deadline := time.After(2 * time.Second)
	for len(events) < 2 {
		select {
		case ev := <-sink.Events():
			events[ev.EventType] = ev
		case <-deadline:
			t.Fatalf("saw %d event types, want sign-up and sign-in failure", len(events))
		}
	}

	signup, ok := events[auditEventSignUpSuccess]
	if !ok {
		t.Fatal("no sign-up event")
	}
	if !signup.Success || signup.Email != "ann@example.com" || signup.IP != "203.0.113.9" {
		t.Fatalf("unexpected sign-up event: %+v", signup)
	}

	failure, ok := events[auditEventSignInFailure]
	if !ok {
		t.Fatal("no sign-in failure event")
	}
	if failure.Success || failure.Error == "" {
		t.Fatalf("unexpected failure event: %+v", failure)
	}
}
