package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeDocumentUpdated, Data: map[string]string{"uri": "file:///a.md"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: document.updated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"uri":"file:///a.md"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishDocumentEvent_TargetsThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger targets.updated.
	b.PublishDocumentEvent(TypeDocumentUpdated, "file:///a.md")
	// Second event immediately should NOT trigger another targets.updated.
	b.PublishDocumentEvent(TypeDocumentRemoved, "file:///b.md")
	// Unknown kinds are dropped.
	b.PublishDocumentEvent("document.renamed", "file:///c.md")

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	targetsCount := 0
	docCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "targets.updated") {
				targetsCount++
			} else {
				docCount++
			}
		default:
			break loop
		}
	}

	if docCount != 2 {
		t.Errorf("document events = %d, want 2", docCount)
	}
	if targetsCount != 1 {
		t.Errorf("targets events = %d, want 1 (throttled)", targetsCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: TypeDocumentUpdated, Data: map[string]string{"uri": "file:///x.md"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: document.updated") {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("handler output missing retry hint: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: TypeDocumentUpdated, Data: map[string]string{"uri": "file:///x.md"}})
	b.PublishDocumentEvent(TypeDocumentUpdated, "file:///x.md")
}

func TestPublishDocumentEvent_ProjectScanned(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishDocumentEvent(TypeProjectScanned, "")
	b.PublishDocumentEvent(TypeProjectScanned, "")

	for range 2 {
		select {
		case msg := <-ch:
			if !strings.Contains(string(msg), "event: project.scanned") {
				t.Errorf("unexpected message %q", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for project.scanned")
		}
	}
}

func TestSubscribeURI_FiltersDocumentEvents(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()

	all := b.Subscribe()
	onlyA := b.SubscribeURI("file:///a.md")

	b.PublishDocumentEvent(TypeDocumentUpdated, "file:///b.md")
	b.PublishDocumentEvent(TypeDocumentUpdated, "file:///a.md")

	// all: b.md update, targets.updated, a.md update.
	var got []string
	for range 3 {
		select {
		case msg := <-all:
			got = append(got, string(msg))
		case <-time.After(time.Second):
			t.Fatalf("all: got %d messages, want 3", len(got))
		}
	}
	if !strings.Contains(got[0], "b.md") || !strings.Contains(got[2], "a.md") {
		t.Errorf("all subscriber order: %q", got)
	}

	// onlyA misses the b.md update but still sees project-wide events.
	want := []string{"event: targets.updated", "a.md"}
	for _, w := range want {
		select {
		case msg := <-onlyA:
			if !strings.Contains(string(msg), w) {
				t.Errorf("filtered subscriber got %q, want %q", msg, w)
			}
		case <-time.After(time.Second):
			t.Fatalf("filtered subscriber: timeout waiting for %q", w)
		}
	}
}

func TestFrame_SequenceIDs(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()

	b.Publish(Event{Type: "one", Data: 1})
	b.Publish(Event{Type: "two", Data: 2})

	for i, want := range []string{"id: 1\nevent: one\ndata: 1\n\n", "id: 2\nevent: two\ndata: 2\n\n"} {
		select {
		case msg := <-ch:
			if string(msg) != want {
				t.Errorf("message %d = %q, want %q", i, msg, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout")
		}
	}
}
