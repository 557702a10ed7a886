package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func drain(ch chan []byte, wait time.Duration) []string {
	var out []string
	deadline := time.After(wait)
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		case <-deadline:
			return out
		}
	}
}

func count(msgs []string, typ string) int {
	n := 0
	for _, m := range msgs {
		if strings.Contains(m, "event: "+typ+"\n") {
			n++
		}
	}
	return n
}

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

	b.Publish(Event{Type: NoteSaved, Data: map[string]string{"name": "lecture"}})
	b.Publish(Event{Type: RewriteStaged, Data: map[string]string{"phase": "staged"}})

	msgs := drain(ch, 100*time.Millisecond)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if !strings.HasPrefix(msgs[0], "id: 1\nevent: note.saved\n") {
		t.Errorf("first message = %q", msgs[0])
	}
	if !strings.Contains(msgs[0], `"name":"lecture"`) {
		t.Errorf("missing data in %q", msgs[0])
	}
	if !strings.HasPrefix(msgs[1], "id: 2\n") {
		t.Errorf("ids not sequential: %q", msgs[1])
	}
}

func TestNotesChangedThrottle(t *testing.T) {
	b := NewBroker(200 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// The first change goes out at once; the burst after it is coalesced
	// into a single trailing event.
	b.PublishNotesChanged("a")
	b.PublishNotesChanged("b")
	b.PublishNotesChanged("c")

	early := drain(ch, 50*time.Millisecond)
	if n := count(early, NotesChanged); n != 1 {
		t.Fatalf("immediate notes.changed = %d, want 1", n)
	}

	late := drain(ch, 400*time.Millisecond)
	if n := count(late, NotesChanged); n != 1 {
		t.Fatalf("trailing notes.changed = %d, want 1", n)
	}
	if !strings.Contains(late[0], `"b"`) || !strings.Contains(late[0], `"c"`) {
		t.Errorf("trailing event should carry coalesced names: %q", late[0])
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

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

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: SessionChanged, Data: map[string]string{"name": "x"}})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	if body := w.Body.String(); !strings.Contains(body, "event: session.changed") {
		t.Errorf("handler output missing event: %q", body)
	}

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

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	// Reaching here without deadlock is the assertion.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	b.PublishNotesChanged("a")
	b.PublishNotesChanged("b") // leaves a trailing timer armed

	b.Close()

	timeout := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if ok {
				continue
			}
		case <-timeout:
			t.Fatal("timeout waiting for channel close")
		}
		break
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: NoteSaved, Data: nil})
	b.PublishNotesChanged("x")
	b.Close()
}
