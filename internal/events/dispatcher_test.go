package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func waitForEvent(t *testing.T, stream <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case event := <-stream:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return ChangeEvent{}
	}
}

func TestPublishReachesScopedSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, unsubscribe := dispatcher.Subscribe(ctx, "blog_comments", "post-1")
	defer unsubscribe()

	published := ChangeEvent{
		Table:     "blog_comments",
		Type:      EventInsert,
		PostID:    "post-1",
		RowID:     "comment-1",
		Row:       json.RawMessage(`{"id":"comment-1"}`),
		Timestamp: time.Unix(1755000000, 0).UTC(),
	}
	dispatcher.Publish(published)

	received := waitForEvent(t, stream)
	if received.RowID != "comment-1" {
		t.Fatalf("unexpected row id: %q", received.RowID)
	}
	if received.Type != EventInsert {
		t.Fatalf("unexpected event type: %q", received.Type)
	}
}

func TestPublishDoesNotCrossPostScopes(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, unsubscribe := dispatcher.Subscribe(ctx, "blog_comments", "post-1")
	defer unsubscribe()

	dispatcher.Publish(ChangeEvent{Table: "blog_comments", Type: EventInsert, PostID: "post-2", RowID: "other"})

	select {
	case event := <-stream:
		t.Fatalf("event leaked across post scopes: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishDoesNotCrossTables(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, unsubscribe := dispatcher.Subscribe(ctx, "guestbook", "")
	defer unsubscribe()

	dispatcher.Publish(ChangeEvent{Table: "blog_comments", Type: EventInsert, PostID: "post-1", RowID: "c-1"})

	select {
	case event := <-stream:
		t.Fatalf("event leaked across tables: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, unsubscribe := dispatcher.Subscribe(ctx, "guestbook", "")
	unsubscribe()

	dispatcher.Publish(ChangeEvent{Table: "guestbook", Type: EventInsert, RowID: "entry-1"})

	select {
	case event := <-stream:
		t.Fatalf("received event after unsubscribe: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestContextCancellationReleasesSubscription(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, _ = dispatcher.Subscribe(ctx, "guestbook", "")
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		dispatcher.mu.RLock()
		remaining := len(dispatcher.subscribers)
		dispatcher.mu.RUnlock()
		if remaining == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("subscription not released after context cancellation")
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, unsubscribe := dispatcher.Subscribe(ctx, "guestbook", "")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			dispatcher.Publish(ChangeEvent{Table: "guestbook", Type: EventInsert, RowID: "entry"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publisher blocked on a slow subscriber")
	}

	drained := 0
	for {
		select {
		case <-stream:
			drained++
		default:
			if drained == 0 || drained > 16 {
				t.Fatalf("expected between 1 and buffer-size buffered events, got %d", drained)
			}
			return
		}
	}
}

func TestPublishIgnoresMalformedEvents(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, unsubscribe := dispatcher.Subscribe(ctx, "guestbook", "")
	defer unsubscribe()

	dispatcher.Publish(ChangeEvent{Table: "", Type: EventInsert, RowID: "x"})
	dispatcher.Publish(ChangeEvent{Table: "guestbook", Type: "", RowID: "x"})

	select {
	case event := <-stream:
		t.Fatalf("malformed event delivered: %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

type countingPublisher struct {
	events []ChangeEvent
}

func (p *countingPublisher) Publish(event ChangeEvent) {
	p.events = append(p.events, event)
}

func TestFanoutForwardsToAllPublishersAndSkipsNil(t *testing.T) {
	first := &countingPublisher{}
	second := &countingPublisher{}
	fanout := NewFanout(first, nil, second)

	fanout.Publish(ChangeEvent{Table: "guestbook", Type: EventDelete, RowID: "entry-1"})

	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("expected both publishers to receive the event, got %d and %d", len(first.events), len(second.events))
	}
	if first.events[0].RowID != "entry-1" {
		t.Fatalf("unexpected row id: %q", first.events[0].RowID)
	}
}
