package events

import (
	"context"
	"sync"
)

// Dispatcher fans change events out to in-process subscribers. Subscriptions
// are scoped the way the browser scoped its channels: by table, optionally
// narrowed to a single post.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan ChangeEvent
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for the given table and optional post scope.
// The returned cleanup releases the channel; cancelling ctx does the same.
func (d *Dispatcher) Subscribe(ctx context.Context, table, postID string) (<-chan ChangeEvent, func()) {
	if table == "" {
		ch := make(chan ChangeEvent)
		close(ch)
		return ch, func() {}
	}
	topic := topicKey(table, postID)
	listener := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan ChangeEvent, d.bufferSize),
	}
	d.register(topic, listener)
	cleanup := func() {
		d.unregister(topic, listener.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return listener.stream, cleanup
}

// Publish delivers the event to every listener on the matching topic. Slow
// listeners drop events rather than block the publisher.
func (d *Dispatcher) Publish(event ChangeEvent) {
	if event.Table == "" || event.Type == "" {
		return
	}
	topic := topicKey(event.Table, event.PostID)
	d.mu.RLock()
	listeners := d.subscribers[topic]
	if len(listeners) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(listeners))
	for _, listener := range listeners {
		copies = append(copies, listener)
	}
	d.mu.RUnlock()
	for _, listener := range copies {
		select {
		case listener.stream <- event:
		default:
		}
	}
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(topic string, listener *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*subscriber)
	}
	d.subscribers[topic][listener.id] = listener
}

func (d *Dispatcher) unregister(topic string, listenerID int64) {
	d.mu.Lock()
	listeners := d.subscribers[topic]
	if listeners != nil {
		delete(listeners, listenerID)
		if len(listeners) == 0 {
			delete(d.subscribers, topic)
		}
	}
	d.mu.Unlock()
}
