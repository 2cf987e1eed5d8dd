package events

import (
	"encoding/json"
	"time"
)

// EventType enumerates row-level change notifications carried by the feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventDelete EventType = "DELETE"
)

// ChangeEvent describes a single row change on a published table.
type ChangeEvent struct {
	Table     string          `json:"table"`
	Type      EventType       `json:"type"`
	PostID    string          `json:"post_id,omitempty"`
	RowID     string          `json:"row_id"`
	Row       json.RawMessage `json:"row,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher accepts change events for delivery. Implementations must not block.
type Publisher interface {
	Publish(event ChangeEvent)
}

// Fanout forwards every event to all wrapped publishers.
type Fanout struct {
	publishers []Publisher
}

// NewFanout builds a fanout over the provided publishers, skipping nils.
func NewFanout(publishers ...Publisher) *Fanout {
	kept := make([]Publisher, 0, len(publishers))
	for _, publisher := range publishers {
		if publisher != nil {
			kept = append(kept, publisher)
		}
	}
	return &Fanout{publishers: kept}
}

func (f *Fanout) Publish(event ChangeEvent) {
	for _, publisher := range f.publishers {
		publisher.Publish(event)
	}
}

func topicKey(table, postID string) string {
	if postID == "" {
		return table
	}
	return table + "/" + postID
}
