package guestbook

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"portfolio-backend/internal/events"
)

type sequenceIDGenerator struct {
	next int
}

func (g *sequenceIDGenerator) NewID() (string, error) {
	g.next++
	return fmt.Sprintf("entry-%d", g.next), nil
}

type recordingPublisher struct {
	events []events.ChangeEvent
}

func (p *recordingPublisher) Publish(event events.ChangeEvent) {
	p.events = append(p.events, event)
}

func newTestService(t *testing.T) (*Service, *recordingPublisher) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&Entry{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	publisher := &recordingPublisher{}
	service, err := NewService(ServiceConfig{
		Database:   db,
		Clock:      func() time.Time { return time.Unix(1755000000, 0).UTC() },
		IDProvider: &sequenceIDGenerator{},
		Publisher:  publisher,
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, publisher
}

func TestCreatePublishesOnTableWideTopic(t *testing.T) {
	service, publisher := newTestService(t)

	entry, err := service.Create(context.Background(), Author{
		UserID: "google:123",
		Name:   "Ada",
	}, "hello from the guestbook")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Table != Table || event.Type != events.EventInsert {
		t.Fatalf("unexpected event shape: %+v", event)
	}
	if event.PostID != "" {
		t.Fatalf("guestbook events are table-wide, got post scope %q", event.PostID)
	}
	if event.RowID != entry.ID {
		t.Fatalf("unexpected row id: %q", event.RowID)
	}
}

func TestCreateRejectsBlankMessage(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Create(context.Background(), Author{UserID: "u"}, "   ")
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestListReturnsNewestFirst(t *testing.T) {
	service, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		if _, err := service.Create(context.Background(), Author{UserID: "u"}, fmt.Sprintf("entry %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := service.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestDeleteEnforcesAuthorOrAdmin(t *testing.T) {
	service, publisher := newTestService(t)

	entry, err := service.Create(context.Background(), Author{UserID: "google:123"}, "mine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = service.Delete(context.Background(), entry.ID, "github:999", false)
	if !errors.Is(err, ErrNotEntryAuthor) {
		t.Fatalf("expected ErrNotEntryAuthor, got %v", err)
	}

	if err := service.Delete(context.Background(), entry.ID, "github:999", true); err != nil {
		t.Fatalf("admin delete should succeed: %v", err)
	}
	last := publisher.events[len(publisher.events)-1]
	if last.Type != events.EventDelete || last.RowID != entry.ID {
		t.Fatalf("expected delete event, got %+v", last)
	}

	err = service.Delete(context.Background(), entry.ID, "google:123", false)
	if !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound for deleted entry, got %v", err)
	}
}
