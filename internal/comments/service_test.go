package comments

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
	return fmt.Sprintf("comment-%d", g.next), nil
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
	if err := db.AutoMigrate(&Comment{}); err != nil {
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

func TestCreateTrimsContentAndPublishesInsert(t *testing.T) {
	service, publisher := newTestService(t)

	comment, err := service.Create(context.Background(), "post-1", Author{
		UserID:    "google:123",
		Name:      "Ada",
		AvatarURL: "https://avatars.example/ada.png",
	}, "  nice post  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if comment.Content != "nice post" {
		t.Fatalf("expected trimmed content, got %q", comment.Content)
	}
	if comment.UserName != "Ada" {
		t.Fatalf("unexpected author name: %q", comment.UserName)
	}

	if len(publisher.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(publisher.events))
	}
	event := publisher.events[0]
	if event.Table != Table || event.Type != events.EventInsert {
		t.Fatalf("unexpected event shape: %+v", event)
	}
	if event.PostID != "post-1" || event.RowID != comment.ID {
		t.Fatalf("event not scoped to the comment: %+v", event)
	}
	if len(event.Row) == 0 {
		t.Fatalf("insert event must carry the row payload")
	}
}

func TestCreateRejectsBlankContent(t *testing.T) {
	service, publisher := newTestService(t)

	_, err := service.Create(context.Background(), "post-1", Author{UserID: "u"}, "   ")
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("no event should be published for a rejected comment")
	}
}

func TestListByPostReturnsNewestFirst(t *testing.T) {
	service, _ := newTestService(t)

	for i := 0; i < 3; i++ {
		if _, err := service.Create(context.Background(), "post-1", Author{UserID: "u"}, fmt.Sprintf("comment %d", i)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := service.Create(context.Background(), "post-2", Author{UserID: "u"}, "elsewhere"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := service.ListByPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 comments for post-1, got %d", len(rows))
	}
	for _, row := range rows {
		if row.PostID != "post-1" {
			t.Fatalf("comment from another post leaked: %+v", row)
		}
	}
}

func TestDeleteAllowsAuthor(t *testing.T) {
	service, publisher := newTestService(t)

	comment, err := service.Create(context.Background(), "post-1", Author{UserID: "google:123"}, "mine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Delete(context.Background(), comment.ID, "google:123", false); err != nil {
		t.Fatalf("author delete should succeed: %v", err)
	}

	last := publisher.events[len(publisher.events)-1]
	if last.Type != events.EventDelete || last.RowID != comment.ID {
		t.Fatalf("expected delete event for %q, got %+v", comment.ID, last)
	}

	rows, err := service.ListByPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected comment to be gone, found %d", len(rows))
	}
}

func TestDeleteRejectsNonAuthorWithoutAdmin(t *testing.T) {
	service, publisher := newTestService(t)

	comment, err := service.Create(context.Background(), "post-1", Author{UserID: "google:123"}, "mine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before := len(publisher.events)

	err = service.Delete(context.Background(), comment.ID, "github:999", false)
	if !errors.Is(err, ErrNotCommentAuthor) {
		t.Fatalf("expected ErrNotCommentAuthor, got %v", err)
	}
	if len(publisher.events) != before {
		t.Fatalf("rejected delete must not publish an event")
	}
}

func TestDeleteAllowsAdminOverride(t *testing.T) {
	service, _ := newTestService(t)

	comment, err := service.Create(context.Background(), "post-1", Author{UserID: "google:123"}, "spam")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := service.Delete(context.Background(), comment.ID, "github:admin", true); err != nil {
		t.Fatalf("admin delete should succeed: %v", err)
	}
}

func TestDeleteReportsMissingComment(t *testing.T) {
	service, _ := newTestService(t)

	err := service.Delete(context.Background(), "absent", "u", true)
	if !errors.Is(err, ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}
}
