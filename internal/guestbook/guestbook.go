package guestbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"portfolio-backend/internal/events"
)

// Table backs the guestbook rows and doubles as the change-feed topic.
const Table = "guestbook"

var (
	// ErrEntryNotFound reports a missing guestbook row.
	ErrEntryNotFound = errors.New("guestbook: entry not found")
	// ErrNotEntryAuthor reports a delete attempt by someone who is neither
	// the author nor an admin.
	ErrNotEntryAuthor = errors.New("guestbook: only the author or an admin may delete")
	// ErrEmptyMessage reports an entry with no usable text.
	ErrEmptyMessage = errors.New("guestbook: message is required")
)

// Entry models a guestbook message, author identity denormalized at post
// time like comments.
type Entry struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	UserID     string    `gorm:"column:user_id;size:190;not null" json:"user_id"`
	UserName   string    `gorm:"column:user_name;size:320;not null" json:"user_name"`
	UserAvatar string    `gorm:"column:user_avatar;size:512" json:"user_avatar,omitempty"`
	Message    string    `gorm:"column:message;type:text;not null" json:"message"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return Table
}

// Author is the signing visitor's identity from the authentication provider.
type Author struct {
	UserID    string
	Name      string
	AvatarURL string
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Publisher  events.Publisher
	Logger     *zap.Logger
}

// Service owns the guestbook table and emits change events on the
// table-wide feed topic.
type Service struct {
	db        *gorm.DB
	clock     func() time.Time
	ids       IDProvider
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("guestbook: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("guestbook: id provider required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		clock:     clock,
		ids:       cfg.IDProvider,
		publisher: cfg.Publisher,
		logger:    logger,
	}, nil
}

// List returns all entries, newest first.
func (s *Service) List(ctx context.Context) ([]Entry, error) {
	var rows []Entry
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error
	if err != nil {
		s.logger.Error("guestbook list failed", zap.Error(err))
		return nil, fmt.Errorf("guestbook: list: %w", err)
	}
	return rows, nil
}

// Create stores an entry and publishes the insert on the change feed.
func (s *Service) Create(ctx context.Context, author Author, message string) (Entry, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Entry{}, ErrEmptyMessage
	}

	id, err := s.ids.NewID()
	if err != nil {
		return Entry{}, fmt.Errorf("guestbook: generate id: %w", err)
	}

	entry := Entry{
		ID:         id,
		UserID:     author.UserID,
		UserName:   author.Name,
		UserAvatar: author.AvatarURL,
		Message:    trimmed,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("guestbook insert failed", zap.Error(err))
		return Entry{}, fmt.Errorf("guestbook: create: %w", err)
	}

	s.publish(events.EventInsert, entry)
	return entry, nil
}

// Delete removes an entry. Allowed for the entry's author and for admins.
func (s *Service) Delete(ctx context.Context, entryID, requesterID string, isAdmin bool) error {
	var entry Entry
	err := s.db.WithContext(ctx).Where("id = ?", entryID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEntryNotFound
	}
	if err != nil {
		s.logger.Error("guestbook select failed", zap.String("entry_id", entryID), zap.Error(err))
		return fmt.Errorf("guestbook: delete select: %w", err)
	}

	if !isAdmin && entry.UserID != requesterID {
		return ErrNotEntryAuthor
	}

	if err := s.db.WithContext(ctx).Delete(&Entry{}, "id = ?", entryID).Error; err != nil {
		s.logger.Error("guestbook delete failed", zap.String("entry_id", entryID), zap.Error(err))
		return fmt.Errorf("guestbook: delete: %w", err)
	}

	s.publish(events.EventDelete, entry)
	return nil
}

func (s *Service) publish(eventType events.EventType, entry Entry) {
	if s.publisher == nil {
		return
	}
	row, err := json.Marshal(entry)
	if err != nil {
		s.logger.Error("guestbook event encode failed", zap.String("entry_id", entry.ID), zap.Error(err))
		return
	}
	s.publisher.Publish(events.ChangeEvent{
		Table:     Table,
		Type:      eventType,
		RowID:     entry.ID,
		Row:       row,
		Timestamp: s.clock().UTC(),
	})
}
