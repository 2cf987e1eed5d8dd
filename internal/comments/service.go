package comments

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

var (
	// ErrCommentNotFound reports a missing comment row.
	ErrCommentNotFound = errors.New("comments: comment not found")
	// ErrNotCommentAuthor reports a delete attempt by someone who is
	// neither the author nor an admin.
	ErrNotCommentAuthor = errors.New("comments: only the author or an admin may delete")
	// ErrEmptyContent reports a comment with no usable text.
	ErrEmptyContent = errors.New("comments: content is required")
)

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

// Service owns the comments table and emits insert/delete change events
// scoped by post.
type Service struct {
	db        *gorm.DB
	clock     func() time.Time
	ids       IDProvider
	publisher events.Publisher
	logger    *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("comments: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("comments: id provider required")
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

// ListByPost returns all comments for the post, newest first.
func (s *Service) ListByPost(ctx context.Context, postID string) ([]Comment, error) {
	var rows []Comment
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		s.logger.Error("comment list failed", zap.String("post_id", postID), zap.Error(err))
		return nil, fmt.Errorf("comments: list by post: %w", err)
	}
	return rows, nil
}

// Create stores a comment and publishes the insert on the change feed.
func (s *Service) Create(ctx context.Context, postID string, author Author, body string) (Comment, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Comment{}, ErrEmptyContent
	}

	id, err := s.ids.NewID()
	if err != nil {
		return Comment{}, fmt.Errorf("comments: generate id: %w", err)
	}

	comment := Comment{
		ID:         id,
		PostID:     postID,
		UserID:     author.UserID,
		UserName:   author.Name,
		UserAvatar: author.AvatarURL,
		Content:    trimmed,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		s.logger.Error("comment insert failed", zap.String("post_id", postID), zap.Error(err))
		return Comment{}, fmt.Errorf("comments: create: %w", err)
	}

	s.publish(events.EventInsert, comment)
	return comment, nil
}

// Delete removes a comment. Allowed for the comment's author and for admins.
func (s *Service) Delete(ctx context.Context, commentID, requesterID string, isAdmin bool) error {
	var comment Comment
	err := s.db.WithContext(ctx).Where("id = ?", commentID).Take(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCommentNotFound
	}
	if err != nil {
		s.logger.Error("comment select failed", zap.String("comment_id", commentID), zap.Error(err))
		return fmt.Errorf("comments: delete select: %w", err)
	}

	if !isAdmin && comment.UserID != requesterID {
		return ErrNotCommentAuthor
	}

	if err := s.db.WithContext(ctx).Delete(&Comment{}, "id = ?", commentID).Error; err != nil {
		s.logger.Error("comment delete failed", zap.String("comment_id", commentID), zap.Error(err))
		return fmt.Errorf("comments: delete: %w", err)
	}

	s.publish(events.EventDelete, comment)
	return nil
}

func (s *Service) publish(eventType events.EventType, comment Comment) {
	if s.publisher == nil {
		return
	}
	row, err := json.Marshal(comment)
	if err != nil {
		s.logger.Error("comment event encode failed", zap.String("comment_id", comment.ID), zap.Error(err))
		return
	}
	s.publisher.Publish(events.ChangeEvent{
		Table:     Table,
		Type:      eventType,
		PostID:    comment.PostID,
		RowID:     comment.ID,
		Row:       row,
		Timestamp: s.clock().UTC(),
	})
}
