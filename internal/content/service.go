package content

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPostNotFound reports that no published post matched the lookup.
	// It is deliberately distinct from query failures so callers can tell
	// a missing row from an outage.
	ErrPostNotFound = errors.New("content: post not found")
	// ErrSlugTaken reports a slug uniqueness violation.
	ErrSlugTaken = errors.New("content: slug already in use")
	// ErrInvalidInput reports a failed required-field check, caught before
	// any remote call is attempted.
	ErrInvalidInput = errors.New("content: invalid input")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	noOpLogger = zap.NewNop()
)

// ServiceError carries a stable machine-readable code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "content.service.new"
	opListPublished = "content.list_published"
	opGetBySlug     = "content.get_by_slug"
	opCreatePost    = "content.create_post"
	opUpdatePost    = "content.update_post"
	opDeletePost    = "content.delete_post"
	opTogglePost    = "content.toggle_publish"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns post reads for visitors and post mutations for the admin
// editor.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// ListPublished returns all published posts, newest first.
func (s *Service) ListPublished(ctx context.Context) ([]Post, error) {
	var posts []Post
	err := s.db.WithContext(ctx).
		Where("published = ?", true).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		s.logError(opListPublished, "query_failed", err)
		return nil, newServiceError(opListPublished, "query_failed", err)
	}
	return posts, nil
}

// GetBySlug returns the single published post with the given slug. A missing
// or unpublished slug yields ErrPostNotFound; anything else is a query
// failure.
func (s *Service) GetBySlug(ctx context.Context, slug string) (Post, error) {
	var post Post
	err := s.db.WithContext(ctx).
		Where("slug = ? AND published = ?", strings.TrimSpace(slug), true).
		Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrPostNotFound
	}
	if err != nil {
		s.logError(opGetBySlug, "query_failed", err, zap.String("slug", slug))
		return Post{}, newServiceError(opGetBySlug, "query_failed", err)
	}
	return post, nil
}

// Create stores a new post in draft or published state.
func (s *Service) Create(ctx context.Context, input PostInput) (Post, error) {
	if err := validateInput(input); err != nil {
		return Post{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreatePost, "id_generation_failed", err)
		return Post{}, newServiceError(opCreatePost, "id_generation_failed", err)
	}

	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = Slugify(input.Title)
	}

	now := s.clock().UTC()
	post := Post{
		ID:        id,
		Title:     strings.TrimSpace(input.Title),
		Slug:      slug,
		Content:   input.Content,
		Excerpt:   strings.TrimSpace(input.Excerpt),
		Tags:      input.Tags,
		Published: input.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.ensureSlugFree(ctx, slug, ""); err != nil {
		return Post{}, err
	}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		s.logError(opCreatePost, "insert_failed", err, zap.String("slug", slug))
		return Post{}, newServiceError(opCreatePost, "insert_failed", err)
	}
	return post, nil
}

// Update overwrites the editable fields of an existing post. The slug is
// kept unless the editor explicitly supplies a new one.
func (s *Service) Update(ctx context.Context, postID string, input PostInput) (Post, error) {
	if err := validateInput(input); err != nil {
		return Post{}, err
	}

	var existing Post
	err := s.db.WithContext(ctx).Where("id = ?", postID).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrPostNotFound
	}
	if err != nil {
		s.logError(opUpdatePost, "select_failed", err, zap.String("post_id", postID))
		return Post{}, newServiceError(opUpdatePost, "select_failed", err)
	}

	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = existing.Slug
	}
	if slug != existing.Slug {
		if err := s.ensureSlugFree(ctx, slug, existing.ID); err != nil {
			return Post{}, err
		}
	}

	existing.Title = strings.TrimSpace(input.Title)
	existing.Slug = slug
	existing.Content = input.Content
	existing.Excerpt = strings.TrimSpace(input.Excerpt)
	existing.Tags = input.Tags
	existing.Published = input.Published
	existing.UpdatedAt = s.clock().UTC()

	if err := s.db.WithContext(ctx).Save(&existing).Error; err != nil {
		s.logError(opUpdatePost, "save_failed", err, zap.String("post_id", postID))
		return Post{}, newServiceError(opUpdatePost, "save_failed", err)
	}
	return existing, nil
}

// Delete removes the post row. Only explicit admin action reaches here.
func (s *Service) Delete(ctx context.Context, postID string) error {
	result := s.db.WithContext(ctx).Where("id = ?", postID).Delete(&Post{})
	if result.Error != nil {
		s.logError(opDeletePost, "delete_failed", result.Error, zap.String("post_id", postID))
		return newServiceError(opDeletePost, "delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrPostNotFound
	}
	return nil
}

// TogglePublish flips the published flag and returns the updated post.
func (s *Service) TogglePublish(ctx context.Context, postID string) (Post, error) {
	var post Post
	err := s.db.WithContext(ctx).Where("id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrPostNotFound
	}
	if err != nil {
		s.logError(opTogglePost, "select_failed", err, zap.String("post_id", postID))
		return Post{}, newServiceError(opTogglePost, "select_failed", err)
	}

	post.Published = !post.Published
	post.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&post).Error; err != nil {
		s.logError(opTogglePost, "save_failed", err, zap.String("post_id", postID))
		return Post{}, newServiceError(opTogglePost, "save_failed", err)
	}
	return post, nil
}

// ListAll returns every post regardless of published state, newest first.
// Reachable only through the admin editor.
func (s *Service) ListAll(ctx context.Context) ([]Post, error) {
	var posts []Post
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&posts).Error
	if err != nil {
		s.logError(opListPublished, "query_failed", err)
		return nil, newServiceError(opListPublished, "query_failed", err)
	}
	return posts, nil
}

func (s *Service) ensureSlugFree(ctx context.Context, slug, excludeID string) error {
	var count int64
	query := s.db.WithContext(ctx).Model(&Post{}).Where("slug = ?", slug)
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		s.logError(opCreatePost, "slug_check_failed", err, zap.String("slug", slug))
		return newServiceError(opCreatePost, "slug_check_failed", err)
	}
	if count > 0 {
		return ErrSlugTaken
	}
	return nil
}

func validateInput(input PostInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	return nil
}

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from a post title.
func Slugify(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))
	slug := slugStripPattern.ReplaceAllString(lowered, "-")
	return strings.Trim(slug, "-")
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("content service error", attrs...)
}
