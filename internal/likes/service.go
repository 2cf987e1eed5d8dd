package likes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrMissingFingerprint reports a like operation without a device identity.
var ErrMissingFingerprint = errors.New("likes: device fingerprint is required")

type IDProvider interface {
	NewID() (string, error)
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the likes table. Toggles are serialized per
// (post, fingerprint) pair so back-to-back taps from one device cannot race
// the row into an inconsistent state.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	ids    IDProvider
	logger *zap.Logger

	pairMu sync.Mutex
	pairs  map[string]*sync.Mutex
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("likes: database connection required")
	}
	if cfg.IDProvider == nil {
		return nil, fmt.Errorf("likes: id provider required")
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
		db:     cfg.Database,
		clock:  clock,
		ids:    cfg.IDProvider,
		logger: logger,
		pairs:  make(map[string]*sync.Mutex),
	}, nil
}

// Toggle flips the like row for (postID, fingerprint) and returns the
// resulting state. The count is recomputed from the store rather than
// adjusted locally, so it can never drift below zero.
func (s *Service) Toggle(ctx context.Context, postID, fingerprint string) (Status, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return Status{}, ErrMissingFingerprint
	}

	lock := s.pairLock(postID, fingerprint)
	lock.Lock()
	defer lock.Unlock()

	var existing Like
	err := s.db.WithContext(ctx).
		Where("post_id = ? AND device_fingerprint = ?", postID, fingerprint).
		Take(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		id, idErr := s.ids.NewID()
		if idErr != nil {
			return Status{}, fmt.Errorf("likes: generate id: %w", idErr)
		}
		row := Like{
			ID:          id,
			PostID:      postID,
			Fingerprint: fingerprint,
			CreatedAt:   s.clock().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			s.logger.Error("like insert failed", zap.String("post_id", postID), zap.Error(err))
			return Status{}, fmt.Errorf("likes: insert: %w", err)
		}
		return s.status(ctx, postID, true)
	case err != nil:
		s.logger.Error("like select failed", zap.String("post_id", postID), zap.Error(err))
		return Status{}, fmt.Errorf("likes: select: %w", err)
	default:
		if err := s.db.WithContext(ctx).Delete(&Like{}, "id = ?", existing.ID).Error; err != nil {
			s.logger.Error("like delete failed", zap.String("post_id", postID), zap.Error(err))
			return Status{}, fmt.Errorf("likes: delete: %w", err)
		}
		return s.status(ctx, postID, false)
	}
}

// Status reports whether the device has liked the post and the total count.
func (s *Service) Status(ctx context.Context, postID, fingerprint string) (Status, error) {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return Status{}, ErrMissingFingerprint
	}

	var matched int64
	err := s.db.WithContext(ctx).Model(&Like{}).
		Where("post_id = ? AND device_fingerprint = ?", postID, fingerprint).
		Count(&matched).Error
	if err != nil {
		s.logger.Error("like status failed", zap.String("post_id", postID), zap.Error(err))
		return Status{}, fmt.Errorf("likes: status: %w", err)
	}
	return s.status(ctx, postID, matched > 0)
}

func (s *Service) status(ctx context.Context, postID string, liked bool) (Status, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Like{}).
		Where("post_id = ?", postID).
		Count(&count).Error
	if err != nil {
		s.logger.Error("like count failed", zap.String("post_id", postID), zap.Error(err))
		return Status{}, fmt.Errorf("likes: count: %w", err)
	}
	return Status{Liked: liked, Count: count}, nil
}

func (s *Service) pairLock(postID, fingerprint string) *sync.Mutex {
	key := postID + "|" + fingerprint
	s.pairMu.Lock()
	defer s.pairMu.Unlock()
	lock, ok := s.pairs[key]
	if !ok {
		lock = &sync.Mutex{}
		s.pairs[key] = lock
	}
	return lock
}
