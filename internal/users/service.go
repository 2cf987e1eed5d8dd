package users

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ErrInvalidIdentity indicates the sign-in did not carry a usable subject.
var ErrInvalidIdentity = errors.New("users: invalid identity")

// Profile carries the identity data a provider returned at sign-in.
type Profile struct {
	Provider    string
	Subject     string
	Email       string
	DisplayName string
	AvatarURL   string
}

type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service records provider identities as visitors sign in.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, now: clock}, nil
}

// RecordSignIn upserts the identity row for the provider+subject pair,
// refreshing profile fields the provider may have changed, and returns the
// stored identity.
func (s *Service) RecordSignIn(ctx context.Context, profile Profile) (Identity, error) {
	provider := normalize(profile.Provider)
	subject := normalize(profile.Subject)
	if provider == "" || subject == "" {
		return Identity{}, ErrInvalidIdentity
	}

	var identity Identity
	err := s.db.WithContext(ctx).
		Where("provider = ? AND subject = ?", provider, subject).
		First(&identity).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		identity = Identity{
			Provider:    provider,
			Subject:     subject,
			Email:       normalize(profile.Email),
			DisplayName: normalize(profile.DisplayName),
			AvatarURL:   normalize(profile.AvatarURL),
			LastSeenAt:  s.now(),
		}
		if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
			return Identity{}, err
		}
	} else if err != nil {
		return Identity{}, err
	} else {
		updates := map[string]interface{}{}
		if email := normalize(profile.Email); email != "" && email != identity.Email {
			updates["user_email"] = email
			identity.Email = email
		}
		if display := normalize(profile.DisplayName); display != "" && display != identity.DisplayName {
			updates["user_display_name"] = display
			identity.DisplayName = display
		}
		if avatar := normalize(profile.AvatarURL); avatar != "" && avatar != identity.AvatarURL {
			updates["user_avatar_url"] = avatar
			identity.AvatarURL = avatar
		}
		updates["last_seen_at"] = s.now()
		_ = s.db.WithContext(ctx).Model(&Identity{}).
			Where("provider = ? AND subject = ?", provider, subject).
			Updates(updates).
			Error
	}

	s.cache.Store(provider+":"+subject, identity.UserID())
	return identity, nil
}
