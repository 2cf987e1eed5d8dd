package admins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GateState describes how far a visitor has made it through the admin gate.
type GateState string

const (
	// GateSignedOut means no authenticated session exists.
	GateSignedOut GateState = "signed-out"
	// GateUnverified means the visitor authenticated but their email is not
	// on the allow-list. There is no transition out except signing out.
	GateUnverified GateState = "signed-in-unverified"
	// GateAdmin means the allow-list matched; the editor is reachable.
	GateAdmin GateState = "signed-in-admin"
)

// Admin is an allow-list entry. Presence of the email grants the editor;
// absence denies it regardless of authentication success.
type Admin struct {
	Email     string    `gorm:"column:email;primaryKey;size:320;not null" json:"email"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Admin) TableName() string {
	return "blog_admins"
}

type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service answers allow-list lookups and manages the list itself.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("admins: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// IsAllowed reports whether the email is on the allow-list.
func (s *Service) IsAllowed(ctx context.Context, email string) (bool, error) {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return false, nil
	}
	var entry Admin
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		s.logger.Error("allow-list lookup failed", zap.Error(err))
		return false, fmt.Errorf("admins: lookup: %w", err)
	}
	return true, nil
}

// Resolve maps a session (or its absence) onto a gate state.
func (s *Service) Resolve(ctx context.Context, email string, signedIn bool) (GateState, error) {
	if !signedIn {
		return GateSignedOut, nil
	}
	allowed, err := s.IsAllowed(ctx, email)
	if err != nil {
		return GateUnverified, err
	}
	if allowed {
		return GateAdmin, nil
	}
	return GateUnverified, nil
}

// Grant adds an email to the allow-list. Idempotent.
func (s *Service) Grant(ctx context.Context, email string) error {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("admins: email is required")
	}
	entry := Admin{Email: normalized}
	err := s.db.WithContext(ctx).FirstOrCreate(&entry, Admin{Email: normalized}).Error
	if err != nil {
		s.logger.Error("allow-list grant failed", zap.Error(err))
		return fmt.Errorf("admins: grant: %w", err)
	}
	return nil
}

// Revoke removes an email from the allow-list. Idempotent.
func (s *Service) Revoke(ctx context.Context, email string) error {
	normalized := normalizeEmail(email)
	if normalized == "" {
		return fmt.Errorf("admins: email is required")
	}
	err := s.db.WithContext(ctx).Delete(&Admin{}, "email = ?", normalized).Error
	if err != nil {
		s.logger.Error("allow-list revoke failed", zap.Error(err))
		return fmt.Errorf("admins: revoke: %w", err)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
