package database

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationDropLegacyAdminSecret = "2026-07-18_drop_legacy_admin_secret"
	migrationLowercaseAdminEmails  = "2026-07-18_lowercase_admin_emails"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationDropLegacyAdminSecret, apply: dropLegacyAdminSecret},
		{name: migrationLowercaseAdminEmails, apply: lowercaseAdminEmails},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// dropLegacyAdminSecret removes the superseded shared-secret admin gate. The
// allow-list table replaced it; the two designs cannot coexist.
func dropLegacyAdminSecret(db *gorm.DB) error {
	return db.Exec("DROP TABLE IF EXISTS admin_secrets;").Error
}

// lowercaseAdminEmails normalizes allow-list entries written before lookups
// started lowercasing.
func lowercaseAdminEmails(db *gorm.DB) error {
	err := db.Exec("UPDATE blog_admins SET email = lower(trim(email));").Error
	if err != nil && strings.Contains(err.Error(), "no such table") {
		return nil
	}
	return err
}
