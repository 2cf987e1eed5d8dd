package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"portfolio-backend/internal/admins"
	"portfolio-backend/internal/content"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")

	db, err := OpenSQLite(path, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	post := content.Post{ID: "p-1", Title: "t", Slug: "t", Content: "c"}
	if err := db.Create(&post).Error; err != nil {
		t.Fatalf("expected blog_posts table to exist: %v", err)
	}

	var records []migrationRecord
	if err := db.Find(&records).Error; err != nil {
		t.Fatalf("failed to read migration ledger: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 recorded migrations, got %d", len(records))
	}
}

func TestApplyMigrationsDropsLegacySecretTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.Exec("CREATE TABLE admin_secrets (secret TEXT);").Error; err != nil {
		t.Fatalf("failed to seed legacy table: %v", err)
	}
	if err := db.AutoMigrate(&admins.Admin{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var count int64
	err = db.Raw("SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'admin_secrets';").Scan(&count).Error
	if err != nil {
		t.Fatalf("failed to inspect schema: %v", err)
	}
	if count != 0 {
		t.Fatalf("legacy admin_secrets table should be dropped")
	}
}

func TestApplyMigrationsLowercasesAdminEmails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&admins.Admin{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	if err := db.Exec("INSERT INTO blog_admins (email) VALUES ('Owner@Example.COM');").Error; err != nil {
		t.Fatalf("failed to seed admin row: %v", err)
	}

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var stored admins.Admin
	if err := db.Take(&stored).Error; err != nil {
		t.Fatalf("failed to reload admin row: %v", err)
	}
	if stored.Email != "owner@example.com" {
		t.Fatalf("expected lowercased email, got %q", stored.Email)
	}
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&admins.Admin{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := applyMigrations(db, zap.NewNop()); err != nil {
			t.Fatalf("apply attempt %d failed: %v", i+1, err)
		}
	}

	var count int64
	if err := db.Model(&migrationRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count ledger: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 ledger rows after repeat apply, got %d", count)
	}
}
