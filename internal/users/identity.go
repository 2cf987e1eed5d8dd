package users

import (
	"strings"
	"time"
)

// Identity records a provider-specific login seen by this backend along with
// the profile data the provider returned. Comments and guestbook entries
// stamp this identity at post time.
type Identity struct {
	Provider    string    `gorm:"column:provider;primaryKey;size:32;not null"`
	Subject     string    `gorm:"column:subject;primaryKey;size:190;not null"`
	Email       string    `gorm:"column:user_email;size:320;index"`
	DisplayName string    `gorm:"column:user_display_name;size:320"`
	AvatarURL   string    `gorm:"column:user_avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at;autoUpdateTime"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user identities.
func (Identity) TableName() string {
	return "user_identities"
}

// UserID is the canonical user identifier derived from a provider identity.
func (i Identity) UserID() string {
	return i.Provider + ":" + i.Subject
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
