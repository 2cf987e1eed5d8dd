package comments

import "time"

// Table backs the comment rows and doubles as the change-feed topic.
const Table = "blog_comments"

// Comment models a visitor comment. Author identity is captured from the
// session at post time and stored denormalized; it is never re-fetched.
type Comment struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	PostID     string    `gorm:"column:post_id;size:190;not null;index" json:"post_id"`
	UserID     string    `gorm:"column:user_id;size:190;not null" json:"user_id"`
	UserName   string    `gorm:"column:user_name;size:320;not null" json:"user_name"`
	UserAvatar string    `gorm:"column:user_avatar;size:512" json:"user_avatar,omitempty"`
	Content    string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Comment) TableName() string {
	return Table
}

// Author is the commenter identity derived from the authentication provider.
type Author struct {
	UserID    string
	Name      string
	AvatarURL string
}
