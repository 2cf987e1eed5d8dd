package content

import "time"

// Post models a stored blog post. Content is an HTML string that may embed
// page-break markers; Slug is stable once a post has been publicly linked.
type Post struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Title     string    `gorm:"column:title;size:320;not null" json:"title"`
	Slug      string    `gorm:"column:slug;size:320;not null;uniqueIndex" json:"slug"`
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	Excerpt   string    `gorm:"column:excerpt;type:text" json:"excerpt,omitempty"`
	Tags      []string  `gorm:"column:tags;serializer:json" json:"tags"`
	Published bool      `gorm:"column:published;not null;default:false;index" json:"published"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// TableName provides the explicit table binding for GORM.
func (Post) TableName() string {
	return "blog_posts"
}

// PostInput carries the editable fields of a post through the admin editor.
type PostInput struct {
	Title     string
	Slug      string
	Content   string
	Excerpt   string
	Tags      []string
	Published bool
}
