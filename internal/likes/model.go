package likes

import "time"

// Like records that one device liked one post. At most one row exists per
// (post, fingerprint) pair; the unique index is the invariant.
type Like struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	PostID      string    `gorm:"column:post_id;size:190;not null;uniqueIndex:idx_like_pair,priority:1" json:"post_id"`
	Fingerprint string    `gorm:"column:device_fingerprint;size:190;not null;uniqueIndex:idx_like_pair,priority:2" json:"device_fingerprint"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Like) TableName() string {
	return "blog_likes"
}

// Status reports the like state as seen by one device.
type Status struct {
	Liked bool  `json:"liked"`
	Count int64 `json:"count"`
}
