package models

import "time"

// PostCreator is the denormalized author reference stored on each post.
type PostCreator struct {
	UserID uint   `gorm:"column:creator_id;not null;index" json:"_id"`
	Name   string `gorm:"column:creator_name;not null" json:"name"`
}

// Post is a feed entry with exactly one attached image.
type Post struct {
	ID        uint        `gorm:"primaryKey" json:"_id"`
	Title     string      `gorm:"not null" json:"title"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	ImageURL  string      `gorm:"not null;uniqueIndex" json:"imageUrl"`
	Creator   PostCreator `gorm:"embedded" json:"creator"`
	CreatedAt time.Time   `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// OwnedBy reports whether userID created the post.
func (p *Post) OwnedBy(userID uint) bool {
	return p.Creator.UserID == userID
}
