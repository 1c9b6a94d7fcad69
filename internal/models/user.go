// Package models contains data structures for the application's domain models.
package models

import (
	"slices"
	"time"
)

// DefaultStatus is assigned to every new user.
const DefaultStatus = "I am new!"

// User is a registered identity. PostIDs is the ordered back-reference list of
// posts the user created.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"_id"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"not null" json:"-"`
	Status    string    `gorm:"not null;default:'I am new!'" json:"status"`
	PostIDs   []uint    `gorm:"serializer:json;type:text" json:"posts"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPost reports whether id is in the user's post list.
func (u *User) HasPost(id uint) bool {
	return slices.Contains(u.PostIDs, id)
}

// AddPost appends id once; it reports whether the list changed.
func (u *User) AddPost(id uint) bool {
	if u.HasPost(id) {
		return false
	}
	u.PostIDs = append(u.PostIDs, id)
	return true
}

// RemovePost drops every occurrence of id; it reports whether the list changed.
func (u *User) RemovePost(id uint) bool {
	before := len(u.PostIDs)
	u.PostIDs = slices.DeleteFunc(u.PostIDs, func(v uint) bool { return v == id })
	return len(u.PostIDs) != before
}
