package model

import "time"

// Note is the single shared note of a group. It is created lazily (empty) on
// first access and resolves concurrent edits last-writer-wins by hub
// processing order.
type Note struct {
	GroupID       string    `json:"groupId" bson:"groupId"`
	Content       string    `json:"content" bson:"content"`
	LastUpdatedBy string    `json:"lastUpdatedBy" bson:"lastUpdatedBy"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}
