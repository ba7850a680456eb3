package model

import "time"

// Message is immutable once created. Ordering key is CreatedAt.
type Message struct {
	ID        string    `json:"id" bson:"_id,omitempty"`
	GroupID   string    `json:"groupId" bson:"groupId"`
	UserID    string    `json:"userId" bson:"userId"`
	UserName  string    `json:"userName" bson:"userName"`
	Content   string    `json:"content" bson:"content"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}
