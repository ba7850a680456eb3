package model

import "time"

// Question is an async Q&A entry. The question text is immutable and the
// answer sub-record transitions exactly once from unset to set.
type Question struct {
	ID         string     `json:"id" bson:"_id,omitempty"`
	GroupID    string     `json:"groupId" bson:"groupId"`
	UserID     string     `json:"userId" bson:"userId"`
	UserName   string     `json:"userName" bson:"userName"`
	Question   string     `json:"question" bson:"question"`
	Answer     string     `json:"answer,omitempty" bson:"answer,omitempty"`
	AnsweredBy string     `json:"answeredBy,omitempty" bson:"answeredBy,omitempty"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty" bson:"answeredAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
}

// Answered reports whether the write-once answer has been set.
func (q *Question) Answered() bool {
	return q.AnsweredBy != ""
}
