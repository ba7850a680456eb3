package model

import "time"

type CallStatus string

const (
	CallActive CallStatus = "active"
	CallEnded  CallStatus = "ended"
)

// CallRecord is the durable history of a call: its lifecycle and every
// participant that ever joined. Participants are only removed by an explicit
// leave, never by a transient disconnect.
type CallRecord struct {
	GroupID      string     `json:"groupId" bson:"groupId"`
	ID           string     `json:"id" bson:"_id,omitempty"`
	StartedBy    string     `json:"startedBy" bson:"startedBy"`
	Status       CallStatus `json:"status" bson:"status"`
	StartTime    time.Time  `json:"startTime" bson:"startTime"`
	EndTime      *time.Time `json:"endTime,omitempty" bson:"endTime,omitempty"`
	Participants []string   `json:"participants" bson:"participants"`
}

// CallParticipant is one live participant inside an active call entry: the
// mapping from a logical identity to its current connection.
type CallParticipant struct {
	UserID   string    `json:"userId"`
	UserName string    `json:"userName"`
	ConnID   string    `json:"-"`
	JoinedAt time.Time `json:"joinedAt"`
}
