package model

import "time"

// Group is a study group. The owner is the group's mentor and is fixed at
// creation; members only grow via join.
type Group struct {
	ID          string    `json:"id" bson:"_id,omitempty"`
	Name        string    `json:"name" bson:"name"`
	Description string    `json:"description" bson:"description"`
	Code        string    `json:"code" bson:"code"`
	OwnerID     string    `json:"ownerId" bson:"ownerId"`
	Members     []string  `json:"members" bson:"members"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// IsMember reports whether userID belongs to the group (the owner always does).
func (g *Group) IsMember(userID string) bool {
	if userID == g.OwnerID {
		return true
	}
	for _, m := range g.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// GroupMeta is the Redis-cached view of a group, keyed by join code.
type GroupMeta struct {
	GroupID   string    `json:"groupId"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}
