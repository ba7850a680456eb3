package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PresenceCache tracks which users are currently connected to a group room.
// Entries expire so a crashed process cannot leave users online forever.
type PresenceCache interface {
	Add(ctx context.Context, groupID, userID string) error
	Remove(ctx context.Context, groupID, userID string) error
	List(ctx context.Context, groupID string) ([]string, error)
}

type presenceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceCache creates a new presence cache
func NewPresenceCache(client *redis.Client) PresenceCache {
	return &presenceCache{
		client: client,
		ttl:    24 * time.Hour,
	}
}

func (c *presenceCache) key(groupID string) string {
	return fmt.Sprintf("presence:%s", groupID)
}

func (c *presenceCache) Add(ctx context.Context, groupID, userID string) error {
	key := c.key(groupID)
	if err := c.client.SAdd(ctx, key, userID).Err(); err != nil {
		return err
	}
	return c.client.Expire(ctx, key, c.ttl).Err()
}

func (c *presenceCache) Remove(ctx context.Context, groupID, userID string) error {
	return c.client.SRem(ctx, c.key(groupID), userID).Err()
}

func (c *presenceCache) List(ctx context.Context, groupID string) ([]string, error) {
	members, err := c.client.SMembers(ctx, c.key(groupID)).Result()
	if err != nil {
		return nil, err
	}
	return members, nil
}
