package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"studysync/internal/model"
)

// GroupCache handles Redis operations for join-code lookups
type GroupCache interface {
	SetMeta(ctx context.Context, code string, meta *model.GroupMeta) error
	GetMeta(ctx context.Context, code string) (*model.GroupMeta, error)
	Exists(ctx context.Context, code string) (bool, error)
	Delete(ctx context.Context, code string) error
}

type groupCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewGroupCache creates a new group cache
func NewGroupCache(client *redis.Client) GroupCache {
	return &groupCache{
		client: client,
		ttl:    7 * 24 * time.Hour,
	}
}

func (c *groupCache) key(code string) string {
	return fmt.Sprintf("group:code:%s", code)
}

func (c *groupCache) SetMeta(ctx context.Context, code string, meta *model.GroupMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(code), data, c.ttl).Err()
}

func (c *groupCache) GetMeta(ctx context.Context, code string) (*model.GroupMeta, error) {
	data, err := c.client.Get(ctx, c.key(code)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta model.GroupMeta
	if err := json.Unmarshal([]byte(data), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (c *groupCache) Exists(ctx context.Context, code string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(code)).Result()
	return n > 0, err
}

func (c *groupCache) Delete(ctx context.Context, code string) error {
	return c.client.Del(ctx, c.key(code)).Err()
}
