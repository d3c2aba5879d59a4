package redis

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ScheduleClaim hands each schedule slot to exactly one replica. A claim is
// never released; it expires after ttl so the key space stays bounded.
type ScheduleClaim struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owner  string
}

// NewScheduleClaim creates claims stored under prefix. A nil client grants
// every claim, for single-instance setups.
func NewScheduleClaim(client *redis.Client, prefix string, ttl time.Duration) *ScheduleClaim {
	owner, err := os.Hostname()
	if err != nil || owner == "" {
		owner = uuid.NewString()
	}
	return &ScheduleClaim{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		owner:  owner,
	}
}

func (c *ScheduleClaim) key(slot string) string {
	return c.prefix + ":" + slot
}

// Claim reports whether this replica won slot
func (c *ScheduleClaim) Claim(ctx context.Context, slot string) (bool, error) {
	if c.client == nil {
		return true, nil
	}
	won, err := c.client.SetNX(ctx, c.key(slot), c.owner, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim slot %s: %w", slot, err)
	}
	return won, nil
}
