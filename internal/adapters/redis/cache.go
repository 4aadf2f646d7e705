package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-ticketing/internal/ticketing"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// GetAvailability returns a cached availability snapshot, or nil on miss.
// The snapshot is advisory; checkout always re-checks inside its
// transaction.
func (c *Cache) GetAvailability(ctx context.Context, ticketTypeID string) (*ticketing.Availability, error) {
	val, err := c.client.Get(ctx, "availability:"+ticketTypeID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var av ticketing.Availability
	if err := json.Unmarshal(val, &av); err != nil {
		return nil, err
	}
	return &av, nil
}

func (c *Cache) SetAvailability(ctx context.Context, ticketTypeID string, av *ticketing.Availability, ttl time.Duration) error {
	data, err := json.Marshal(av)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "availability:"+ticketTypeID, data, ttl).Err()
}

func (c *Cache) InvalidateAvailability(ctx context.Context, ticketTypeIDs ...string) error {
	if len(ticketTypeIDs) == 0 {
		return nil
	}
	keys := make([]string, len(ticketTypeIDs))
	for i, id := range ticketTypeIDs {
		keys[i] = "availability:" + id
	}
	return c.client.Del(ctx, keys...).Err()
}
