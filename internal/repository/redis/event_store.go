package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const eventKeyPrefix = "softhire:webhook:event:"

// EventStore records processed payment webhook ids in Redis so that
// redeliveries are acknowledged across instances.
type EventStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewEventStore(client *goredis.Client, ttl time.Duration) *EventStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &EventStore{client: client, ttl: ttl}
}

func (s *EventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := s.client.Exists(ctx, eventKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return n > 0, nil
}

func (s *EventStore) Remember(ctx context.Context, eventID string) error {
	if err := s.client.SetNX(ctx, eventKeyPrefix+eventID, time.Now().UTC().Format(time.RFC3339), s.ttl).Err(); err != nil {
		return fmt.Errorf("remember webhook event: %w", err)
	}
	return nil
}
