package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"example.com/cargomarket/config"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Collections carried on the change feed
const (
	CollectionJobs          = "jobs"
	CollectionApplications  = "applications"
	CollectionNotifications = "notifications"
)

// Event is one change published to a user channel. Subscribers use it as
// an invalidation signal and re-read the underlying rows themselves.
type Event struct {
	Collection string    `json:"collection"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	At         time.Time `json:"at"`
}

// UserChannel names the per-user channel for one collection
func UserChannel(userID uuid.UUID, collection string) string {
	return fmt.Sprintf("user:%s:%s", userID.String(), collection)
}

// Feed publishes and subscribes to change events over Redis pub/sub
type Feed struct {
	client  *redis.Client
	enabled bool
}

// NewFeed creates a change feed backed by Redis
func NewFeed(cfg config.RedisConfig) (*Feed, error) {
	if !cfg.Enabled {
		return &Feed{enabled: false}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to Redis for change feed")
	}

	return &Feed{client: client, enabled: true}, nil
}

// NewDisabledFeed creates a feed that drops every publish and never
// delivers events. Used in tests and Redis-less deployments.
func NewDisabledFeed() *Feed {
	return &Feed{enabled: false}
}

// Publish sends a change event to a channel. Publishing is best-effort:
// a dropped event only delays a dashboard refresh.
func (f *Feed) Publish(ctx context.Context, channel string, event Event) error {
	if !f.enabled {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal change event")
	}

	if err := f.client.Publish(ctx, channel, data).Err(); err != nil {
		return errors.Wrap(err, "failed to publish change event")
	}

	return nil
}

// Subscribe fans in events from all given channels into one handler. The
// handler runs on the subscription goroutine; it is invoked once per
// underlying change and must not block for long. The returned func stops
// the subscription.
func (f *Feed) Subscribe(ctx context.Context, channels []string, handler func(Event)) (func(), error) {
	if !f.enabled {
		return func() {}, nil
	}

	pubsub := f.client.Subscribe(ctx, channels...)

	// Confirm the subscription before returning
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(err, "failed to subscribe to change feed")
	}

	go func() {
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed change event")
				continue
			}
			handler(event)
		}
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing change feed subscription")
		}
	}, nil
}

// Close closes the Redis connection
func (f *Feed) Close() error {
	if !f.enabled || f.client == nil {
		return nil
	}
	return f.client.Close()
}
