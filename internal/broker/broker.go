// Package broker fans out render lifecycle events to per-user channels
// over Redis pub/sub. Delivery is at-most-once per connected subscriber;
// clients that miss an event fall back to the polling status API.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventKind identifies the terminal outcome an event reports.
type EventKind string

const (
	EventRenderCompleted EventKind = "render.completed"
	EventRenderFailed    EventKind = "render.failed"
)

// Event is the message pushed to a user's channel when one of their
// render jobs reaches a terminal state.
type Event struct {
	Kind           EventKind `json:"event"`
	JobID          string    `json:"jobId"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	ResultImageURL string    `json:"resultImageUrl,omitempty"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
}

// UserChannel names the pub/sub channel scoped to one user.
func UserChannel(userID int64) string {
	return "user-events:" + strconv.FormatInt(userID, 10)
}

// Publisher is the side the pipeline executor sees.
type Publisher interface {
	Publish(ctx context.Context, userID int64, event Event) error
}

// Broker publishes and subscribes to user event channels on Redis.
type Broker struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

// New creates a broker over the shared Redis client.
func New(rdb *redis.Client, logger zerolog.Logger) *Broker {
	return &Broker{rdb: rdb, logger: logger}
}

// Publish sends one event to the user's channel.
func (b *Broker) Publish(ctx context.Context, userID int64, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	channel := UserChannel(userID)
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	b.logger.Debug().Str("channel", channel).Str("job_id", event.JobID).Msg("broker: event published")
	return nil
}

// Subscription is one live subscription to a user's channel. Close it
// when the consumer disconnects.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe opens a dedicated subscriber connection for the user's
// channel. SUBSCRIBE blocks a connection, so this never shares the
// publishing client.
func (b *Broker) Subscribe(ctx context.Context, userID int64) *Subscription {
	return &Subscription{pubsub: b.rdb.Subscribe(ctx, UserChannel(userID))}
}

// Messages returns the channel raw payloads arrive on.
func (s *Subscription) Messages() <-chan *redis.Message {
	return s.pubsub.Channel()
}

// Close tears the subscription down.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
