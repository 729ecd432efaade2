package redis

import (
	"context"
	"encoding/json"

	errors "github.com/Laisky/errors/v2"

	"github.com/Laisky/docspace/internal/docs/jobs"
)

// EventPublisher publishes job lifecycle events to a redis channel.
type EventPublisher struct {
	db      *DB
	channel string
}

// NewEventPublisher returns a publisher for channel, defaulting to DefaultEventsChannel.
func NewEventPublisher(db *DB, channel string) *EventPublisher {
	if channel == "" {
		channel = DefaultEventsChannel
	}
	return &EventPublisher{db: db, channel: channel}
}

// Publish implements jobs.EventSink.
func (p *EventPublisher) Publish(ctx context.Context, evt jobs.Event) error {
	if p == nil || p.db == nil || p.db.client == nil {
		return errors.New("redis client is required")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshal job event")
	}
	if err := p.db.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return errors.Wrapf(err, "publish to %s", p.channel)
	}
	return nil
}
