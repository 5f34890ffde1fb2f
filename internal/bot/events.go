package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/mtbar/concerts/pkg/models"
)

// Topics of the internal pub/sub
const (
	TopicEventChanged = "event_changed"
	TopicDigest       = "digest"
)

// EventChangedEvent carries the snapshot of an event after a write
type EventChangedEvent struct {
	Event     models.Event `json:"event"`
	Timestamp time.Time    `json:"timestamp"`
}

// Marshal serializes the event to JSON
func (e EventChangedEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEventChangedEvent deserializes JSON to EventChangedEvent
func UnmarshalEventChangedEvent(data []byte) (EventChangedEvent, error) {
	var event EventChangedEvent
	err := json.Unmarshal(data, &event)
	return event, err
}

// DigestEvent is published once a day to broadcast the digest
type DigestEvent struct {
	TriggeredAt time.Time `json:"triggered_at"`
}

// Marshal serializes the event to JSON
func (e DigestEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalDigestEvent deserializes JSON to DigestEvent
func UnmarshalDigestEvent(data []byte) (DigestEvent, error) {
	var event DigestEvent
	err := json.Unmarshal(data, &event)
	return event, err
}

// ChangeFeed hands event snapshots to the spreadsheet sync handler.
// Publishing never blocks the caller on the sync itself.
type ChangeFeed struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewChangeFeed creates a new change feed
func NewChangeFeed(publisher message.Publisher, logger *slog.Logger) *ChangeFeed {
	return &ChangeFeed{
		publisher: publisher,
		logger:    logger.WithGroup("bot.feed"),
	}
}

// Sync publishes the snapshot. Failures are logged only.
func (f *ChangeFeed) Sync(ctx context.Context, event models.Event) {
	if err := f.publish(event); err != nil {
		f.logger.ErrorContext(ctx, "Failed to publish event change", slog.Any("error", err),
			slog.Int64("event_id", event.ID),
		)
	}
}

func (f *ChangeFeed) publish(event models.Event) error {
	data, err := EventChangedEvent{Event: event, Timestamp: time.Now()}.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event change: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	return f.publisher.Publish(TopicEventChanged, msg)
}
