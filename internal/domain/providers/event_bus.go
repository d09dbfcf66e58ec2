package providers

import (
	"context"

	"github.com/zatekoja/bedflow/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.BedEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.BedEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// EventChannel constants for different event types
const (
	// EventChannelBedUpdates is the channel for all bed updates
	EventChannelBedUpdates = "beds:updates"

	// EventChannelWardPrefix is the prefix for ward-specific channels
	EventChannelWardPrefix = "ward:"
)

// GetWardChannel returns the channel name for a specific ward
func GetWardChannel(wardID string) string {
	return EventChannelWardPrefix + wardID
}
