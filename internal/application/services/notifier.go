package services

import (
	"context"
	"time"

	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/providers"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
)

const notifyTimeout = 2 * time.Second

// Notifier announces committed bed transitions on the event bus. Delivery is
// best-effort: a failed publish is logged and never undoes the transition.
type Notifier struct {
	bus providers.EventBus
}

// NewNotifier creates a notifier; a nil bus disables publishing
func NewNotifier(bus providers.EventBus) *Notifier {
	return &Notifier{bus: bus}
}

// Notify publishes the event to the global bed channel and the ward channel
func (n *Notifier) Notify(ctx context.Context, event *entities.BedEvent) {
	if n == nil || n.bus == nil || event == nil {
		return
	}

	// the caller's request may finish before the publish does
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	channels := []string{providers.EventChannelBedUpdates}
	if event.WardID != "" {
		channels = append(channels, providers.GetWardChannel(event.WardID))
	}
	for _, channel := range channels {
		if err := n.bus.Publish(ctx, channel, event); err != nil {
			observability.LoggerFromContext(ctx).Warn().
				Err(err).
				Str("channel", channel).
				Str("event_type", string(event.EventType)).
				Str("bed_id", event.BedID).
				Msg("failed to publish bed event")
		}
	}
}

func bedEvent(eventType entities.BedEventType, bed *entities.Bed, requestID string, fields map[string]interface{}) *entities.BedEvent {
	changed := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		changed[k] = v
	}
	changed["status"] = string(bed.Status)
	return entities.NewBedEvent(eventType, bed.WardID, bed.ID, requestID, changed)
}
