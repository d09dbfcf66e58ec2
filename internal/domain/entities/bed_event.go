package entities

import (
	"time"

	"github.com/google/uuid"
)

// BedEventType represents the kind of bed transition being announced
type BedEventType string

const (
	BedEventTypeAdmission          BedEventType = "admission"
	BedEventTypeReservation        BedEventType = "reservation"
	BedEventTypeCheckIn            BedEventType = "check_in"
	BedEventTypeDischarge          BedEventType = "discharge"
	BedEventTypeTransfer           BedEventType = "transfer"
	BedEventTypeDenial             BedEventType = "denial"
	BedEventTypeCancellation       BedEventType = "cancellation"
	BedEventTypeStatusChange       BedEventType = "status_change"
	BedEventTypeDwellRelease       BedEventType = "dwell_release"
	BedEventTypeReservationExpired BedEventType = "reservation_expired"
	BedEventTypeWardReconfigured   BedEventType = "ward_reconfigured"
	BedEventTypeOccupancySampled   BedEventType = "occupancy_sampled"
)

// BedEvent represents a real-time update pushed to external listeners
type BedEvent struct {
	ID            string                 `json:"id"`
	EventType     BedEventType           `json:"event_type"`
	WardID        string                 `json:"ward_id,omitempty"`
	BedID         string                 `json:"bed_id,omitempty"`
	RequestID     string                 `json:"request_id,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	ChangedFields map[string]interface{} `json:"changed_fields,omitempty"`
}

// NewBedEvent creates a new bed event
func NewBedEvent(eventType BedEventType, wardID, bedID, requestID string, changedFields map[string]interface{}) *BedEvent {
	return &BedEvent{
		ID:            uuid.NewString(),
		EventType:     eventType,
		WardID:        wardID,
		BedID:         bedID,
		RequestID:     requestID,
		Timestamp:     time.Now().UTC(),
		ChangedFields: changedFields,
	}
}
