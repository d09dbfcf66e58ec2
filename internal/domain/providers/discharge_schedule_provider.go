package providers

import (
	"context"
	"time"
)

// DischargeScheduleProvider reports how many occupants are expected to leave each ward
type DischargeScheduleProvider interface {
	// ScheduledDeparturesByWard returns ward ID -> departures expected on the given day
	ScheduledDeparturesByWard(ctx context.Context, day time.Time) (map[string]int, error)
}
