package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// OccupancyStats holds per-status bed counts and the derived occupancy rate
type OccupancyStats struct {
	Total         int     `json:"total"`
	Available     int     `json:"available"`
	Occupied      int     `json:"occupied"`
	Cleaning      int     `json:"cleaning"`
	Reserved      int     `json:"reserved"`
	Maintenance   int     `json:"maintenance"`
	OccupancyRate float64 `json:"occupancy_rate"`
}

// Count adds one bed of the given status
func (s *OccupancyStats) Count(status BedStatus) {
	s.Total++
	switch status {
	case BedStatusAvailable:
		s.Available++
	case BedStatusOccupied:
		s.Occupied++
	case BedStatusCleaning:
		s.Cleaning++
	case BedStatusReserved:
		s.Reserved++
	case BedStatusMaintenance:
		s.Maintenance++
	}
}

// Finalize derives the occupancy rate from the counts
func (s *OccupancyStats) Finalize() {
	s.OccupancyRate = OccupancyRate(s.Occupied, s.Total)
}

// ByStatus returns the count for a status
func (s OccupancyStats) ByStatus(status BedStatus) int {
	switch status {
	case BedStatusAvailable:
		return s.Available
	case BedStatusOccupied:
		return s.Occupied
	case BedStatusCleaning:
		return s.Cleaning
	case BedStatusReserved:
		return s.Reserved
	case BedStatusMaintenance:
		return s.Maintenance
	}
	return 0
}

// OccupancyRate returns 100*occupied/total rounded to two decimals and clamped to [0,100].
// A ward with no beds has a rate of 0.
func OccupancyRate(occupied, total int) float64 {
	if total <= 0 {
		return 0
	}
	rate := decimal.NewFromInt(int64(occupied)).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(total))).
		Round(2)
	rate = decimal.Max(decimal.Zero, decimal.Min(rate, decimal.NewFromInt(100)))
	return rate.InexactFloat64()
}

// Snapshot is an immutable point-in-time aggregate of bed statuses
type Snapshot struct {
	Timestamp time.Time                 `json:"timestamp"`
	Wards     map[string]OccupancyStats `json:"wards"`
	Hospital  OccupancyStats            `json:"hospital"`
}

// WardRate returns the occupancy rate of a ward and whether the ward was present
func (s *Snapshot) WardRate(wardID string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	stats, ok := s.Wards[wardID]
	return stats.OccupancyRate, ok
}

// DailyRecord bundles one day's hourly snapshots with a day-end measurement
type DailyRecord struct {
	Date      time.Time                 `json:"date"`
	Wards     map[string]OccupancyStats `json:"wards"`
	Hospital  OccupancyStats            `json:"hospital"`
	Snapshots []Snapshot                `json:"snapshots"`
}

// DayLayout formats calendar days in keys, records and URLs
const DayLayout = "2006-01-02"

// DayStart truncates t to midnight UTC
func DayStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
