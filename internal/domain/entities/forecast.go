package entities

import (
	"time"
)

// Trend classifies the direction of the last two occupancy samples
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Forecast is the projected next-day occupancy of one ward
type Forecast struct {
	WardID              string    `json:"ward_id"`
	WardName            string    `json:"ward_name,omitempty"`
	CurrentRate         float64   `json:"current_rate"`
	ProjectedRate       float64   `json:"projected_rate"`
	Trend               Trend     `json:"trend"`
	ScheduledDischarges int       `json:"scheduled_discharges"`
	DischargeAdjustment float64   `json:"discharge_adjustment"`
	SampleCount         int       `json:"sample_count"`
	HorizonDate         time.Time `json:"horizon_date"`
}

// SuggestionTier ranks the urgency of a reallocation suggestion
type SuggestionTier string

const (
	SuggestionTierCritical    SuggestionTier = "critical"
	SuggestionTierWarning     SuggestionTier = "warning"
	SuggestionTierOpportunity SuggestionTier = "opportunity"
	SuggestionTierNeutral     SuggestionTier = "neutral"
)

// Suggestion is an advisory recommendation to move capacity between wards
type Suggestion struct {
	Tier         SuggestionTier `json:"tier"`
	TargetWardID string         `json:"target_ward_id,omitempty"`
	SourceWardID string         `json:"source_ward_id,omitempty"`
	Destinations []string       `json:"destinations,omitempty"`
	Rationale    string         `json:"rationale"`
}

// References reports whether the suggestion names the ward as target, source or destination
func (s Suggestion) References(wardID string) bool {
	if s.TargetWardID == wardID || s.SourceWardID == wardID {
		return true
	}
	for _, d := range s.Destinations {
		if d == wardID {
			return true
		}
	}
	return false
}
