package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/providers"
	"github.com/zatekoja/bedflow/internal/registry"
)

// RequestDischargeSchedule derives departures from the expected discharge time of admitted requests
type RequestDischargeSchedule struct {
	allocation *AllocationService
	registry   *registry.Registry
}

// NewRequestDischargeSchedule creates a schedule backed by the request book
func NewRequestDischargeSchedule(allocation *AllocationService, reg *registry.Registry) *RequestDischargeSchedule {
	return &RequestDischargeSchedule{allocation: allocation, registry: reg}
}

// ScheduledDeparturesByWard counts occupied or reserved beds whose request expects to leave on day
func (s *RequestDischargeSchedule) ScheduledDeparturesByWard(ctx context.Context, day time.Time) (map[string]int, error) {
	start := entities.DayStart(day)
	end := start.AddDate(0, 0, 1)

	out := make(map[string]int)
	for _, req := range s.allocation.ActiveRequests() {
		if req.ExpectedDischargeAt == nil || req.AssignedBedID == nil {
			continue
		}
		at := req.ExpectedDischargeAt.UTC()
		if at.Before(start) || !at.Before(end) {
			continue
		}
		bed, err := s.registry.Get(*req.AssignedBedID)
		if err != nil || entities.StringValue(bed.RequestID) != req.ID {
			continue
		}
		out[bed.WardID]++
	}
	return out, nil
}

// CombinedDischargeSchedule sums the departures reported by several providers. A failing
// provider is logged and skipped so one missing feed never blanks the forecast.
type CombinedDischargeSchedule struct {
	sources []providers.DischargeScheduleProvider
}

// NewCombinedDischargeSchedule combines the non-nil providers
func NewCombinedDischargeSchedule(sources ...providers.DischargeScheduleProvider) *CombinedDischargeSchedule {
	c := &CombinedDischargeSchedule{}
	for _, src := range sources {
		if src != nil {
			c.sources = append(c.sources, src)
		}
	}
	return c
}

// ScheduledDeparturesByWard implements providers.DischargeScheduleProvider
func (c *CombinedDischargeSchedule) ScheduledDeparturesByWard(ctx context.Context, day time.Time) (map[string]int, error) {
	out := make(map[string]int)
	for _, src := range c.sources {
		counts, err := src.ScheduledDeparturesByWard(ctx, day)
		if err != nil {
			log.Warn().Err(err).Msg("discharge schedule source unavailable")
			continue
		}
		for ward, n := range counts {
			out[ward] += n
		}
	}
	return out, nil
}
