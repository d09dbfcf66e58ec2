package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sampler is the fixed-cadence clock of the core. Every tick first runs the
// time-triggered bed releases and then records an occupancy sample.
type Sampler struct {
	allocation *AllocationService
	occupancy  *OccupancyService
	interval   time.Duration
	now        func() time.Time
}

// NewSampler creates a sampler ticking every interval
func NewSampler(allocation *AllocationService, occupancy *OccupancyService, interval time.Duration, now func() time.Time) *Sampler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Sampler{
		allocation: allocation,
		occupancy:  occupancy,
		interval:   interval,
		now:        now,
	}
}

// Run ticks until ctx is cancelled, then checkpoints the in-progress day
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if err := s.occupancy.Checkpoint(shutdownCtx, s.now()); err != nil {
				log.Error().Err(err).Msg("failed to checkpoint occupancy on shutdown")
			}
			cancel()
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one release pass and one sample
func (s *Sampler) Tick(ctx context.Context) {
	now := s.now()
	if _, err := s.allocation.ReleaseExpired(ctx, now); err != nil {
		log.Error().Err(err).Msg("time-triggered release pass failed")
	}
	if _, err := s.occupancy.Sample(ctx, now); err != nil {
		log.Error().Err(err).Msg("occupancy sample failed")
	}
}
