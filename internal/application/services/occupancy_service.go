package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
	"github.com/zatekoja/bedflow/internal/registry"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// HistoryWindow selects daily records by lookback. Days is 0 for today only.
type HistoryWindow struct {
	Days int
}

// OccupancyService turns registry reads into snapshots and daily records
type OccupancyService struct {
	registry *registry.Registry
	records  repositories.DailyRecordRepository
	notifier *Notifier
	metrics  *observability.Metrics

	mu     sync.Mutex
	day    time.Time
	today  []entities.Snapshot
	latest *entities.Snapshot
}

// NewOccupancyService creates a new occupancy service
func NewOccupancyService(reg *registry.Registry, records repositories.DailyRecordRepository, notifier *Notifier, metrics *observability.Metrics) *OccupancyService {
	return &OccupancyService{
		registry: reg,
		records:  records,
		notifier: notifier,
		metrics:  metrics,
	}
}

// Restore reloads the in-progress day saved at the last shutdown
func (s *OccupancyService) Restore(ctx context.Context, now time.Time) error {
	day := entities.DayStart(now)
	recs, err := s.records.ListDailyRecords(ctx, day, day)
	if err != nil {
		return fmt.Errorf("failed to restore today's snapshots: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.day = day
	s.today = nil
	if len(recs) > 0 {
		s.today = append(s.today, recs[len(recs)-1].Snapshots...)
	}
	return nil
}

// Snapshot computes a snapshot from a consistent registry read without storing it
func (s *OccupancyService) Snapshot(now time.Time) *entities.Snapshot {
	var snap *entities.Snapshot
	s.registry.View(func(wards []*entities.Ward, beds []*entities.Bed) {
		snap = aggregate(now, wards, beds)
	})
	return snap
}

// GetSnapshot returns the current occupancy
func (s *OccupancyService) GetSnapshot(ctx context.Context) *entities.Snapshot {
	return s.Snapshot(s.registry.Now())
}

// Sample records an immutable snapshot for the current day. The first sample of a new day
// folds the previous day into a daily record first.
func (s *OccupancyService) Sample(ctx context.Context, now time.Time) (*entities.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := entities.DayStart(now)
	if !s.day.IsZero() && day.After(s.day) {
		if _, err := s.closeDayLocked(ctx, now); err != nil {
			return nil, err
		}
	}
	if s.day.IsZero() {
		s.day = day
	}

	snap := s.Snapshot(now)
	s.today = append(s.today, *snap)
	s.latest = snap

	for wardID, stats := range snap.Wards {
		observability.RecordWardOccupancy(ctx, s.metrics, wardID, stats.OccupancyRate)
	}
	s.notifier.Notify(ctx, entities.NewBedEvent(entities.BedEventTypeOccupancySampled, "", "", "", map[string]interface{}{
		"occupancy_rate": snap.Hospital.OccupancyRate,
		"occupied":       snap.Hospital.Occupied,
		"total":          snap.Hospital.Total,
	}))

	log.Debug().
		Time("at", now).
		Float64("occupancy_rate", snap.Hospital.OccupancyRate).
		Msg("occupancy sampled")

	return snap, nil
}

// CloseDay folds the in-progress day into a daily record using a registry read taken now
func (s *OccupancyService) CloseDay(ctx context.Context, now time.Time) (*entities.DailyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDayLocked(ctx, now)
}

// Checkpoint persists the in-progress day without closing it, so a restart can resume it
func (s *OccupancyService) Checkpoint(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.day.IsZero() || len(s.today) == 0 {
		return nil
	}
	_, err := s.buildRecord(ctx, now)
	return err
}

func (s *OccupancyService) closeDayLocked(ctx context.Context, now time.Time) (*entities.DailyRecord, error) {
	if s.day.IsZero() {
		return nil, nil
	}
	rec, err := s.buildRecord(ctx, now)
	if err != nil {
		return nil, err
	}

	log.Info().
		Time("date", rec.Date).
		Int("snapshots", len(rec.Snapshots)).
		Float64("occupancy_rate", rec.Hospital.OccupancyRate).
		Msg("daily occupancy record closed")

	s.day = entities.DayStart(now)
	s.today = nil
	return rec, nil
}

func (s *OccupancyService) buildRecord(ctx context.Context, now time.Time) (*entities.DailyRecord, error) {
	end := s.Snapshot(now)
	rec := &entities.DailyRecord{
		Date:      s.day,
		Wards:     end.Wards,
		Hospital:  end.Hospital,
		Snapshots: append([]entities.Snapshot(nil), s.today...),
	}
	if err := s.records.SaveDailyRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to save daily record for %s: %w", s.day.Format(entities.DayLayout), err)
	}
	return rec, nil
}

// History returns stored daily records whose date falls within the window, oldest first
func (s *OccupancyService) History(ctx context.Context, window HistoryWindow) ([]*entities.DailyRecord, error) {
	if window.Days < 0 {
		return nil, apperrors.NewValidationError("days cannot be negative")
	}
	to := entities.DayStart(s.registry.Now())
	from := to.AddDate(0, 0, -window.Days)

	recs, err := s.records.ListDailyRecords(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily records: %w", err)
	}
	return recs, nil
}

// TodaySnapshots returns the snapshots recorded so far for the in-progress day
func (s *OccupancyService) TodaySnapshots() []entities.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.Snapshot(nil), s.today...)
}

// LatestSample returns the most recent sampled snapshot, or nil before the first sample
func (s *OccupancyService) LatestSample() *entities.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil
	}
	snap := *s.latest
	return &snap
}

func aggregate(now time.Time, wards []*entities.Ward, beds []*entities.Bed) *entities.Snapshot {
	snap := &entities.Snapshot{
		Timestamp: now,
		Wards:     make(map[string]entities.OccupancyStats, len(wards)),
	}
	for _, ward := range wards {
		snap.Wards[ward.ID] = entities.OccupancyStats{}
	}
	for _, bed := range beds {
		stats := snap.Wards[bed.WardID]
		stats.Count(bed.Status)
		snap.Wards[bed.WardID] = stats
		snap.Hospital.Count(bed.Status)
	}
	for id, stats := range snap.Wards {
		stats.Finalize()
		snap.Wards[id] = stats
	}
	snap.Hospital.Finalize()
	return snap
}
