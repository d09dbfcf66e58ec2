package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/providers"
	"github.com/zatekoja/bedflow/internal/forecasting"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
	"github.com/zatekoja/bedflow/internal/registry"
)

// lookbackWindows are tried in order until the engine's full history is found.
// The engine keeps only the newest forecasting.MaxHistory records.
var lookbackWindows = []int{forecasting.MaxHistory, 2 * forecasting.MaxHistory}

// ForecastService runs the forecast engine over stored history and the live registry
type ForecastService struct {
	registry  *registry.Registry
	occupancy *OccupancyService
	schedule  providers.DischargeScheduleProvider
	cache     providers.CacheProvider
	metrics   *observability.Metrics
	cacheTTL  time.Duration
}

// NewForecastService creates a new forecast service. cache may be nil; results are then
// recomputed on every call.
func NewForecastService(
	reg *registry.Registry,
	occupancy *OccupancyService,
	schedule providers.DischargeScheduleProvider,
	cache providers.CacheProvider,
	metrics *observability.Metrics,
	cacheTTL time.Duration,
) *ForecastService {
	return &ForecastService{
		registry:  reg,
		occupancy: occupancy,
		schedule:  schedule,
		cache:     cache,
		metrics:   metrics,
		cacheTTL:  cacheTTL,
	}
}

// GetForecasts returns next-day forecasts, optionally for a single ward. Wards without any
// sample are omitted rather than reported as errors.
func (s *ForecastService) GetForecasts(ctx context.Context, wardFilter string) ([]entities.Forecast, error) {
	if wardFilter != "" {
		if _, err := s.registry.Ward(wardFilter); err != nil {
			return nil, err
		}
	}

	all, err := s.forecastAll(ctx)
	if err != nil {
		return nil, err
	}
	if wardFilter == "" {
		return all, nil
	}

	out := make([]entities.Forecast, 0, 1)
	for _, f := range all {
		if f.WardID == wardFilter {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *ForecastService) forecastAll(ctx context.Context) ([]entities.Forecast, error) {
	now := s.registry.Now()
	key := memoKey(now, s.occupancy.LatestSample())

	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}

	history, err := s.history(ctx, now)
	if err != nil {
		return nil, err
	}

	horizon := entities.DayStart(now).AddDate(0, 0, 1)
	departures := map[string]int{}
	if s.schedule != nil {
		if departures, err = s.schedule.ScheduledDeparturesByWard(ctx, horizon); err != nil {
			log.Warn().Err(err).Msg("discharge schedule unavailable, forecasting without it")
			departures = map[string]int{}
		}
	}

	names := make(map[string]string)
	for _, ward := range s.registry.Wards() {
		names[ward.ID] = ward.Name
	}

	forecasts := forecasting.Forecast(forecasting.Input{
		History:             history,
		Live:                s.occupancy.GetSnapshot(ctx),
		ScheduledDischarges: departures,
		WardNames:           names,
		HorizonDate:         horizon,
	})

	s.toCache(ctx, key, forecasts)
	return forecasts, nil
}

// history widens the lookback until a full history of completed days exists or the widest
// window is used. Today's checkpointed record is partial and never counts as history.
func (s *ForecastService) history(ctx context.Context, now time.Time) ([]*entities.DailyRecord, error) {
	today := entities.DayStart(now)
	var recs []*entities.DailyRecord
	for _, days := range lookbackWindows {
		window, err := s.occupancy.History(ctx, HistoryWindow{Days: days})
		if err != nil {
			return nil, err
		}
		recs = recs[:0]
		for _, rec := range window {
			if rec.Date.Before(today) {
				recs = append(recs, rec)
			}
		}
		if len(recs) >= forecasting.MaxHistory {
			break
		}
	}
	return recs, nil
}

// memoKey identifies the latest sample by content so processes sharing the cache only share
// results computed from the same registry state. Nothing is memoized before the first sample.
func memoKey(now time.Time, latest *entities.Snapshot) string {
	if latest == nil {
		return ""
	}
	data, err := json.Marshal(latest)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("forecast:%s:%s", entities.DayStart(now).Format(entities.DayLayout), hex.EncodeToString(sum[:12]))
}

func (s *ForecastService) fromCache(ctx context.Context, key string) ([]entities.Forecast, bool) {
	if s.cache == nil || key == "" {
		return nil, false
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, providers.ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("forecast cache read failed")
		}
		observability.RecordCacheMiss(ctx, s.metrics, key)
		return nil, false
	}

	var forecasts []entities.Forecast
	if err := json.Unmarshal(data, &forecasts); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("discarding undecodable forecast cache entry")
		return nil, false
	}
	observability.RecordCacheHit(ctx, s.metrics, key)
	return forecasts, true
}

func (s *ForecastService) toCache(ctx context.Context, key string, forecasts []entities.Forecast) {
	if s.cache == nil || key == "" {
		return
	}
	data, err := json.Marshal(forecasts)
	if err != nil {
		return
	}
	ttl := int(s.cacheTTL.Seconds())
	if ttl <= 0 {
		ttl = 60
	}
	if err := s.cache.Set(ctx, key, data, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("forecast cache write failed")
	}
}

// AdvisoryService produces reallocation suggestions from the current forecasts
type AdvisoryService struct {
	registry  *registry.Registry
	forecasts *ForecastService
}

// NewAdvisoryService creates a new advisory service
func NewAdvisoryService(reg *registry.Registry, forecasts *ForecastService) *AdvisoryService {
	return &AdvisoryService{registry: reg, forecasts: forecasts}
}

// GetSuggestions returns tiered suggestions, scoped to one ward when wardFilter is set
func (s *AdvisoryService) GetSuggestions(ctx context.Context, wardFilter string) ([]entities.Suggestion, error) {
	if wardFilter != "" {
		if _, err := s.registry.Ward(wardFilter); err != nil {
			return nil, err
		}
	}
	all, err := s.forecasts.GetForecasts(ctx, "")
	if err != nil {
		return nil, err
	}
	return forecasting.Advise(all, wardFilter), nil
}
