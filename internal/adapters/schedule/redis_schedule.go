// Package schedule provides discharge schedule feeds for the forecast engine.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/providers"
	redisclient "github.com/zatekoja/bedflow/internal/infrastructure/clients/redis"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// retention keeps a day's hash around long enough for late forecast reads
const retention = 72 * time.Hour

// RedisSchedule stores planned departures per day as a Redis hash of ward ID to count.
// Upstream planners write to it; the forecast engine reads it.
type RedisSchedule struct {
	client *redisclient.Client
}

var _ providers.DischargeScheduleProvider = (*RedisSchedule)(nil)

// NewRedisSchedule creates a Redis-backed discharge schedule
func NewRedisSchedule(client *redisclient.Client) *RedisSchedule {
	return &RedisSchedule{client: client}
}

// Key returns the hash key holding the departures of day
func Key(day time.Time) string {
	return "discharges:" + entities.DayStart(day).Format(entities.DayLayout)
}

// ScheduledDeparturesByWard implements providers.DischargeScheduleProvider
func (s *RedisSchedule) ScheduledDeparturesByWard(ctx context.Context, day time.Time) (map[string]int, error) {
	raw, err := s.client.Client().HGetAll(ctx, Key(day)).Result()
	if err != nil {
		return nil, apperrors.NewExternalError("failed to read discharge schedule", err)
	}
	return ParseDepartures(raw)
}

// SetDepartures records the planned departures of one ward for day. A count of zero clears the entry.
func (s *RedisSchedule) SetDepartures(ctx context.Context, day time.Time, wardID string, count int) error {
	if wardID == "" {
		return apperrors.NewValidationError("ward_id is required")
	}
	if count < 0 {
		return apperrors.NewValidationError("departures cannot be negative")
	}

	key := Key(day)
	pipe := s.client.Client().TxPipeline()
	if count == 0 {
		pipe.HDel(ctx, key, wardID)
	} else {
		pipe.HSet(ctx, key, wardID, count)
	}
	pipe.Expire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewExternalError("failed to write discharge schedule", err)
	}
	return nil
}

// ParseDepartures converts a stored hash into counts, rejecting malformed or negative values
func ParseDepartures(raw map[string]string) (map[string]int, error) {
	out := make(map[string]int, len(raw))
	for ward, value := range raw {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid departures %q for ward %s: %w", value, ward, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("negative departures for ward %s", ward)
		}
		if n > 0 {
			out[ward] = n
		}
	}
	return out, nil
}
