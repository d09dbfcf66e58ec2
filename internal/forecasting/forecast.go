// Package forecasting projects next-day ward occupancy and derives reallocation advice.
// Everything here is a pure function of its inputs.
package forecasting

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zatekoja/bedflow/internal/domain/entities"
)

const (
	// MaxHistory is the number of most recent daily records a forecast considers
	MaxHistory = 15
	// LiveEpsilon is the minimum difference, in percentage points, for the live rate to count as a new sample
	LiveEpsilon = 0.1
)

var alpha = decimal.NewFromFloat(0.3)

// Input is everything a forecast run needs
type Input struct {
	// History holds daily records ordered oldest first
	History []*entities.DailyRecord
	// Live is the current snapshot; nil when unavailable
	Live *entities.Snapshot
	// ScheduledDischarges maps ward ID to departures expected within the horizon
	ScheduledDischarges map[string]int
	// WardNames is optional display metadata
	WardNames   map[string]string
	HorizonDate time.Time
}

// Forecast projects every ward that has at least one historical or live sample.
// Wards without samples are omitted. Output is ordered by ward ID.
func Forecast(in Input) []entities.Forecast {
	history := in.History
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	wardIDs := make(map[string]struct{})
	for _, rec := range history {
		for id := range rec.Wards {
			wardIDs[id] = struct{}{}
		}
	}
	if in.Live != nil {
		for id := range in.Live.Wards {
			wardIDs[id] = struct{}{}
		}
	}

	ids := make([]string, 0, len(wardIDs))
	for id := range wardIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]entities.Forecast, 0, len(ids))
	for _, id := range ids {
		if f, ok := forecastWard(id, history, in); ok {
			out = append(out, f)
		}
	}
	return out
}

func forecastWard(wardID string, history []*entities.DailyRecord, in Input) (entities.Forecast, bool) {
	var (
		samples []float64
		total   int
	)
	for _, rec := range history {
		if stats, ok := rec.Wards[wardID]; ok {
			samples = append(samples, stats.OccupancyRate)
			total = stats.Total
		}
	}
	historical := len(samples)

	live, hasLive := in.Live.WardRate(wardID)
	if hasLive {
		total = in.Live.Wards[wardID].Total
		if historical == 0 || abs(live-samples[historical-1]) > LiveEpsilon {
			samples = append(samples, live)
		}
	}
	if len(samples) == 0 {
		return entities.Forecast{}, false
	}

	current := samples[len(samples)-1]
	if hasLive {
		current = live
	}

	projected := decimal.NewFromFloat(samples[0])
	if len(samples) > 1 {
		projected = smooth(samples[:historical], current)
	}

	scheduled := in.ScheduledDischarges[wardID]
	adjustment := dischargeAdjustment(scheduled, total)
	projected = clamp(projected.Add(adjustment)).Round(1)

	return entities.Forecast{
		WardID:              wardID,
		WardName:            in.WardNames[wardID],
		CurrentRate:         current,
		ProjectedRate:       projected.InexactFloat64(),
		Trend:               trend(samples),
		ScheduledDischarges: scheduled,
		DischargeAdjustment: adjustment.Round(2).InexactFloat64(),
		SampleCount:         len(samples),
		HorizonDate:         in.HorizonDate,
	}, true
}

// smooth seeds with the earliest sample, folds in the rest and projects one step past current
func smooth(history []float64, current float64) decimal.Decimal {
	oneMinus := decimal.NewFromInt(1).Sub(alpha)
	forecast := decimal.NewFromFloat(history[0])
	for _, sample := range history[1:] {
		forecast = alpha.Mul(decimal.NewFromFloat(sample)).Add(oneMinus.Mul(forecast))
	}
	return alpha.Mul(decimal.NewFromFloat(current)).Add(oneMinus.Mul(forecast))
}

// dischargeAdjustment is the occupancy drop, in percentage points, that scheduled departures imply
func dischargeAdjustment(scheduled, total int) decimal.Decimal {
	if total <= 0 || scheduled <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(scheduled)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decimal.NewFromInt(100)).
		Neg()
}

func trend(samples []float64) entities.Trend {
	if len(samples) < 2 {
		return entities.TrendStable
	}
	last, prev := samples[len(samples)-1], samples[len(samples)-2]
	switch {
	case last > prev:
		return entities.TrendIncreasing
	case last < prev:
		return entities.TrendDecreasing
	default:
		return entities.TrendStable
	}
}

func clamp(v decimal.Decimal) decimal.Decimal {
	return decimal.Max(decimal.Zero, decimal.Min(v, decimal.NewFromInt(100)))
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
