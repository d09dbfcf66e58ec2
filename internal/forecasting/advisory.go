package forecasting

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zatekoja/bedflow/internal/domain/entities"
)

// Projected occupancy thresholds, in percent
const (
	CriticalThreshold = 90.0
	WarningThreshold  = 80.0
	LowThreshold      = 60.0
)

// Advise turns forecasts into tiered reallocation suggestions. Critical wards get one
// suggestion each, with the least occupied low ward as source when one exists. Warning wards
// get one only when a source exists. Each low ward gets an opportunity listing every critical
// and warning ward, busiest first. With a ward filter, only suggestions naming that ward are
// kept; if none do, a single neutral placeholder is returned.
func Advise(forecasts []entities.Forecast, wardFilter string) []entities.Suggestion {
	var critical, warning, low []entities.Forecast
	for _, f := range forecasts {
		switch {
		case f.ProjectedRate > CriticalThreshold:
			critical = append(critical, f)
		case f.ProjectedRate > WarningThreshold:
			warning = append(warning, f)
		case f.ProjectedRate < LowThreshold:
			low = append(low, f)
		}
	}

	sortByRate(critical, true)
	sortByRate(warning, true)
	sortByRate(low, false)

	var source *entities.Forecast
	if len(low) > 0 {
		source = &low[0]
	}

	var suggestions []entities.Suggestion
	for _, target := range critical {
		s := entities.Suggestion{
			Tier:         entities.SuggestionTierCritical,
			TargetWardID: target.WardID,
			Rationale: fmt.Sprintf("%s is projected at %.1f%% occupancy tomorrow; no ward has spare capacity to draw from",
				label(target), target.ProjectedRate),
		}
		if source != nil {
			s.SourceWardID = source.WardID
			s.Rationale = fmt.Sprintf("%s is projected at %.1f%% occupancy tomorrow; move staff or beds from %s (%.1f%%)",
				label(target), target.ProjectedRate, label(*source), source.ProjectedRate)
		}
		suggestions = append(suggestions, s)
	}

	if source != nil {
		for _, target := range warning {
			suggestions = append(suggestions, entities.Suggestion{
				Tier:         entities.SuggestionTierWarning,
				TargetWardID: target.WardID,
				SourceWardID: source.WardID,
				Rationale: fmt.Sprintf("%s is projected at %.1f%% occupancy tomorrow; %s (%.1f%%) can absorb overflow",
					label(target), target.ProjectedRate, label(*source), source.ProjectedRate),
			})
		}
	}

	pressured := append(append([]entities.Forecast(nil), critical...), warning...)
	sortByRate(pressured, true)
	for _, ward := range low {
		destinations := make([]string, 0, len(pressured))
		names := make([]string, 0, len(pressured))
		for _, p := range pressured {
			destinations = append(destinations, p.WardID)
			names = append(names, label(p))
		}
		rationale := fmt.Sprintf("%s is projected at %.1f%% occupancy tomorrow and has spare capacity", label(ward), ward.ProjectedRate)
		if len(names) > 0 {
			rationale += "; candidates to support: " + strings.Join(names, ", ")
		}
		suggestions = append(suggestions, entities.Suggestion{
			Tier:         entities.SuggestionTierOpportunity,
			SourceWardID: ward.WardID,
			Destinations: destinations,
			Rationale:    rationale,
		})
	}

	if wardFilter == "" {
		return suggestions
	}

	var scoped []entities.Suggestion
	for _, s := range suggestions {
		if s.References(wardFilter) {
			scoped = append(scoped, s)
		}
	}
	if len(scoped) == 0 {
		return []entities.Suggestion{{
			Tier:         entities.SuggestionTierNeutral,
			TargetWardID: wardFilter,
			Rationale:    fmt.Sprintf("%s is within normal range; no urgent action needed", wardFilter),
		}}
	}
	return scoped
}

// sortByRate orders by projected rate then ward ID
func sortByRate(fs []entities.Forecast, descending bool) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].ProjectedRate != fs[j].ProjectedRate {
			if descending {
				return fs[i].ProjectedRate > fs[j].ProjectedRate
			}
			return fs[i].ProjectedRate < fs[j].ProjectedRate
		}
		return fs[i].WardID < fs[j].WardID
	})
}

func label(f entities.Forecast) string {
	if f.WardName != "" {
		return f.WardName
	}
	return f.WardID
}
