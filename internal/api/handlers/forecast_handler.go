package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/providers"
)

// ForecastService defines the forecast read used by the handler
type ForecastService interface {
	GetForecasts(ctx context.Context, wardFilter string) ([]entities.Forecast, error)
}

// AdvisoryService defines the suggestion read used by the handler
type AdvisoryService interface {
	GetSuggestions(ctx context.Context, wardFilter string) ([]entities.Suggestion, error)
}

// ScheduleWriter records externally planned departures
type ScheduleWriter interface {
	SetDepartures(ctx context.Context, day time.Time, wardID string, count int) error
}

// WardLookup resolves ward IDs
type WardLookup interface {
	Ward(id string) (*entities.Ward, error)
}

// ForecastHandler handles forecast, advisory and discharge schedule endpoints
type ForecastHandler struct {
	forecasts ForecastService
	advisory  AdvisoryService
	schedule  providers.DischargeScheduleProvider
	writer    ScheduleWriter
	wards     WardLookup
}

// NewForecastHandler creates a new forecast handler. schedule and writer may be nil,
// in which case the discharge schedule endpoints answer 503.
func NewForecastHandler(
	forecasts ForecastService,
	advisory AdvisoryService,
	schedule providers.DischargeScheduleProvider,
	writer ScheduleWriter,
	wards WardLookup,
) *ForecastHandler {
	return &ForecastHandler{
		forecasts: forecasts,
		advisory:  advisory,
		schedule:  schedule,
		writer:    writer,
		wards:     wards,
	}
}

// GetForecasts handles GET /api/forecasts?ward=
func (h *ForecastHandler) GetForecasts(w http.ResponseWriter, r *http.Request) {
	forecasts, err := h.forecasts.GetForecasts(r.Context(), r.URL.Query().Get("ward"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if forecasts == nil {
		forecasts = []entities.Forecast{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"forecasts": forecasts,
		"count":     len(forecasts),
	})
}

// GetSuggestions handles GET /api/suggestions?ward=
func (h *ForecastHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := h.advisory.GetSuggestions(r.Context(), r.URL.Query().Get("ward"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if suggestions == nil {
		suggestions = []entities.Suggestion{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// GetDischargeSchedule handles GET /api/discharge-schedule/{date}
func (h *ForecastHandler) GetDischargeSchedule(w http.ResponseWriter, r *http.Request) {
	if h.schedule == nil {
		respondWithError(w, http.StatusServiceUnavailable, "discharge schedule not configured")
		return
	}
	day, ok := parseDay(w, r.PathValue("date"))
	if !ok {
		return
	}

	departures, err := h.schedule.ScheduledDeparturesByWard(r.Context(), day)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if departures == nil {
		departures = map[string]int{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":       day.Format(entities.DayLayout),
		"departures": departures,
	})
}

type setDeparturesRequest struct {
	Count int `json:"count"`
}

// SetDepartures handles PUT /api/discharge-schedule/{date}/{ward}
func (h *ForecastHandler) SetDepartures(w http.ResponseWriter, r *http.Request) {
	if h.writer == nil {
		respondWithError(w, http.StatusServiceUnavailable, "discharge schedule not configured")
		return
	}
	day, ok := parseDay(w, r.PathValue("date"))
	if !ok {
		return
	}
	wardID := r.PathValue("ward")
	if h.wards != nil {
		if _, err := h.wards.Ward(wardID); err != nil {
			respondWithAppError(w, err)
			return
		}
	}

	var payload setDeparturesRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if err := h.writer.SetDepartures(r.Context(), day, wardID, payload.Count); err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"date":  day.Format(entities.DayLayout),
		"ward":  wardID,
		"count": payload.Count,
	})
}

func parseDay(w http.ResponseWriter, raw string) (time.Time, bool) {
	day, err := time.ParseInLocation(entities.DayLayout, raw, time.UTC)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return day, true
}
