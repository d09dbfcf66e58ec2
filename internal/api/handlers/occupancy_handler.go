package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
)

const defaultHistoryDays = 7

// OccupancyService defines the occupancy reads used by the handler
type OccupancyService interface {
	GetSnapshot(ctx context.Context) *entities.Snapshot
	History(ctx context.Context, window services.HistoryWindow) ([]*entities.DailyRecord, error)
	TodaySnapshots() []entities.Snapshot
}

// OccupancyHandler handles occupancy endpoints
type OccupancyHandler struct {
	service OccupancyService
}

// NewOccupancyHandler creates a new occupancy handler
func NewOccupancyHandler(service OccupancyService) *OccupancyHandler {
	return &OccupancyHandler{
		service: service,
	}
}

// GetSnapshot handles GET /api/occupancy/snapshot
func (h *OccupancyHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.service.GetSnapshot(r.Context()))
}

// GetHistory handles GET /api/occupancy/history?days=N
func (h *OccupancyHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	days := defaultHistoryDays
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "invalid days parameter")
			return
		}
		days = parsed
	}

	records, err := h.service.History(r.Context(), services.HistoryWindow{Days: days})
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	if records == nil {
		records = []*entities.DailyRecord{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"days":    days,
		"records": records,
	})
}

// GetToday handles GET /api/occupancy/today
func (h *OccupancyHandler) GetToday(w http.ResponseWriter, r *http.Request) {
	snapshots := h.service.TodaySnapshots()
	if snapshots == nil {
		snapshots = []entities.Snapshot{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}
