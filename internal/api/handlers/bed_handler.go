package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
)

// BedService defines the bed lifecycle operations used by the handler
type BedService interface {
	Bed(ctx context.Context, bedID string) (*entities.Bed, error)
	Beds(ctx context.Context, wardID string) []*entities.Bed
	CheckIn(ctx context.Context, bedID string) (*entities.Bed, error)
	Discharge(ctx context.Context, bedID string) (*entities.Bed, error)
	SetUnitStatus(ctx context.Context, bedID string, change services.UnitStatusChange) (*entities.Bed, error)
	Transfer(ctx context.Context, bedID, destinationWard, reason string) (*services.TransferResult, error)
}

// BedHandler handles bed endpoints
type BedHandler struct {
	service BedService
}

// NewBedHandler creates a new bed handler
func NewBedHandler(service BedService) *BedHandler {
	return &BedHandler{
		service: service,
	}
}

// ListBeds handles GET /api/beds?ward=
func (h *BedHandler) ListBeds(w http.ResponseWriter, r *http.Request) {
	beds := h.service.Beds(r.Context(), r.URL.Query().Get("ward"))
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"beds":  beds,
		"count": len(beds),
	})
}

// GetBed handles GET /api/beds/{id}
func (h *BedHandler) GetBed(w http.ResponseWriter, r *http.Request) {
	bed, err := h.service.Bed(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, bed)
}

// SetStatus handles PATCH /api/beds/{id}/status
func (h *BedHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var change services.UnitStatusChange
	if !decodeJSON(w, r, &change) {
		return
	}
	if !change.Status.Valid() {
		respondWithError(w, http.StatusBadRequest, "unknown bed status")
		return
	}

	bed, err := h.service.SetUnitStatus(r.Context(), r.PathValue("id"), change)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, bed)
}

// CheckIn handles POST /api/beds/{id}/check-in
func (h *BedHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	bed, err := h.service.CheckIn(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, bed)
}

// Discharge handles POST /api/beds/{id}/discharge
func (h *BedHandler) Discharge(w http.ResponseWriter, r *http.Request) {
	bed, err := h.service.Discharge(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, bed)
}

type transferRequest struct {
	DestinationWard string `json:"destination_ward"`
	Reason          string `json:"reason"`
}

// Transfer handles POST /api/beds/{id}/transfer
func (h *BedHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var payload transferRequest
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.DestinationWard == "" {
		respondWithError(w, http.StatusBadRequest, "destination_ward is required")
		return
	}

	result, err := h.service.Transfer(r.Context(), r.PathValue("id"), payload.DestinationWard, payload.Reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}
