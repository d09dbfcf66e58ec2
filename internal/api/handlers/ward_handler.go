package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
)

// WardService defines the ward operations used by the handler
type WardService interface {
	ListWards(ctx context.Context) []services.WardView
	ReconfigureWard(ctx context.Context, ward *entities.Ward, beds []*entities.Bed) (*entities.Ward, error)
}

// WardHandler handles ward endpoints
type WardHandler struct {
	service WardService
}

// NewWardHandler creates a new ward handler
func NewWardHandler(service WardService) *WardHandler {
	return &WardHandler{
		service: service,
	}
}

// ListWards handles GET /api/wards
func (h *WardHandler) ListWards(w http.ResponseWriter, r *http.Request) {
	wards := h.service.ListWards(r.Context())
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"wards": wards,
		"count": len(wards),
	})
}

type wardBedRequest struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	EquipmentTag string `json:"equipment_tag,omitempty"`
}

type reconfigureWardRequest struct {
	Name     string           `json:"name"`
	WardType string           `json:"ward_type,omitempty"`
	Capacity int              `json:"capacity"`
	Beds     []wardBedRequest `json:"beds"`
}

// ReconfigureWard handles PUT /api/wards/{id}. The body lists the full bed
// membership; beds not listed are removed and capacity must match the list.
func (h *WardHandler) ReconfigureWard(w http.ResponseWriter, r *http.Request) {
	var payload reconfigureWardRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	ward := &entities.Ward{
		ID:       r.PathValue("id"),
		Name:     payload.Name,
		WardType: entities.StringPtr(payload.WardType),
		Capacity: payload.Capacity,
	}
	if ward.Name == "" {
		ward.Name = ward.ID
	}
	beds := make([]*entities.Bed, 0, len(payload.Beds))
	for _, b := range payload.Beds {
		beds = append(beds, &entities.Bed{
			ID:           b.ID,
			WardID:       ward.ID,
			Label:        b.Label,
			EquipmentTag: entities.StringPtr(b.EquipmentTag),
		})
	}

	updated, err := h.service.ReconfigureWard(r.Context(), ward, beds)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}
