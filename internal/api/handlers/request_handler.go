package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
)

// AdmissionService defines the request workflow used by the handler
type AdmissionService interface {
	SubmitRequest(ctx context.Context, in services.SubmitRequestInput) (*entities.AdmissionRequest, error)
	Approve(ctx context.Context, requestID string, opts services.ApproveOptions) (*entities.AdmissionRequest, error)
	Deny(ctx context.Context, requestID, reason string) (*entities.AdmissionRequest, error)
	Cancel(ctx context.Context, requestID, reason string) (*entities.AdmissionRequest, error)
	GetRequest(ctx context.Context, requestID string) (*entities.AdmissionRequest, error)
	ListRequests(ctx context.Context, filter repositories.RequestFilter) []*entities.AdmissionRequest
}

// RequestHandler handles admission request endpoints
type RequestHandler struct {
	service AdmissionService
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(service AdmissionService) *RequestHandler {
	return &RequestHandler{
		service: service,
	}
}

// SubmitRequest handles POST /api/requests
func (h *RequestHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var in services.SubmitRequestInput
	if !decodeJSON(w, r, &in) {
		return
	}

	req, err := h.service.SubmitRequest(r.Context(), in)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, req)
}

type approveRequest struct {
	BedID string `json:"bed_id,omitempty"`
	// ReservationTTL is a Go duration string such as "90m"
	ReservationTTL string `json:"reservation_ttl,omitempty"`
}

// Approve handles POST /api/requests/{id}/approve. The body is optional.
func (h *RequestHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var payload approveRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &payload) {
			return
		}
	}

	opts := services.ApproveOptions{BedID: payload.BedID}
	if payload.ReservationTTL != "" {
		ttl, err := time.ParseDuration(payload.ReservationTTL)
		if err != nil || ttl <= 0 {
			respondWithError(w, http.StatusBadRequest, "reservation_ttl must be a positive duration")
			return
		}
		opts.ReservationTTL = ttl
	}

	req, err := h.service.Approve(r.Context(), r.PathValue("id"), opts)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// Deny handles POST /api/requests/{id}/deny
func (h *RequestHandler) Deny(w http.ResponseWriter, r *http.Request) {
	var payload reasonRequest
	if !decodeJSON(w, r, &payload) {
		return
	}

	req, err := h.service.Deny(r.Context(), r.PathValue("id"), payload.Reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

// Cancel handles POST /api/requests/{id}/cancel
func (h *RequestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var payload reasonRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &payload) {
			return
		}
	}

	req, err := h.service.Cancel(r.Context(), r.PathValue("id"), payload.Reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

// GetRequest handles GET /api/requests/{id}
func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.service.GetRequest(r.Context(), r.PathValue("id"))
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, req)
}

// ListRequests handles GET /api/requests?status=&limit=
func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter repositories.RequestFilter

	if s := query.Get("status"); s != "" {
		status := entities.RequestStatus(s)
		if !status.Valid() {
			respondWithError(w, http.StatusBadRequest, "unknown request status")
			return
		}
		filter.Status = &status
	}
	if l := query.Get("limit"); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		filter.Limit = limit
	}

	requests := h.service.ListRequests(r.Context(), filter)
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}
