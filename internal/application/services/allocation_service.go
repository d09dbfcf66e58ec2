package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
	"github.com/zatekoja/bedflow/internal/registry"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// AllocationConfig holds the lifecycle timings used by the allocation protocol
type AllocationConfig struct {
	MinCleaningDwell time.Duration
	ReservationTTL   time.Duration
}

// AllocationService drives the bed lifecycle and the admission request workflow.
//
// Lock order is always request first, then beds. Operations that start from a bed
// read its linked request unlocked, lock the request, and re-check the link under
// the bed lock.
type AllocationService struct {
	registry *registry.Registry
	requests *requestBook
	notifier *Notifier
	metrics  *observability.Metrics
	cfg      AllocationConfig
}

// NewAllocationService creates a new allocation service
func NewAllocationService(reg *registry.Registry, notifier *Notifier, metrics *observability.Metrics, cfg AllocationConfig) *AllocationService {
	return &AllocationService{
		registry: reg,
		requests: newRequestBook(),
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// SubmitRequestInput carries the fields of a new admission request
type SubmitRequestInput struct {
	PatientRef          string     `json:"patient_ref"`
	WardPreference      string     `json:"ward_preference"`
	EquipmentTag        string     `json:"equipment_tag,omitempty"`
	Priority            int        `json:"priority"`
	ETA                 *time.Time `json:"eta,omitempty"`
	ExpectedDischargeAt *time.Time `json:"expected_discharge_at,omitempty"`
}

// ApproveOptions pins a bed or asks for a reservation hold
type ApproveOptions struct {
	BedID          string        `json:"bed_id,omitempty"`
	ReservationTTL time.Duration `json:"reservation_ttl,omitempty"`
}

// LoadRequests restores the request book from persistence
func (s *AllocationService) LoadRequests(ctx context.Context, repo repositories.RequestRepository) error {
	reqs, err := repo.ListRequests(ctx, repositories.RequestFilter{})
	if err != nil {
		return fmt.Errorf("failed to load admission requests: %w", err)
	}
	s.requests.put(reqs...)
	log.Info().Int("count", len(reqs)).Msg("admission requests loaded")
	return nil
}

// SubmitRequest records a new pending admission request
func (s *AllocationService) SubmitRequest(ctx context.Context, in SubmitRequestInput) (*entities.AdmissionRequest, error) {
	patient := strings.TrimSpace(in.PatientRef)
	if patient == "" {
		return nil, apperrors.NewValidationError("patient_ref is required")
	}
	if in.WardPreference == "" {
		return nil, apperrors.NewValidationError("ward_preference is required")
	}
	if _, err := s.registry.Ward(in.WardPreference); err != nil {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown ward %s", in.WardPreference))
	}
	if in.Priority < 0 {
		return nil, apperrors.NewValidationError("priority cannot be negative")
	}

	now := s.registry.Now()
	eta := now
	if in.ETA != nil && !in.ETA.IsZero() {
		eta = in.ETA.UTC()
	}

	req := &entities.AdmissionRequest{
		ID:                  uuid.New().String(),
		PatientRef:          patient,
		WardPreference:      in.WardPreference,
		EquipmentTag:        entities.StringPtr(in.EquipmentTag),
		Priority:            in.Priority,
		ETA:                 eta,
		ExpectedDischargeAt: in.ExpectedDischargeAt,
		Status:              entities.RequestStatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.persistRequest(ctx, req); err != nil {
		return nil, err
	}
	s.requests.put(req)

	observability.LoggerFromContext(ctx).Debug().
		Str("request_id", req.ID).
		Str("ward", req.WardPreference).
		Int("priority", req.Priority).
		Msg("admission request submitted")

	return req.Clone(), nil
}

// Approve assigns a bed to a pending request. Without an explicit bed the best candidate is
// searched: ward plus equipment match, then equipment match, then ward match, then any bed,
// lowest bed ID first. When nothing is free the request stays pending and a NoCapacity error
// naming the requested ward is returned.
func (s *AllocationService) Approve(ctx context.Context, requestID string, opts ApproveOptions) (*entities.AdmissionRequest, error) {
	unlock := s.requests.lock(requestID)
	defer unlock()

	req, err := s.requests.get(requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(entities.RequestStatusApproved) {
		return nil, apperrors.NewInvalidTransitionError("request", req.ID, string(req.Status), string(entities.RequestStatusApproved))
	}

	now := s.registry.Now()
	reserve := opts.ReservationTTL > 0 || req.ETA.After(now)
	ttl := opts.ReservationTTL
	if ttl <= 0 {
		ttl = s.cfg.ReservationTTL
	}
	target := entities.BedStatusOccupied
	if reserve {
		target = entities.BedStatusReserved
	}

	var (
		updated *entities.AdmissionRequest
		bed     *entities.Bed
	)
	assign := func(tx *registry.Tx, bedID string) error {
		b, err := tx.Transition(bedID, target)
		if err != nil {
			return err
		}
		b.PatientRef = entities.StringPtr(req.PatientRef)
		b.RequestID = entities.StringPtr(req.ID)

		updated = req.Clone()
		updated.Status = entities.RequestStatusApproved
		updated.AssignedBedID = entities.StringPtr(bedID)
		updated.UpdatedAt = tx.Now()
		if reserve {
			expires := tx.Now().Add(ttl)
			updated.ReservationExpiresAt = &expires
		}
		tx.StageRequest(updated)
		bed = b.Clone()
		return nil
	}

	if opts.BedID != "" {
		err = s.registry.Mutate(ctx, []string{opts.BedID}, func(tx *registry.Tx) error {
			if current := tx.Bed(opts.BedID); current.Status != entities.BedStatusAvailable {
				return apperrors.NewInvalidTransitionError("bed", current.ID, string(current.Status), string(target))
			}
			return assign(tx, opts.BedID)
		})
	} else {
		_, err = s.registry.Allocate(ctx, "", candidateRank(req.WardPreference, req.Equipment()), nil, req.WardPreference, assign)
	}
	s.record(ctx, "approve", err)
	if err != nil {
		if apperrors.IsNoCapacity(err) {
			observability.LoggerFromContext(ctx).Info().
				Str("request_id", req.ID).
				Str("ward", req.WardPreference).
				Msg("no bed available, request stays pending")
		}
		return nil, err
	}
	s.requests.put(updated)

	eventType := entities.BedEventTypeAdmission
	if reserve {
		eventType = entities.BedEventTypeReservation
	}
	s.notifier.Notify(ctx, bedEvent(eventType, bed, req.ID, map[string]interface{}{
		"patient_ref": req.PatientRef,
	}))

	observability.LoggerFromContext(ctx).Debug().
		Str("request_id", req.ID).
		Str("bed_id", bed.ID).
		Str("status", string(bed.Status)).
		Msg("admission request approved")

	return updated.Clone(), nil
}

// Deny rejects a pending request with a reason
func (s *AllocationService) Deny(ctx context.Context, requestID, reason string) (*entities.AdmissionRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("a denial reason is required")
	}

	unlock := s.requests.lock(requestID)
	defer unlock()

	req, err := s.requests.get(requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(entities.RequestStatusDenied) {
		return nil, apperrors.NewInvalidTransitionError("request", req.ID, string(req.Status), string(entities.RequestStatusDenied))
	}

	req.Status = entities.RequestStatusDenied
	req.DenialReason = entities.StringPtr(reason)
	req.UpdatedAt = s.registry.Now()

	err = s.persistRequest(ctx, req)
	s.record(ctx, "deny", err)
	if err != nil {
		return nil, err
	}
	s.requests.put(req)

	s.notifier.Notify(ctx, entities.NewBedEvent(entities.BedEventTypeDenial, req.WardPreference, "", req.ID, map[string]interface{}{
		"reason": reason,
	}))
	return req.Clone(), nil
}

// Cancel withdraws a pending or approved request. A held reservation is released; a request
// whose patient already occupies the bed must be discharged instead.
func (s *AllocationService) Cancel(ctx context.Context, requestID, reason string) (*entities.AdmissionRequest, error) {
	unlock := s.requests.lock(requestID)
	defer unlock()

	req, err := s.requests.get(requestID)
	if err != nil {
		return nil, err
	}
	if !req.Status.CanTransitionTo(entities.RequestStatusCancelled) {
		return nil, apperrors.NewInvalidTransitionError("request", req.ID, string(req.Status), string(entities.RequestStatusCancelled))
	}

	updated := req.Clone()
	updated.Status = entities.RequestStatusCancelled
	updated.CancelReason = entities.StringPtr(strings.TrimSpace(reason))
	updated.ReservationExpiresAt = nil

	var released *entities.Bed
	bedID := entities.StringValue(req.AssignedBedID)
	var ids []string
	if bedID != "" {
		ids = []string{bedID}
	}
	err = s.registry.Mutate(ctx, ids, func(tx *registry.Tx) error {
		updated.UpdatedAt = tx.Now()
		if bedID != "" {
			bed := tx.Bed(bedID)
			if entities.StringValue(bed.RequestID) == req.ID {
				if bed.Status != entities.BedStatusReserved {
					return apperrors.NewInvalidTransitionError("bed", bed.ID, string(bed.Status), string(entities.BedStatusAvailable))
				}
				if _, err := tx.Transition(bedID, entities.BedStatusAvailable); err != nil {
					return err
				}
				bed.ClearOccupant()
				released = bed.Clone()
			}
		}
		tx.StageRequest(updated)
		return nil
	})
	s.record(ctx, "cancel", err)
	if err != nil {
		return nil, err
	}
	s.requests.put(updated)

	if released != nil {
		s.notifier.Notify(ctx, bedEvent(entities.BedEventTypeCancellation, released, req.ID, nil))
	} else {
		s.notifier.Notify(ctx, entities.NewBedEvent(entities.BedEventTypeCancellation, req.WardPreference, "", req.ID, nil))
	}
	return updated.Clone(), nil
}

// GetRequest returns a request by ID
func (s *AllocationService) GetRequest(ctx context.Context, requestID string) (*entities.AdmissionRequest, error) {
	return s.requests.get(requestID)
}

// ListRequests returns requests most urgent first
func (s *AllocationService) ListRequests(ctx context.Context, filter repositories.RequestFilter) []*entities.AdmissionRequest {
	return s.requests.list(filter)
}

// ActiveRequests returns every approved request
func (s *AllocationService) ActiveRequests() []*entities.AdmissionRequest {
	return s.requests.active()
}

// persistRequest writes a request without touching any bed
func (s *AllocationService) persistRequest(ctx context.Context, req *entities.AdmissionRequest) error {
	return s.registry.Mutate(ctx, nil, func(tx *registry.Tx) error {
		tx.StageRequest(req)
		return nil
	})
}

func (s *AllocationService) record(ctx context.Context, operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperrors.TypeOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	observability.RecordAllocation(ctx, s.metrics, operation, outcome)
}

// candidateRank orders available beds for an admission
func candidateRank(wardID, equipment string) registry.Rank {
	return func(bed *entities.Bed) (int, bool) {
		wardMatch := bed.WardID == wardID
		equipmentMatch := equipment != "" && bed.HasEquipment(equipment)
		switch {
		case wardMatch && (equipment == "" || equipmentMatch):
			return 0, true
		case equipmentMatch:
			return 1, true
		case wardMatch:
			return 2, true
		default:
			return 3, true
		}
	}
}
