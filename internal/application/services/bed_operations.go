package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
	"github.com/zatekoja/bedflow/internal/registry"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// UnitStatusChange is an administrative bed status edit
type UnitStatusChange struct {
	Status entities.BedStatus `json:"status"`
	// PatientRef is required when an available bed is set to occupied or reserved
	PatientRef string `json:"patient_ref,omitempty"`
}

// TransferResult holds both halves of a committed transfer
type TransferResult struct {
	Released *entities.Bed `json:"released"`
	Admitted *entities.Bed `json:"admitted"`
}

// ReleaseReport lists the beds freed by a time-triggered pass
type ReleaseReport struct {
	DwellReleased       []string `json:"dwell_released"`
	ReservationsExpired []string `json:"reservations_expired"`
}

// Bed returns a bed by ID
func (s *AllocationService) Bed(ctx context.Context, bedID string) (*entities.Bed, error) {
	return s.registry.Get(bedID)
}

// Beds lists beds of one ward, or every bed when wardID is empty
func (s *AllocationService) Beds(ctx context.Context, wardID string) []*entities.Bed {
	return s.registry.Beds(wardID)
}

// CheckIn records the arrival of a patient holding a reservation
func (s *AllocationService) CheckIn(ctx context.Context, bedID string) (*entities.Bed, error) {
	var (
		result  *entities.Bed
		updated *entities.AdmissionRequest
	)
	err := s.mutateBed(ctx, bedID, func(tx *registry.Tx, req *entities.AdmissionRequest) error {
		bed, err := tx.Transition(bedID, entities.BedStatusOccupied)
		if err != nil {
			return err
		}
		if req != nil {
			updated = req.Clone()
			updated.ReservationExpiresAt = nil
			updated.UpdatedAt = tx.Now()
			tx.StageRequest(updated)
		}
		result = bed.Clone()
		return nil
	})
	s.record(ctx, "check_in", err)
	if err != nil {
		return nil, err
	}
	s.commitRequest(updated)

	s.notifier.Notify(ctx, bedEvent(entities.BedEventTypeCheckIn, result, entities.StringValue(result.RequestID), nil))
	return result, nil
}

// Discharge moves an occupied bed to cleaning, clears the occupant and fulfils the linked request
func (s *AllocationService) Discharge(ctx context.Context, bedID string) (*entities.Bed, error) {
	var (
		result  *entities.Bed
		updated *entities.AdmissionRequest
	)
	err := s.mutateBed(ctx, bedID, func(tx *registry.Tx, req *entities.AdmissionRequest) error {
		bed, err := tx.Transition(bedID, entities.BedStatusCleaning)
		if err != nil {
			return err
		}
		bed.ClearOccupant()
		updated = fulfil(tx, req)
		result = bed.Clone()
		return nil
	})
	s.record(ctx, "discharge", err)
	if err != nil {
		return nil, err
	}
	s.commitRequest(updated)

	s.notifier.Notify(ctx, bedEvent(entities.BedEventTypeDischarge, result, requestIDOf(updated), nil))
	observability.LoggerFromContext(ctx).Debug().Str("bed_id", bedID).Msg("patient discharged")
	return result, nil
}

// SetUnitStatus applies an administrative status edit. Edits that release a patient carry
// the same request bookkeeping as the protocol operations they mirror.
func (s *AllocationService) SetUnitStatus(ctx context.Context, bedID string, change UnitStatusChange) (*entities.Bed, error) {
	if !change.Status.Valid() {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown bed status %q", change.Status))
	}
	patient := strings.TrimSpace(change.PatientRef)

	var (
		result  *entities.Bed
		updated *entities.AdmissionRequest
	)
	err := s.mutateBed(ctx, bedID, func(tx *registry.Tx, req *entities.AdmissionRequest) error {
		from := tx.Bed(bedID).Status
		bed, err := tx.Transition(bedID, change.Status)
		if err != nil {
			return err
		}

		switch {
		case from == entities.BedStatusAvailable && change.Status.HoldsPatient():
			if patient == "" {
				return apperrors.NewValidationError(fmt.Sprintf("patient_ref is required to set bed %s %s", bedID, change.Status))
			}
			bed.PatientRef = entities.StringPtr(patient)
			bed.RequestID = nil
		case from == entities.BedStatusReserved && change.Status == entities.BedStatusOccupied:
			if req != nil {
				updated = req.Clone()
				updated.ReservationExpiresAt = nil
				updated.UpdatedAt = tx.Now()
				tx.StageRequest(updated)
			}
		case from == entities.BedStatusReserved && change.Status == entities.BedStatusAvailable:
			bed.ClearOccupant()
			if req != nil && req.Status.CanTransitionTo(entities.RequestStatusCancelled) {
				updated = req.Clone()
				updated.Status = entities.RequestStatusCancelled
				updated.CancelReason = entities.StringPtr("reservation released")
				updated.ReservationExpiresAt = nil
				updated.UpdatedAt = tx.Now()
				tx.StageRequest(updated)
			}
		case from == entities.BedStatusOccupied:
			// cleaning is a discharge; maintenance evacuates the bed
			bed.ClearOccupant()
			updated = fulfil(tx, req)
		}

		result = bed.Clone()
		return nil
	})
	s.record(ctx, "set_status", err)
	if err != nil {
		return nil, err
	}
	s.commitRequest(updated)

	eventType := entities.BedEventTypeStatusChange
	if change.Status == entities.BedStatusCleaning {
		eventType = entities.BedEventTypeDischarge
	}
	s.notifier.Notify(ctx, bedEvent(eventType, result, requestIDOf(updated), nil))
	return result, nil
}

// Transfer moves the occupant of bedID to an available bed in destinationWard. The source is
// released into cleaning and the destination admitted in one unit of work; when the destination
// ward has no free bed the source is left untouched and NoCapacity is returned.
func (s *AllocationService) Transfer(ctx context.Context, bedID, destinationWard, reason string) (*TransferResult, error) {
	if _, err := s.registry.Ward(destinationWard); err != nil {
		return nil, err
	}
	source, err := s.registry.Get(bedID)
	if err != nil {
		return nil, err
	}
	if source.Status != entities.BedStatusOccupied {
		return nil, apperrors.NewInvalidTransitionError("bed", bedID, string(source.Status), string(entities.BedStatusCleaning))
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "transfer"
	}

	requestID := entities.StringValue(source.RequestID)
	req, unlock := s.lockLinkedRequest(requestID)
	defer unlock()

	var (
		result  TransferResult
		updated *entities.AdmissionRequest
	)
	rank := equipmentRank(entities.StringValue(source.EquipmentTag))
	_, err = s.registry.Allocate(ctx, destinationWard, rank, []string{bedID}, destinationWard, func(tx *registry.Tx, destID string) error {
		src := tx.Bed(bedID)
		if entities.StringValue(src.RequestID) != requestID {
			return errBedChanged(bedID)
		}
		patient, linked := src.PatientRef, src.RequestID

		if _, err := tx.Transition(bedID, entities.BedStatusCleaning); err != nil {
			return err
		}
		src.ClearOccupant()

		dst, err := tx.Transition(destID, entities.BedStatusOccupied)
		if err != nil {
			return err
		}
		dst.PatientRef = patient
		dst.RequestID = linked

		if req != nil {
			updated = req.Clone()
			updated.AssignedBedID = entities.StringPtr(destID)
			updated.ReservationExpiresAt = nil
			updated.Transfers = append(updated.Transfers, entities.TransferRecord{
				FromBedID: bedID,
				ToBedID:   destID,
				Reason:    reason,
				At:        tx.Now(),
			})
			updated.UpdatedAt = tx.Now()
			tx.StageRequest(updated)
		}

		result.Released = src.Clone()
		result.Admitted = dst.Clone()
		return nil
	})
	s.record(ctx, "transfer", err)
	if err != nil {
		return nil, err
	}
	s.commitRequest(updated)

	fields := map[string]interface{}{
		"from_bed_id": result.Released.ID,
		"to_bed_id":   result.Admitted.ID,
		"reason":      reason,
	}
	s.notifier.Notify(ctx, bedEvent(entities.BedEventTypeTransfer, result.Released, requestID, fields))
	s.notifier.Notify(ctx, bedEvent(entities.BedEventTypeTransfer, result.Admitted, requestID, fields))

	observability.LoggerFromContext(ctx).Info().
		Str("from_bed_id", result.Released.ID).
		Str("to_bed_id", result.Admitted.ID).
		Str("reason", reason).
		Msg("patient transferred")

	return &result, nil
}

// ReleaseExpired runs the time-triggered edges: cleaning beds that have dwelt long enough become
// available, and reservations past their expiry are released with their request cancelled.
// Every bed is attempted; the returned error joins the individual failures.
func (s *AllocationService) ReleaseExpired(ctx context.Context, now time.Time) (*ReleaseReport, error) {
	report := &ReleaseReport{}
	var errs []error

	for _, bedID := range s.registry.BedIDsWithStatus("", entities.BedStatusCleaning) {
		released, err := s.releaseDwell(ctx, bedID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if released {
			report.DwellReleased = append(report.DwellReleased, bedID)
		}
	}

	for _, req := range s.requests.active() {
		if req.ReservationExpiresAt == nil || now.Before(*req.ReservationExpiresAt) {
			continue
		}
		bedID, err := s.expireReservation(ctx, req.ID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if bedID != "" {
			report.ReservationsExpired = append(report.ReservationsExpired, bedID)
		}
	}

	if len(report.DwellReleased) > 0 || len(report.ReservationsExpired) > 0 {
		observability.LoggerFromContext(ctx).Debug().
			Int("dwell_released", len(report.DwellReleased)).
			Int("reservations_expired", len(report.ReservationsExpired)).
			Msg("time-triggered release pass")
	}
	return report, errors.Join(errs...)
}

func (s *AllocationService) releaseDwell(ctx context.Context, bedID string, now time.Time) (bool, error) {
	var result *entities.Bed
	err := s.registry.Mutate(ctx, []string{bedID}, func(tx *registry.Tx) error {
		bed := tx.Bed(bedID)
		if bed.Status != entities.BedStatusCleaning || now.Sub(bed.StatusChangedAt) < s.cfg.MinCleaningDwell {
			return nil
		}
		b, err := tx.Transition(bedID, entities.BedStatusAvailable)
		if err != nil {
			return err
		}
		result = b.Clone()
		return nil
	})
	if err != nil || result == nil {
		return false, err
	}
	s.notifier.Notify(ctx, bedEvent(entities.BedEventTypeDwellRelease, result, "", nil))
	return true, nil
}

func (s *AllocationService) expireReservation(ctx context.Context, requestID string, now time.Time) (string, error) {
	unlock := s.requests.lock(requestID)
	defer unlock()

	req, err := s.requests.get(requestID)
	if err != nil {
		return "", err
	}
	if req.Status != entities.RequestStatusApproved || req.ReservationExpiresAt == nil || now.Before(*req.ReservationExpiresAt) {
		return "", nil
	}
	bedID := entities.StringValue(req.AssignedBedID)
	if bedID == "" {
		return "", nil
	}

	var (
		result  *entities.Bed
		updated *entities.AdmissionRequest
	)
	err = s.registry.Mutate(ctx, []string{bedID}, func(tx *registry.Tx) error {
		bed := tx.Bed(bedID)
		if bed.Status != entities.BedStatusReserved || entities.StringValue(bed.RequestID) != req.ID {
			return nil
		}
		if _, err := tx.Transition(bedID, entities.BedStatusAvailable); err != nil {
			return err
		}
		bed.ClearOccupant()

		updated = req.Clone()
		updated.Status = entities.RequestStatusCancelled
		updated.CancelReason = entities.StringPtr("reservation expired")
		updated.ReservationExpiresAt = nil
		updated.UpdatedAt = tx.Now()
		tx.StageRequest(updated)
		result = bed.Clone()
		return nil
	})
	if err != nil || result == nil {
		return "", err
	}
	s.commitRequest(updated)
	s.notifier.Notify(ctx, bedEvent(entities.BedEventTypeReservationExpired, result, req.ID, nil))
	return bedID, nil
}

// mutateBed runs fn over one bed with its linked request locked
func (s *AllocationService) mutateBed(ctx context.Context, bedID string, fn func(tx *registry.Tx, req *entities.AdmissionRequest) error) error {
	current, err := s.registry.Get(bedID)
	if err != nil {
		return err
	}
	requestID := entities.StringValue(current.RequestID)
	req, unlock := s.lockLinkedRequest(requestID)
	defer unlock()

	return s.registry.Mutate(ctx, []string{bedID}, func(tx *registry.Tx) error {
		if entities.StringValue(tx.Bed(bedID).RequestID) != requestID {
			return errBedChanged(bedID)
		}
		return fn(tx, req)
	})
}

// lockLinkedRequest locks and loads the request a bed points at. A bed without a request,
// or whose request is unknown, yields nil.
func (s *AllocationService) lockLinkedRequest(requestID string) (*entities.AdmissionRequest, func()) {
	if requestID == "" {
		return nil, func() {}
	}
	unlock := s.requests.lock(requestID)
	req, err := s.requests.get(requestID)
	if err != nil {
		return nil, unlock
	}
	return req, unlock
}

func (s *AllocationService) commitRequest(req *entities.AdmissionRequest) {
	if req != nil {
		s.requests.put(req)
	}
}

// fulfil stages the linked request as fulfilled when it is still approved
func fulfil(tx *registry.Tx, req *entities.AdmissionRequest) *entities.AdmissionRequest {
	if req == nil || !req.Status.CanTransitionTo(entities.RequestStatusFulfilled) {
		return nil
	}
	updated := req.Clone()
	updated.Status = entities.RequestStatusFulfilled
	updated.ReservationExpiresAt = nil
	updated.UpdatedAt = tx.Now()
	tx.StageRequest(updated)
	return updated
}

func requestIDOf(req *entities.AdmissionRequest) string {
	if req == nil {
		return ""
	}
	return req.ID
}

// equipmentRank prefers beds carrying the tag; any bed qualifies
func equipmentRank(equipment string) registry.Rank {
	return func(bed *entities.Bed) (int, bool) {
		if equipment != "" && !bed.HasEquipment(equipment) {
			return 1, true
		}
		return 0, true
	}
}

func errBedChanged(bedID string) error {
	return apperrors.NewConflictError(fmt.Sprintf("bed %s changed concurrently, retry", bedID))
}
