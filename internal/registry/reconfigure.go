package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// ReconfigureWard replaces the bed membership of a ward in one bulk operation, creating the
// ward when it does not exist yet. Beds that stay keep their runtime state; new beds start in
// the status they carry (available when unset). The call is rejected before any change when
// the bed count differs from the declared capacity.
func (r *Registry) ReconfigureWard(ctx context.Context, ward *entities.Ward, beds []*entities.Bed) (*entities.Ward, error) {
	if ward == nil || ward.ID == "" {
		return nil, apperrors.NewValidationError("ward ID is required")
	}
	if ward.Capacity < 0 {
		return nil, apperrors.NewValidationError("ward capacity cannot be negative")
	}
	if len(beds) != ward.Capacity {
		return nil, apperrors.NewCapacityInvariantError(ward.ID, ward.Capacity, len(beds))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.dataMu.RLock()
	existing := r.wards[ward.ID]
	next, err := r.planMembership(ward, beds)
	r.dataMu.RUnlock()
	if err != nil {
		return nil, err
	}

	updated := ward.Clone()
	updated.UpdatedAt = r.now()
	updated.BedIDs = make([]string, 0, len(next))
	for _, bed := range next {
		updated.BedIDs = append(updated.BedIDs, bed.ID)
	}
	sort.Strings(updated.BedIDs)

	if r.persister != nil {
		if err := r.persister.ReplaceWard(ctx, updated, next); err != nil {
			return nil, fmt.Errorf("failed to persist ward %s: %w", ward.ID, err)
		}
	}

	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	if existing != nil {
		for _, id := range existing.BedIDs {
			if bed, ok := r.beds[id]; ok {
				r.indexRemove(bed)
				delete(r.beds, id)
			}
		}
	}
	for _, bed := range next {
		stored := bed.Clone()
		r.beds[stored.ID] = stored
		r.indexAdd(stored)
	}
	r.wards[updated.ID] = updated

	log.Info().
		Str("ward_id", updated.ID).
		Int("capacity", updated.Capacity).
		Msg("ward reconfigured")

	return updated.Clone(), nil
}

// planMembership resolves the final bed set for a ward. Callers hold dataMu.
func (r *Registry) planMembership(ward *entities.Ward, beds []*entities.Bed) ([]*entities.Bed, error) {
	now := r.now()
	keep := make(map[string]struct{}, len(beds))
	next := make([]*entities.Bed, 0, len(beds))

	for _, spec := range beds {
		if spec == nil || spec.ID == "" {
			return nil, apperrors.NewValidationError("bed ID is required")
		}
		if _, dup := keep[spec.ID]; dup {
			return nil, apperrors.NewValidationError(fmt.Sprintf("bed %s listed twice", spec.ID))
		}
		keep[spec.ID] = struct{}{}

		if current, ok := r.beds[spec.ID]; ok {
			if current.WardID != ward.ID {
				other := r.wards[current.WardID]
				return nil, apperrors.NewCapacityInvariantError(other.ID, other.Capacity, len(other.BedIDs)-1)
			}
			bed := current.Clone()
			if spec.Label != "" {
				bed.Label = spec.Label
			}
			bed.EquipmentTag = spec.Clone().EquipmentTag
			next = append(next, bed)
			continue
		}

		bed := spec.Clone()
		bed.WardID = ward.ID
		if bed.Label == "" {
			bed.Label = bed.ID
		}
		if bed.Status == "" {
			bed.Status = entities.BedStatusAvailable
		}
		if !bed.Status.Valid() || bed.Status.HoldsPatient() {
			return nil, apperrors.NewValidationError(fmt.Sprintf("bed %s cannot be provisioned as %s", bed.ID, bed.Status))
		}
		bed.ClearOccupant()
		bed.StatusChangedAt = now
		next = append(next, bed)
	}

	if existing, ok := r.wards[ward.ID]; ok {
		for _, id := range existing.BedIDs {
			if _, stays := keep[id]; stays {
				continue
			}
			if bed := r.beds[id]; bed != nil && bed.Status.HoldsPatient() {
				return nil, apperrors.NewInvalidTransitionError("bed", id, string(bed.Status), "removed")
			}
		}
	}
	return next, nil
}
