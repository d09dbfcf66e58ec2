package registry

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// Tx is the unit of work handed to a mutation. It exposes working copies of the
// locked beds; nothing is visible to other readers until the mutation commits.
type Tx struct {
	now      time.Time
	original map[string]*entities.Bed
	working  map[string]*entities.Bed
	requests []*entities.AdmissionRequest
}

// Now returns the time the mutation started
func (tx *Tx) Now() time.Time {
	return tx.now
}

// Bed returns the working copy of a locked bed, or nil when the bed is not part of the unit of work
func (tx *Tx) Bed(id string) *entities.Bed {
	return tx.working[id]
}

// Transition moves a locked bed along a state machine edge
func (tx *Tx) Transition(id string, to entities.BedStatus) (*entities.Bed, error) {
	bed := tx.working[id]
	if bed == nil {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("bed %s not found", id))
	}
	if !bed.Status.CanTransitionTo(to) {
		return nil, apperrors.NewInvalidTransitionError("bed", id, string(bed.Status), string(to))
	}
	bed.SetStatus(to, tx.now)
	return bed, nil
}

// StageRequest adds a request write to the same persistence commit as the beds
func (tx *Tx) StageRequest(req *entities.AdmissionRequest) {
	tx.requests = append(tx.requests, req)
}

// Rank orders allocation candidates; lower ranks win and ok=false excludes the bed
type Rank func(bed *entities.Bed) (rank int, ok bool)

// Mutate locks the given beds, runs fn on working copies and, when fn succeeds and the
// result passes validation, persists and applies the changes atomically.
func (r *Registry) Mutate(ctx context.Context, bedIDs []string, fn func(tx *Tx) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	unlock := r.bedLocks.LockAll(bedIDs)
	defer unlock()

	tx, err := r.begin(bedIDs)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		return err
	}
	return r.commit(ctx, tx)
}

// Allocate picks the best-ranked available bed and runs fn with it inside a single unit of
// work together with the extra beds. Candidate selection is re-checked under the bed lock, so
// two concurrent allocations never receive the same bed. When no candidate survives, a
// NoCapacity error naming shortfallWard is returned.
func (r *Registry) Allocate(ctx context.Context, wardScope string, rank Rank, extra []string, shortfallWard string, fn func(tx *Tx, bedID string) error) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, candidate := range r.rankCandidates(wardScope, rank) {
		done, err := r.tryCandidate(ctx, candidate, extra, fn)
		if err != nil {
			return "", err
		}
		if done {
			return candidate, nil
		}
	}
	return "", apperrors.NewNoCapacityError(shortfallWard)
}

func (r *Registry) tryCandidate(ctx context.Context, candidate string, extra []string, fn func(tx *Tx, bedID string) error) (bool, error) {
	ids := append(append([]string(nil), extra...), candidate)
	unlock := r.bedLocks.LockAll(ids)
	defer unlock()

	tx, err := r.begin(ids)
	if err != nil {
		return false, err
	}
	// lost the race to another allocation
	if tx.Bed(candidate).Status != entities.BedStatusAvailable {
		return false, nil
	}
	if err := fn(tx, candidate); err != nil {
		return false, err
	}
	if err := r.commit(ctx, tx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Registry) rankCandidates(wardScope string, rank Rank) []string {
	type ranked struct {
		id   string
		rank int
	}

	r.dataMu.RLock()
	var pool []ranked
	for wardID, byStatus := range r.index {
		if wardScope != "" && wardID != wardScope {
			continue
		}
		for id := range byStatus[entities.BedStatusAvailable] {
			rk, ok := rank(r.beds[id])
			if !ok {
				continue
			}
			pool = append(pool, ranked{id: id, rank: rk})
		}
	}
	r.dataMu.RUnlock()

	sort.Slice(pool, func(i, j int) bool {
		if pool[i].rank != pool[j].rank {
			return pool[i].rank < pool[j].rank
		}
		return pool[i].id < pool[j].id
	})
	out := make([]string, len(pool))
	for i, p := range pool {
		out[i] = p.id
	}
	return out
}

func (r *Registry) begin(bedIDs []string) (*Tx, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()

	tx := &Tx{
		now:      r.now(),
		original: make(map[string]*entities.Bed, len(bedIDs)),
		working:  make(map[string]*entities.Bed, len(bedIDs)),
	}
	for _, id := range bedIDs {
		bed, ok := r.beds[id]
		if !ok {
			return nil, apperrors.NewNotFoundError(fmt.Sprintf("bed %s not found", id))
		}
		tx.original[id] = bed
		tx.working[id] = bed.Clone()
	}
	return tx, nil
}

func (r *Registry) commit(ctx context.Context, tx *Tx) error {
	changed, err := r.validate(tx)
	if err != nil {
		return err
	}

	changes := repositories.Changeset{Beds: changed, Requests: tx.requests}
	if changes.Empty() {
		return nil
	}
	if r.persister != nil {
		if err := r.persister.Commit(ctx, changes); err != nil {
			return fmt.Errorf("failed to persist bed changes: %w", err)
		}
	}

	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	for _, bed := range changed {
		r.indexRemove(tx.original[bed.ID])
		stored := bed.Clone()
		r.beds[bed.ID] = stored
		r.indexAdd(stored)
	}
	return nil
}

// validate checks every working copy against the bed invariants and returns the beds that changed.
func (r *Registry) validate(tx *Tx) ([]*entities.Bed, error) {
	ids := make([]string, 0, len(tx.working))
	for id := range tx.working {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var changed []*entities.Bed
	for _, id := range ids {
		before, after := tx.original[id], tx.working[id]
		if after.WardID != before.WardID {
			r.dataMu.RLock()
			ward := r.wards[before.WardID]
			r.dataMu.RUnlock()
			return nil, apperrors.NewCapacityInvariantError(before.WardID, ward.Capacity, len(ward.BedIDs)-1)
		}
		if after.Status != before.Status && !before.Status.CanTransitionTo(after.Status) {
			return nil, apperrors.NewInvalidTransitionError("bed", id, string(before.Status), string(after.Status))
		}
		if !after.OccupantConsistent() {
			return nil, apperrors.NewValidationError(fmt.Sprintf("bed %s in status %s must %s an occupant", id, after.Status, occupantVerb(after.Status)))
		}
		if !bedEqual(before, after) {
			changed = append(changed, after)
		}
	}
	return changed, nil
}

func occupantVerb(status entities.BedStatus) string {
	if status.HoldsPatient() {
		return "have"
	}
	return "not have"
}

func bedEqual(a, b *entities.Bed) bool {
	return a.Status == b.Status &&
		a.Label == b.Label &&
		a.StatusChangedAt.Equal(b.StatusChangedAt) &&
		entities.StringValue(a.EquipmentTag) == entities.StringValue(b.EquipmentTag) &&
		entities.StringValue(a.PatientRef) == entities.StringValue(b.PatientRef) &&
		entities.StringValue(a.RequestID) == entities.StringValue(b.RequestID)
}
