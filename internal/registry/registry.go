// Package registry holds the authoritative status of every bed and its ward membership.
//
// Mutations hold the registry lock shared and lock only the beds they touch, so
// operations on disjoint beds run concurrently. Full reads take the registry lock
// exclusively and therefore never observe a half-applied multi-bed operation.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// Persister receives committed registry changes before they become visible
type Persister interface {
	Commit(ctx context.Context, changes repositories.Changeset) error
	ReplaceWard(ctx context.Context, ward *entities.Ward, beds []*entities.Bed) error
}

// Registry is the in-memory bed registry
type Registry struct {
	mu       sync.RWMutex
	bedLocks *KeyedMutex

	dataMu sync.RWMutex
	beds   map[string]*entities.Bed
	wards  map[string]*entities.Ward
	index  map[string]map[entities.BedStatus]map[string]struct{}

	persister Persister
	now       func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithPersister makes every mutation write through p before it is applied
func WithPersister(p Persister) Option {
	return func(r *Registry) {
		r.persister = p
	}
}

// WithClock overrides the time source used to stamp status changes
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty registry
func New(opts ...Option) *Registry {
	r := &Registry{
		bedLocks: NewKeyedMutex(),
		beds:     make(map[string]*entities.Bed),
		wards:    make(map[string]*entities.Ward),
		index:    make(map[string]map[entities.BedStatus]map[string]struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Now returns the registry clock reading
func (r *Registry) Now() time.Time {
	return r.now()
}

// Load replaces the registry content with persisted wards and beds
func (r *Registry) Load(wards []*entities.Ward, beds []*entities.Bed) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bedMap := make(map[string]*entities.Bed, len(beds))
	for _, bed := range beds {
		if !bed.Status.Valid() {
			return apperrors.NewValidationError(fmt.Sprintf("bed %s has unknown status %q", bed.ID, bed.Status))
		}
		if !bed.OccupantConsistent() {
			return apperrors.NewValidationError(fmt.Sprintf("bed %s occupant does not match status %s", bed.ID, bed.Status))
		}
		bedMap[bed.ID] = bed.Clone()
	}

	wardMap := make(map[string]*entities.Ward, len(wards))
	members := make(map[string]int, len(wards))
	for _, bed := range bedMap {
		members[bed.WardID]++
	}
	for _, ward := range wards {
		if members[ward.ID] != ward.Capacity {
			return apperrors.NewCapacityInvariantError(ward.ID, ward.Capacity, members[ward.ID])
		}
		w := ward.Clone()
		w.BedIDs = w.BedIDs[:0]
		for id, bed := range bedMap {
			if bed.WardID == w.ID {
				w.BedIDs = append(w.BedIDs, id)
			}
		}
		sort.Strings(w.BedIDs)
		wardMap[w.ID] = w
	}
	for _, bed := range bedMap {
		if _, ok := wardMap[bed.WardID]; !ok {
			return apperrors.NewValidationError(fmt.Sprintf("bed %s belongs to unknown ward %s", bed.ID, bed.WardID))
		}
	}

	r.dataMu.Lock()
	defer r.dataMu.Unlock()
	r.beds = bedMap
	r.wards = wardMap
	r.index = make(map[string]map[entities.BedStatus]map[string]struct{})
	for _, bed := range bedMap {
		r.indexAdd(bed)
	}
	return nil
}

// Get returns a copy of a bed
func (r *Registry) Get(bedID string) (*entities.Bed, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()

	bed, ok := r.beds[bedID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("bed %s not found", bedID))
	}
	return bed.Clone(), nil
}

// Ward returns a copy of a ward
func (r *Registry) Ward(wardID string) (*entities.Ward, error) {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()

	ward, ok := r.wards[wardID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("ward %s not found", wardID))
	}
	return ward.Clone(), nil
}

// Wards returns copies of every ward ordered by ID
func (r *Registry) Wards() []*entities.Ward {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()

	out := make([]*entities.Ward, 0, len(r.wards))
	for _, ward := range r.wards {
		out = append(out, ward.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Beds returns copies of the beds in a ward (every bed when wardID is empty), ordered by ID
func (r *Registry) Beds(wardID string) []*entities.Bed {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()

	out := make([]*entities.Bed, 0, len(r.beds))
	for _, bed := range r.beds {
		if wardID != "" && bed.WardID != wardID {
			continue
		}
		out = append(out, bed.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BedIDsWithStatus returns the IDs of beds in the given ward and status, ordered.
// An empty ward ID spans every ward.
func (r *Registry) BedIDsWithStatus(wardID string, status entities.BedStatus) []string {
	r.dataMu.RLock()
	defer r.dataMu.RUnlock()

	var ids []string
	for ward, byStatus := range r.index {
		if wardID != "" && ward != wardID {
			continue
		}
		for id := range byStatus[status] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// View runs fn against a consistent copy of every ward and bed. No mutation is in
// flight while fn's input is captured.
func (r *Registry) View(fn func(wards []*entities.Ward, beds []*entities.Bed)) {
	r.mu.Lock()
	wards := r.Wards()
	beds := r.Beds("")
	r.mu.Unlock()

	fn(wards, beds)
}

func (r *Registry) indexAdd(bed *entities.Bed) {
	byStatus, ok := r.index[bed.WardID]
	if !ok {
		byStatus = make(map[entities.BedStatus]map[string]struct{})
		r.index[bed.WardID] = byStatus
	}
	set, ok := byStatus[bed.Status]
	if !ok {
		set = make(map[string]struct{})
		byStatus[bed.Status] = set
	}
	set[bed.ID] = struct{}{}
}

func (r *Registry) indexRemove(bed *entities.Bed) {
	if byStatus, ok := r.index[bed.WardID]; ok {
		delete(byStatus[bed.Status], bed.ID)
	}
}
