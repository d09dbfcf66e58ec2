// Package memory provides a process-local store for development and tests.
package memory

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

// Store implements repositories.Store in memory
type Store struct {
	mu       sync.RWMutex
	wards    map[string]*entities.Ward
	beds     map[string]*entities.Bed
	requests map[string]*entities.AdmissionRequest
	records  map[time.Time]*entities.DailyRecord
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		wards:    make(map[string]*entities.Ward),
		beds:     make(map[string]*entities.Bed),
		requests: make(map[string]*entities.AdmissionRequest),
		records:  make(map[time.Time]*entities.DailyRecord),
	}
}

var _ repositories.Store = (*Store)(nil)

// ListWards returns every ward ordered by ID
func (s *Store) ListWards(ctx context.Context) ([]*entities.Ward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Ward, 0, len(s.wards))
	for _, w := range s.wards {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ReplaceWard stores the ward and swaps its bed membership
func (s *Store) ReplaceWard(ctx context.Context, ward *entities.Ward, beds []*entities.Bed) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, bed := range s.beds {
		if bed.WardID == ward.ID {
			delete(s.beds, id)
		}
	}
	for _, bed := range beds {
		s.beds[bed.ID] = bed.Clone()
	}
	s.wards[ward.ID] = ward.Clone()
	return nil
}

// ListBeds returns every bed ordered by ID
func (s *Store) ListBeds(ctx context.Context) ([]*entities.Bed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Bed, 0, len(s.beds))
	for _, b := range s.beds {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Commit writes beds and requests together
func (s *Store) Commit(ctx context.Context, changes repositories.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, bed := range changes.Beds {
		if _, ok := s.beds[bed.ID]; !ok {
			return apperrors.NewNotFoundError(fmt.Sprintf("bed %s not found", bed.ID))
		}
	}
	for _, bed := range changes.Beds {
		s.beds[bed.ID] = bed.Clone()
	}
	for _, req := range changes.Requests {
		s.requests[req.ID] = req.Clone()
	}
	return nil
}

// GetRequest returns a request by ID
func (s *Store) GetRequest(ctx context.Context, id string) (*entities.AdmissionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("request %s not found", id))
	}
	return req.Clone(), nil
}

// ListRequests returns requests ordered by creation time
func (s *Store) ListRequests(ctx context.Context, filter repositories.RequestFilter) ([]*entities.AdmissionRequest, error) {
	s.mu.RLock()
	out := make([]*entities.AdmissionRequest, 0, len(s.requests))
	for _, req := range s.requests {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		out = append(out, req.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SaveDailyRecord stores or replaces the record for its date
func (s *Store) SaveDailyRecord(ctx context.Context, record *entities.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *record
	c.Snapshots = append([]entities.Snapshot(nil), record.Snapshots...)
	s.records[entities.DayStart(record.Date)] = &c
	return nil
}

// ListDailyRecords returns records dated within [from, to] ordered by date
func (s *Store) ListDailyRecords(ctx context.Context, from, to time.Time) ([]*entities.DailyRecord, error) {
	from, to = entities.DayStart(from), entities.DayStart(to)

	s.mu.RLock()
	var out []*entities.DailyRecord
	for date, rec := range s.records {
		if date.Before(from) || date.After(to) {
			continue
		}
		c := *rec
		out = append(out, &c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Close implements repositories.Store
func (s *Store) Close() error {
	return nil
}
