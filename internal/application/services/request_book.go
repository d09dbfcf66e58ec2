package services

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/repositories"
	"github.com/zatekoja/bedflow/internal/registry"
	apperrors "github.com/zatekoja/bedflow/pkg/errors"
)

// requestBook is the in-memory view of admission requests. Writers hold the
// request's key lock; the map itself is guarded by mu.
type requestBook struct {
	locks *registry.KeyedMutex

	mu       sync.RWMutex
	requests map[string]*entities.AdmissionRequest
}

func newRequestBook() *requestBook {
	return &requestBook{
		locks:    registry.NewKeyedMutex(),
		requests: make(map[string]*entities.AdmissionRequest),
	}
}

func (b *requestBook) lock(id string) func() {
	return b.locks.Lock(id)
}

func (b *requestBook) get(id string) (*entities.AdmissionRequest, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	req, ok := b.requests[id]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("request %s not found", id))
	}
	return req.Clone(), nil
}

func (b *requestBook) put(reqs ...*entities.AdmissionRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, req := range reqs {
		b.requests[req.ID] = req.Clone()
	}
}

// list returns matching requests, most urgent first, then oldest first
func (b *requestBook) list(filter repositories.RequestFilter) []*entities.AdmissionRequest {
	b.mu.RLock()
	out := make([]*entities.AdmissionRequest, 0, len(b.requests))
	for _, req := range b.requests {
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		out = append(out, req.Clone())
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

// active returns approved requests, used by the expiry pass and the discharge schedule
func (b *requestBook) active() []*entities.AdmissionRequest {
	status := entities.RequestStatusApproved
	return b.list(repositories.RequestFilter{Status: &status})
}
