package repositories

import (
	"context"
	"time"

	"github.com/zatekoja/bedflow/internal/domain/entities"
)

// Changeset is a group of bed and request writes that must land together
type Changeset struct {
	Beds     []*entities.Bed
	Requests []*entities.AdmissionRequest
}

// Empty reports whether the changeset carries no writes
func (c Changeset) Empty() bool {
	return len(c.Beds) == 0 && len(c.Requests) == 0
}

// WardRepository defines the interface for ward layout persistence
type WardRepository interface {
	// ListWards retrieves every ward with its member bed IDs
	ListWards(ctx context.Context) ([]*entities.Ward, error)

	// ReplaceWard stores the ward and its complete bed membership in one transaction
	ReplaceWard(ctx context.Context, ward *entities.Ward, beds []*entities.Bed) error
}

// BedRepository defines the interface for bed persistence
type BedRepository interface {
	// ListBeds retrieves every bed
	ListBeds(ctx context.Context) ([]*entities.Bed, error)

	// Commit writes beds and requests in one transaction
	Commit(ctx context.Context, changes Changeset) error
}

// RequestFilter narrows request listings
type RequestFilter struct {
	Status *entities.RequestStatus
	Limit  int
}

// RequestRepository defines the interface for admission request persistence
type RequestRepository interface {
	// GetRequest retrieves a request by ID
	GetRequest(ctx context.Context, id string) (*entities.AdmissionRequest, error)

	// ListRequests retrieves requests ordered by creation time
	ListRequests(ctx context.Context, filter RequestFilter) ([]*entities.AdmissionRequest, error)
}

// DailyRecordRepository defines the interface for daily occupancy record persistence
type DailyRecordRepository interface {
	// SaveDailyRecord stores a folded day; an existing record for the same date is replaced
	SaveDailyRecord(ctx context.Context, record *entities.DailyRecord) error

	// ListDailyRecords returns records with from <= date <= to ordered by date
	ListDailyRecords(ctx context.Context, from, to time.Time) ([]*entities.DailyRecord, error)
}

// Store bundles every persistence collaborator the core consumes
type Store interface {
	WardRepository
	BedRepository
	RequestRepository
	DailyRecordRepository
	Close() error
}
