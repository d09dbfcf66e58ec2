package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bedflow/internal/adapters/memory"
	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/domain/providers"
	"github.com/zatekoja/bedflow/internal/registry"
)

// MockEventBus records published bed events
type MockEventBus struct {
	mu        sync.RWMutex
	published []*entities.BedEvent
	channels  []string
	fail      bool
}

func NewMockEventBus() *MockEventBus {
	return &MockEventBus{}
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.BedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("redis unavailable")
	}
	m.published = append(m.published, event)
	m.channels = append(m.channels, channel)
	return nil
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.BedEvent, error) {
	return make(chan *entities.BedEvent), nil
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error { return nil }

func (m *MockEventBus) Close() error { return nil }

// EventTypes returns the types published on the global channel, in order
func (m *MockEventBus) EventTypes() []entities.BedEventType {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entities.BedEventType
	for i, ev := range m.published {
		if m.channels[i] == providers.EventChannelBedUpdates {
			out = append(out, ev.EventType)
		}
	}
	return out
}

// MockCacheProvider is an in-memory cache
type MockCacheProvider struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func NewMockCacheProvider() *MockCacheProvider {
	return &MockCacheProvider{data: make(map[string][]byte)}
}

func (m *MockCacheProvider) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		m.hits++
		return v, nil
	}
	return nil, providers.ErrCacheMiss
}

func (m *MockCacheProvider) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MockCacheProvider) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// staticSchedule reports fixed departures
type staticSchedule map[string]int

func (s staticSchedule) ScheduledDeparturesByWard(ctx context.Context, day time.Time) (map[string]int, error) {
	return s, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type fixture struct {
	clock      *clock
	store      *memory.Store
	registry   *registry.Registry
	bus        *MockEventBus
	allocation *services.AllocationService
	wards      *services.WardService
	occupancy  *services.OccupancyService
}

const (
	testDwell = 30 * time.Minute
	testTTL   = 2 * time.Hour
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	store := memory.NewStore()
	reg := registry.New(registry.WithPersister(store), registry.WithClock(c.Now))
	bus := NewMockEventBus()
	notifier := services.NewNotifier(bus)

	return &fixture{
		clock:    c,
		store:    store,
		registry: reg,
		bus:      bus,
		allocation: services.NewAllocationService(reg, notifier, nil, services.AllocationConfig{
			MinCleaningDwell: testDwell,
			ReservationTTL:   testTTL,
		}),
		wards:     services.NewWardService(reg, notifier),
		occupancy: services.NewOccupancyService(reg, store, notifier, nil),
	}
}

// ward provisions a ward with the given beds
func (f *fixture) ward(t *testing.T, wardID string, beds ...*entities.Bed) {
	t.Helper()
	_, err := f.wards.ReconfigureWard(context.Background(), &entities.Ward{ID: wardID, Name: wardID, Capacity: len(beds)}, beds)
	require.NoError(t, err)
}

func (f *fixture) submit(t *testing.T, wardID, equipment string) *entities.AdmissionRequest {
	t.Helper()
	req, err := f.allocation.SubmitRequest(context.Background(), services.SubmitRequestInput{
		PatientRef:     "patient-" + wardID,
		WardPreference: wardID,
		EquipmentTag:   equipment,
		Priority:       1,
	})
	require.NoError(t, err)
	return req
}

func (f *fixture) admit(t *testing.T, wardID string) *entities.AdmissionRequest {
	t.Helper()
	req := f.submit(t, wardID, "")
	approved, err := f.allocation.Approve(context.Background(), req.ID, services.ApproveOptions{})
	require.NoError(t, err)
	return approved
}

func (f *fixture) bed(t *testing.T, id string) *entities.Bed {
	t.Helper()
	b, err := f.registry.Get(id)
	require.NoError(t, err)
	return b
}

func beds(ids ...string) []*entities.Bed {
	out := make([]*entities.Bed, 0, len(ids))
	for _, id := range ids {
		out = append(out, &entities.Bed{ID: id})
	}
	return out
}

func tagged(id, tag string) *entities.Bed {
	return &entities.Bed{ID: id, EquipmentTag: entities.StringPtr(tag)}
}
