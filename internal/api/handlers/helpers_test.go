package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zatekoja/bedflow/internal/adapters/memory"
	"github.com/zatekoja/bedflow/internal/api/handlers"
	"github.com/zatekoja/bedflow/internal/application/services"
	"github.com/zatekoja/bedflow/internal/domain/entities"
	"github.com/zatekoja/bedflow/internal/registry"
)

// testAPI wires the real services over an in-memory store behind a local mux
type testAPI struct {
	mux        *http.ServeMux
	registry   *registry.Registry
	allocation *services.AllocationService
	wards      *services.WardService
	occupancy  *services.OccupancyService
	schedule   *fakeSchedule
}

// fakeSchedule is an in-memory discharge schedule
type fakeSchedule struct {
	days map[string]map[string]int
}

func (f *fakeSchedule) ScheduledDeparturesByWard(ctx context.Context, day time.Time) (map[string]int, error) {
	return f.days[day.Format(entities.DayLayout)], nil
}

func (f *fakeSchedule) SetDepartures(ctx context.Context, day time.Time, wardID string, count int) error {
	key := day.Format(entities.DayLayout)
	if f.days[key] == nil {
		f.days[key] = map[string]int{}
	}
	f.days[key][wardID] = count
	return nil
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	reg := registry.New(registry.WithPersister(store), registry.WithClock(func() time.Time { return now }))
	notifier := services.NewNotifier(NewMockEventBus())

	api := &testAPI{
		mux:      http.NewServeMux(),
		registry: reg,
		allocation: services.NewAllocationService(reg, notifier, nil, services.AllocationConfig{
			MinCleaningDwell: 30 * time.Minute,
			ReservationTTL:   2 * time.Hour,
		}),
		wards:     services.NewWardService(reg, notifier),
		occupancy: services.NewOccupancyService(reg, store, notifier, nil),
		schedule:  &fakeSchedule{days: map[string]map[string]int{}},
	}
	forecasts := services.NewForecastService(reg, api.occupancy, api.schedule, nil, nil, 0)
	advisory := services.NewAdvisoryService(reg, forecasts)

	requestHandler := handlers.NewRequestHandler(api.allocation)
	bedHandler := handlers.NewBedHandler(api.allocation)
	wardHandler := handlers.NewWardHandler(api.wards)
	occupancyHandler := handlers.NewOccupancyHandler(api.occupancy)
	forecastHandler := handlers.NewForecastHandler(forecasts, advisory, api.schedule, api.schedule, reg)

	api.mux.HandleFunc("POST /api/requests", requestHandler.SubmitRequest)
	api.mux.HandleFunc("GET /api/requests", requestHandler.ListRequests)
	api.mux.HandleFunc("GET /api/requests/{id}", requestHandler.GetRequest)
	api.mux.HandleFunc("POST /api/requests/{id}/approve", requestHandler.Approve)
	api.mux.HandleFunc("POST /api/requests/{id}/deny", requestHandler.Deny)
	api.mux.HandleFunc("POST /api/requests/{id}/cancel", requestHandler.Cancel)
	api.mux.HandleFunc("GET /api/beds", bedHandler.ListBeds)
	api.mux.HandleFunc("GET /api/beds/{id}", bedHandler.GetBed)
	api.mux.HandleFunc("PATCH /api/beds/{id}/status", bedHandler.SetStatus)
	api.mux.HandleFunc("POST /api/beds/{id}/check-in", bedHandler.CheckIn)
	api.mux.HandleFunc("POST /api/beds/{id}/discharge", bedHandler.Discharge)
	api.mux.HandleFunc("POST /api/beds/{id}/transfer", bedHandler.Transfer)
	api.mux.HandleFunc("GET /api/wards", wardHandler.ListWards)
	api.mux.HandleFunc("PUT /api/wards/{id}", wardHandler.ReconfigureWard)
	api.mux.HandleFunc("GET /api/occupancy/snapshot", occupancyHandler.GetSnapshot)
	api.mux.HandleFunc("GET /api/occupancy/history", occupancyHandler.GetHistory)
	api.mux.HandleFunc("GET /api/occupancy/today", occupancyHandler.GetToday)
	api.mux.HandleFunc("GET /api/forecasts", forecastHandler.GetForecasts)
	api.mux.HandleFunc("GET /api/suggestions", forecastHandler.GetSuggestions)
	api.mux.HandleFunc("GET /api/discharge-schedule/{date}", forecastHandler.GetDischargeSchedule)
	api.mux.HandleFunc("PUT /api/discharge-schedule/{date}/{ward}", forecastHandler.SetDepartures)

	return api
}

// ward provisions a ward with untagged beds
func (a *testAPI) ward(t *testing.T, wardID string, bedIDs ...string) {
	t.Helper()
	beds := make([]*entities.Bed, 0, len(bedIDs))
	for _, id := range bedIDs {
		beds = append(beds, &entities.Bed{ID: id})
	}
	_, err := a.wards.ReconfigureWard(context.Background(), &entities.Ward{ID: wardID, Name: wardID, Capacity: len(beds)}, beds)
	require.NoError(t, err)
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if buf.Len() > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.mux.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}
