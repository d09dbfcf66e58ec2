package routes

import (
	"net/http"

	"github.com/zatekoja/bedflow/internal/api/handlers"
	"github.com/zatekoja/bedflow/internal/api/middleware"
	"github.com/zatekoja/bedflow/internal/infrastructure/observability"
	"github.com/zatekoja/bedflow/pkg/config"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	requestHandler   *handlers.RequestHandler
	bedHandler       *handlers.BedHandler
	wardHandler      *handlers.WardHandler
	occupancyHandler *handlers.OccupancyHandler
	forecastHandler  *handlers.ForecastHandler
	sseHandler       *handlers.SSEHandler

	metrics *observability.Metrics
	cors    config.CORSConfig
}

// NewRouter creates a new router. sseHandler may be nil when no event bus is configured.
func NewRouter(
	requestHandler *handlers.RequestHandler,
	bedHandler *handlers.BedHandler,
	wardHandler *handlers.WardHandler,
	occupancyHandler *handlers.OccupancyHandler,
	forecastHandler *handlers.ForecastHandler,
	sseHandler *handlers.SSEHandler,
	metrics *observability.Metrics,
	cors config.CORSConfig,
) *Router {
	return &Router{
		mux:              http.NewServeMux(),
		requestHandler:   requestHandler,
		bedHandler:       bedHandler,
		wardHandler:      wardHandler,
		occupancyHandler: occupancyHandler,
		forecastHandler:  forecastHandler,
		sseHandler:       sseHandler,
		metrics:          metrics,
		cors:             cors,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Admission request endpoints
	r.mux.HandleFunc("POST /api/requests", r.requestHandler.SubmitRequest)
	r.mux.HandleFunc("GET /api/requests", r.requestHandler.ListRequests)
	r.mux.HandleFunc("GET /api/requests/{id}", r.requestHandler.GetRequest)
	r.mux.HandleFunc("POST /api/requests/{id}/approve", r.requestHandler.Approve)
	r.mux.HandleFunc("POST /api/requests/{id}/deny", r.requestHandler.Deny)
	r.mux.HandleFunc("POST /api/requests/{id}/cancel", r.requestHandler.Cancel)

	// Bed endpoints
	r.mux.HandleFunc("GET /api/beds", r.bedHandler.ListBeds)
	r.mux.HandleFunc("GET /api/beds/{id}", r.bedHandler.GetBed)
	r.mux.HandleFunc("PATCH /api/beds/{id}/status", r.bedHandler.SetStatus)
	r.mux.HandleFunc("POST /api/beds/{id}/check-in", r.bedHandler.CheckIn)
	r.mux.HandleFunc("POST /api/beds/{id}/discharge", r.bedHandler.Discharge)
	r.mux.HandleFunc("POST /api/beds/{id}/transfer", r.bedHandler.Transfer)

	// Ward endpoints
	r.mux.HandleFunc("GET /api/wards", r.wardHandler.ListWards)
	r.mux.HandleFunc("PUT /api/wards/{id}", r.wardHandler.ReconfigureWard)

	// Occupancy endpoints
	r.mux.HandleFunc("GET /api/occupancy/snapshot", r.occupancyHandler.GetSnapshot)
	r.mux.HandleFunc("GET /api/occupancy/history", r.occupancyHandler.GetHistory)
	r.mux.HandleFunc("GET /api/occupancy/today", r.occupancyHandler.GetToday)

	// Forecast and advisory endpoints
	r.mux.HandleFunc("GET /api/forecasts", r.forecastHandler.GetForecasts)
	r.mux.HandleFunc("GET /api/suggestions", r.forecastHandler.GetSuggestions)
	r.mux.HandleFunc("GET /api/discharge-schedule/{date}", r.forecastHandler.GetDischargeSchedule)
	r.mux.HandleFunc("PUT /api/discharge-schedule/{date}/{ward}", r.forecastHandler.SetDepartures)

	// Real-time streams
	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/beds", r.sseHandler.StreamBedUpdates)
		r.mux.HandleFunc("GET /api/stream/wards/{id}", r.sseHandler.StreamWardUpdates)
	}

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics, r.mux)(handler)

	// CORS wraps everything so preflights short-circuit before tracing
	handler = middleware.CORS(r.cors)(handler)

	return handler
}
