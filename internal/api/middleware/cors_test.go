package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/zatekoja/bedflow/pkg/config"
)

func serveCORS(cfg config.CORSConfig, req *http.Request) (*httptest.ResponseRecorder, bool) {
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	w := httptest.NewRecorder()
	CORS(cfg)(next).ServeHTTP(w, req)
	return w, reached
}

func preflight(origin, method string) *http.Request {
	req := httptest.NewRequest(http.MethodOptions, "/api/beds/icu-1/status", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", method)
	return req
}

func TestCORS_PreflightFromListedOrigin(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://ward-board.example", "https://admin.example/"}, MaxAge: 10 * time.Minute}

	w, reached := serveCORS(cfg, preflight("https://admin.example", http.MethodPatch))

	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://admin.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
	assert.Equal(t, "GET, POST, PUT, PATCH, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Last-Event-ID")
	assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_UnlistedOriginGetsNoGrant(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"https://ward-board.example"}}

	w, reached := serveCORS(cfg, preflight("https://elsewhere.example", http.MethodPost))
	assert.False(t, reached)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Methods"))

	req := httptest.NewRequest(http.MethodGet, "/api/wards", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	w, reached = serveCORS(cfg, req)
	assert.True(t, reached)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_WildcardAndSimpleRequests(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"*"}}

	req := httptest.NewRequest(http.MethodGet, "/api/stream/beds", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w, reached := serveCORS(cfg, req)
	assert.True(t, reached)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Vary"))

	w, _ = serveCORS(cfg, preflight("http://localhost:3000", http.MethodPut))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Max-Age"), "no max age configured")
}

func TestCORS_BareOptionsReachesHandler(t *testing.T) {
	cfg := config.CORSConfig{AllowedOrigins: []string{"*"}}

	req := httptest.NewRequest(http.MethodOptions, "/api/wards", nil)
	_, reached := serveCORS(cfg, req)
	assert.True(t, reached)
}
