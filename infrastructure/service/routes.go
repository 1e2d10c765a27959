package service

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// =============================================================================
// Standard Response Types
// =============================================================================

// HealthResponse is the standard response for /health endpoint.
type HealthResponse struct {
	Status        string         `json:"status"`
	Service       string         `json:"service"`
	Version       string         `json:"version"`
	Authoritative bool           `json:"authoritative"`
	Timestamp     string         `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
}

// InfoResponse is the standard response for /info endpoint.
type InfoResponse struct {
	Status        string         `json:"status"`
	Service       string         `json:"service"`
	Version       string         `json:"version"`
	Authoritative bool           `json:"authoritative"`
	Timestamp     string         `json:"timestamp"`
	Statistics    map[string]any `json:"statistics,omitempty"`
}

// writeJSON writes v as a JSON response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a {"error": message} JSON body with the given status.
func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// =============================================================================
// Standard Handlers
// =============================================================================

// HealthHandler returns a standardized /health handler for BaseService.
func HealthHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		var details map[string]any

		if checker, ok := interface{}(s).(HealthChecker); ok {
			status = checker.HealthStatus()
			if status != "healthy" {
				details = checker.HealthDetails()
			}
		}

		resp := HealthResponse{
			Status:        status,
			Service:       s.Name(),
			Version:       s.Version(),
			Authoritative: true,
			Timestamp:     time.Now().Format(time.RFC3339),
			Details:       details,
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// ReadinessHandler returns a readiness probe handler suitable for k8s.
func ReadinessHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := "healthy"
		var details map[string]any

		if checker, ok := interface{}(s).(HealthChecker); ok {
			status = checker.HealthStatus()
			if status != "healthy" {
				details = checker.HealthDetails()
			}
		}

		resp := HealthResponse{
			Status:        status,
			Service:       s.Name(),
			Version:       s.Version(),
			Authoritative: true,
			Timestamp:     time.Now().Format(time.RFC3339),
			Details:       details,
		}

		code := http.StatusOK
		if status != "healthy" {
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, resp)
	}
}

// InfoHandler returns a standardized /info handler for BaseService.
// It includes statistics from the registered stats function if available.
func InfoHandler(s *BaseService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := InfoResponse{
			Status:        "active",
			Service:       s.Name(),
			Version:       s.Version(),
			Authoritative: true,
			Timestamp:     time.Now().Format(time.RFC3339),
		}

		if s.statsFn != nil {
			resp.Statistics = s.statsFn()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// =============================================================================
// Route Registration
// =============================================================================

// RouteOptions configures which standard routes to register.
type RouteOptions struct {
	SkipInfo bool // Skip /info registration (for services with custom /info)
}

// RegisterStandardRoutes registers the standard /health, /ready, and /info endpoints.
// This should be called by services that want consistent endpoint behavior.
func (b *BaseService) RegisterStandardRoutes() {
	b.RegisterStandardRoutesWithOptions(RouteOptions{})
}

// RegisterStandardRoutesWithOptions registers standard routes with configurable options.
// Use SkipInfo: true when the service provides a custom /info endpoint.
func (b *BaseService) RegisterStandardRoutesWithOptions(opts RouteOptions) {
	router := b.Router()
	router.HandleFunc("/health", HealthHandler(b)).Methods("GET")
	router.HandleFunc("/ready", ReadinessHandler(b)).Methods("GET")
	if !opts.SkipInfo {
		router.HandleFunc("/info", InfoHandler(b)).Methods("GET")
	}
}

// =============================================================================
// RouteGroup
// =============================================================================

// RouteGroup is a thin wrapper around *mux.Router that services can use to
// register handlers without importing gorilla/mux directly in every file
// that adds a route.
type RouteGroup struct {
	router *mux.Router
}

// NewRouteGroup wraps an existing *mux.Router.
func NewRouteGroup(router *mux.Router) *RouteGroup {
	return &RouteGroup{router: router}
}

// HandleFunc registers handler for path and returns the *mux.Route so
// callers can chain .Methods(...).
func (g *RouteGroup) HandleFunc(path string, handler http.HandlerFunc) *mux.Route {
	return g.router.HandleFunc(path, handler)
}
