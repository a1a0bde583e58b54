package routes

import (
	"net/http"

	"github.com/zatekoja/fieldservice-locator/internal/api/handlers"
	"github.com/zatekoja/fieldservice-locator/internal/api/middleware"
	"github.com/zatekoja/fieldservice-locator/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	sessionHandler *handlers.SessionHandler
	sseHandler     *handlers.SSEHandler
	locatorHandler *handlers.LocatorHandler

	cacheMiddleware *middleware.CacheMiddleware
	allowedOrigins  []string
	metrics         *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	sessionHandler *handlers.SessionHandler,
	sseHandler *handlers.SSEHandler,
	locatorHandler *handlers.LocatorHandler,
	cacheMiddleware *middleware.CacheMiddleware,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		sessionHandler:  sessionHandler,
		sseHandler:      sseHandler,
		locatorHandler:  locatorHandler,
		cacheMiddleware: cacheMiddleware,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			return
		}
	})

	// Session endpoints
	r.mux.HandleFunc("POST /api/sessions", r.sessionHandler.CreateSession)
	r.mux.HandleFunc("GET /api/sessions/{id}", r.sessionHandler.GetSession)
	r.mux.HandleFunc("DELETE /api/sessions/{id}", r.sessionHandler.DeleteSession)
	r.mux.HandleFunc("POST /api/sessions/{id}/search", r.sessionHandler.Search)
	r.mux.HandleFunc("POST /api/sessions/{id}/location", r.sessionHandler.SetLocation)
	r.mux.HandleFunc("GET /api/sessions/{id}/suggestions", r.sessionHandler.Suggestions)
	r.mux.HandleFunc("POST /api/sessions/{id}/route", r.sessionHandler.ShowRoute)
	r.mux.HandleFunc("DELETE /api/sessions/{id}/route", r.sessionHandler.ClearRoute)

	// Rendering-surface stream
	r.mux.HandleFunc("GET /api/sessions/{id}/stream", r.sseHandler.StreamSession)

	// Stateless endpoints
	r.mux.HandleFunc("GET /api/classify", r.locatorHandler.Classify)
	r.mux.HandleFunc("GET /api/providers", r.locatorHandler.ListProviders)
	r.mux.HandleFunc("GET /api/providers/{id}", r.locatorHandler.GetProvider)

	// Apply middleware in reverse order (last middleware wraps first).
	// CORS must be outermost so cached responses also get CORS headers.
	var handler http.Handler = r.mux

	if r.cacheMiddleware != nil {
		handler = r.cacheMiddleware.Middleware(handler)
	}
	handler = middleware.ResponseOptimization(handler)

	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
