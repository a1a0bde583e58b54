package handlers

import (
	"net/http"
	"strings"

	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/entities"
)

// SessionHandler handles search-session HTTP requests
type SessionHandler struct {
	registry *services.SessionRegistry
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(registry *services.SessionRegistry) *SessionHandler {
	return &SessionHandler{
		registry: registry,
	}
}

// SearchRequest is the body of POST /api/sessions/{id}/search
type SearchRequest struct {
	Query string `json:"query"`
	View  string `json:"view"`
}

// LocationRequest is the body of POST /api/sessions/{id}/location. A label marks
// the position as a chosen suggestion rather than a device fix.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Label     string   `json:"label,omitempty"`
	View      string   `json:"view"`
}

// RouteRequest is the body of POST /api/sessions/{id}/route
type RouteRequest struct {
	ProviderID string `json:"provider_id"`
}

// CreateSession handles POST /api/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	session := h.registry.Create()
	respondWithJSON(w, http.StatusCreated, session.Snapshot())
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, session.Snapshot())
}

// DeleteSession handles DELETE /api/sessions/{id}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.PathValue("id")); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles POST /api/sessions/{id}/search
func (h *SessionHandler) Search(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondWithError(w, http.StatusBadRequest, "query is required")
		return
	}

	result, err := session.Search(r.Context(), req.Query, viewOf(r, req.View))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// SetLocation handles POST /api/sessions/{id}/location
func (h *SessionHandler) SetLocation(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req LocationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		respondWithError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}

	view := viewOf(r, req.View)
	var (
		result *entities.SearchResult
		err    error
	)
	if req.Label != "" {
		result, err = session.UseSuggestion(r.Context(), entities.Suggestion{
			Description: req.Label,
			Latitude:    *req.Latitude,
			Longitude:   *req.Longitude,
		}, view)
	} else {
		result, err = session.UseDeviceLocation(r.Context(), *req.Latitude, *req.Longitude, view)
	}
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// Suggestions handles GET /api/sessions/{id}/suggestions?q=
func (h *SessionHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	suggestions, err := session.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": suggestions,
		"count":       len(suggestions),
	})
}

// ShowRoute handles POST /api/sessions/{id}/route
func (h *SessionHandler) ShowRoute(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}

	var req RouteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	if req.ProviderID == "" {
		respondWithError(w, http.StatusBadRequest, "provider_id is required")
		return
	}

	overlay, err := session.SelectProvider(r.Context(), req.ProviderID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"overlay":    overlay,
		"info_panel": services.InfoPanelText(overlay),
	})
}

// ClearRoute handles DELETE /api/sessions/{id}/route
func (h *SessionHandler) ClearRoute(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.ClearRoute(r.Context()); err != nil {
		respondWithAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*services.SearchSession, bool) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return nil, false
	}
	session, err := h.registry.Get(id)
	if err != nil {
		respondWithAppError(w, r, err)
		return nil, false
	}
	return session, true
}

// viewOf prefers the ?view= query flag over the body field
func viewOf(r *http.Request, bodyView string) services.View {
	if v := r.URL.Query().Get("view"); v != "" {
		return services.ParseView(v)
	}
	return services.ParseView(bodyView)
}
