package handlers

import (
	"net/http"
	"strings"

	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/repositories"
)

// LocatorHandler serves the stateless endpoints: query classification and the roster
type LocatorHandler struct {
	classifier *services.QueryClassifier
	roster     repositories.ProviderRepository
}

// NewLocatorHandler creates a new locator handler
func NewLocatorHandler(classifier *services.QueryClassifier, roster repositories.ProviderRepository) *LocatorHandler {
	return &LocatorHandler{
		classifier: classifier,
		roster:     roster,
	}
}

// Classify handles GET /api/classify?q=
func (h *LocatorHandler) Classify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		respondWithError(w, http.StatusBadRequest, "q is required")
		return
	}
	respondWithJSON(w, http.StatusOK, h.classifier.Classify(q))
}

// ListProviders handles GET /api/providers
func (h *LocatorHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	roster, err := h.roster.List(r.Context())
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"providers": roster,
		"count":     len(roster),
	})
}

// GetProvider handles GET /api/providers/{id}
func (h *LocatorHandler) GetProvider(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondWithError(w, http.StatusBadRequest, "provider ID is required")
		return
	}
	provider, err := h.roster.GetByID(r.Context(), id)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, provider)
}
