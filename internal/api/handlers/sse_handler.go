package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/fieldservice-locator/internal/application/services"
	"github.com/zatekoja/fieldservice-locator/internal/domain/providers"
)

// DefaultHeartbeatInterval is how often an idle stream sends a heartbeat
const DefaultHeartbeatInterval = 30 * time.Second

// SSEHandler streams session events to rendering surfaces over Server-Sent Events
type SSEHandler struct {
	eventBus  providers.EventBus
	registry  *services.SessionRegistry
	heartbeat time.Duration
	clients   map[string]int // channel -> connected clients
	mu        sync.RWMutex
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(eventBus providers.EventBus, registry *services.SessionRegistry, heartbeat time.Duration) *SSEHandler {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	return &SSEHandler{
		eventBus:  eventBus,
		registry:  registry,
		heartbeat: heartbeat,
		clients:   make(map[string]int),
	}
}

// StreamSession handles GET /api/sessions/{id}/stream
func (h *SSEHandler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		respondWithError(w, http.StatusBadRequest, "session ID is required")
		return
	}
	session, err := h.registry.Get(sessionID)
	if err != nil {
		respondWithAppError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	channel := providers.GetSessionChannel(sessionID)
	eventChan, err := h.eventBus.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Ctx(ctx).Err(err).Str("channel", channel).Msg("failed to subscribe to session channel")
		respondWithError(w, http.StatusInternalServerError, "failed to subscribe to session events")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	h.registerClient(channel)
	defer h.unregisterClient(channel)

	// The snapshot lets a late subscriber draw the current state before deltas arrive
	h.sendEvent(w, "connected", map[string]interface{}{
		"session_id": sessionID,
		"snapshot":   session.Snapshot(),
		"timestamp":  time.Now(),
	})
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("session_id", sessionID).Msg("client disconnected from session stream")
			return
		case <-ticker.C:
			h.sendEvent(w, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})
			flusher.Flush()
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event == nil {
				continue
			}
			h.sendEvent(w, string(event.EventType), event)
			flusher.Flush()
		}
	}
}

func (h *SSEHandler) registerClient(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[channel]++
	log.Debug().Str("channel", channel).Int("total", h.clients[channel]).Msg("stream client registered")
}

func (h *SSEHandler) unregisterClient(channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[channel]--
	if h.clients[channel] <= 0 {
		delete(h.clients, channel)
	}
}

// sendEvent writes one SSE frame
func (h *SSEHandler) sendEvent(w http.ResponseWriter, eventType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event data")
		return
	}

	fmt.Fprintf(w, "event: %s\n", eventType)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}

// GetClientCount returns the number of connected stream clients
func (h *SSEHandler) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, n := range h.clients {
		count += n
	}
	return count
}
