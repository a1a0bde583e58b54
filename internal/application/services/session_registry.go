package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	apperrors "github.com/zatekoja/fieldservice-locator/pkg/errors"
)

// DefaultSessionTTL is how long an idle session is kept
const DefaultSessionTTL = 30 * time.Minute

// SessionRegistry holds the live search sessions of this instance
type SessionRegistry struct {
	opts *SessionOptions
	ttl  time.Duration
	now  func() time.Time

	mu       sync.RWMutex
	sessions map[string]*SearchSession
}

// NewSessionRegistry creates a registry. Sessions idle for longer than ttl are
// closed by Run.
func NewSessionRegistry(opts *SessionOptions, ttl time.Duration) *SessionRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionRegistry{
		opts:     opts,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*SearchSession),
	}
}

// Create starts a new session
func (r *SessionRegistry) Create() *SearchSession {
	session := NewSearchSession(uuid.NewString(), r.opts)

	r.mu.Lock()
	r.sessions[session.ID()] = session
	r.mu.Unlock()

	log.Debug().Str("session_id", session.ID()).Msg("session created")
	return session
}

// Get returns a live session
func (r *SessionRegistry) Get(id string) (*SearchSession, error) {
	r.mu.RLock()
	session, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("session " + id + " not found")
	}
	return session, nil
}

// Delete closes and forgets a session
func (r *SessionRegistry) Delete(id string) error {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return apperrors.NewNotFoundError("session " + id + " not found")
	}
	session.Close()
	return nil
}

// Len returns the number of live sessions
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Expire closes sessions idle for longer than the TTL and returns how many it closed
func (r *SessionRegistry) Expire() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	var expired []*SearchSession
	for id, session := range r.sessions {
		if session.LastActive().Before(cutoff) {
			expired = append(expired, session)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, session := range expired {
		session.Close()
	}
	if len(expired) > 0 {
		log.Info().Int("expired", len(expired)).Int("live", r.Len()).Msg("expired idle sessions")
	}
	return len(expired)
}

// Run expires idle sessions periodically until ctx is done
func (r *SessionRegistry) Run(ctx context.Context) {
	interval := r.ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Expire()
		}
	}
}

// Close closes every session
func (r *SessionRegistry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*SearchSession)
	r.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
