package core

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Atelier/internal/domain"
)

// Registry tracks the live connections of one room and which participant each
// one claimed. A reconnect under the same participant id creates a second
// entry; disconnecting either one removes that connection only.
type Registry struct {
	mu       sync.RWMutex
	sessions map[SignalConnection]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[SignalConnection]*Session)}
}

// Register adds a connection with no identity yet.
func (r *Registry) Register(conn SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[conn] = &Session{JoinedAt: time.Now()}
}

// Identify binds a participant to an already registered connection.
func (r *Registry) Identify(conn SignalConnection, p *domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if !ok {
		log.Warn().Str("module", "core.registry").Str("participant", string(p.ID)).Msg("identify on unregistered connection")
		return
	}
	s.Participant = p
}

// Unregister drops a connection and reports the participant it was bound to,
// if any.
func (r *Registry) Unregister(conn SignalConnection) (domain.ParticipantID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[conn]
	if !ok {
		return "", false
	}
	delete(r.sessions, conn)
	if s.Participant == nil {
		return "", false
	}
	return s.Participant.ID, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ForEach visits every live connection. fn must not block.
func (r *Registry) ForEach(fn func(conn SignalConnection, s *Session)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for conn, s := range r.sessions {
		fn(conn, s)
	}
}
