package analyzer

import "sync"

type session struct {
	analyzer *Analyzer
	lastUsed uint64
}

// Registry holds one Analyzer per conversation session, up to
// Config.MaxSessions. Creating a session past the cap drops the one least
// recently returned by Get or Lookup.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	clock    uint64
	sessions map[string]*session
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg.withDefaults(), sessions: make(map[string]*session)}
}

// Get returns the analyzer for sessionID, creating it on first use.
func (r *Registry) Get(sessionID string) *Analyzer {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock++
	if s, ok := r.sessions[sessionID]; ok {
		s.lastUsed = r.clock
		return s.analyzer
	}
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.evictOldest()
	}
	a := New(r.cfg)
	r.sessions[sessionID] = &session{analyzer: a, lastUsed: r.clock}
	return a
}

// Lookup returns the analyzer for sessionID without creating one.
func (r *Registry) Lookup(sessionID string) (*Analyzer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	r.clock++
	s.lastUsed = r.clock
	return s.analyzer, true
}

// Delete drops the session and reports whether it existed.
func (r *Registry) Delete(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[sessionID]
	delete(r.sessions, sessionID)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// evictOldest must be called with r.mu held.
func (r *Registry) evictOldest() {
	var (
		oldestID string
		oldest   uint64
		found    bool
	)
	for id, s := range r.sessions {
		if !found || s.lastUsed < oldest {
			oldestID, oldest, found = id, s.lastUsed, true
		}
	}
	if found {
		delete(r.sessions, oldestID)
	}
}
