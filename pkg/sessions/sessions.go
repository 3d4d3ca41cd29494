// Package sessions manages the live set of voice connections and enforces
// the one-session-per-identity invariant.
package sessions

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionClosed is returned when an operation targets a session that has
// already been released from the registry.
var ErrSessionClosed = errors.New("session is closed")

// Transport is the per-connection outbound channel a session writes to.
// Implementations must be safe for concurrent use; writes are best-effort
// and must not be performed while holding registry locks by callers.
type Transport interface {
	SendJSON(v interface{}) error
	SendBinary(data []byte) error
	Close() error
	RemoteAddr() string
}

// Session represents one connected client. Identity and name are unset until
// the connection converts its verification ticket via the join flow.
type Session struct {
	ID        uint32
	Transport Transport
	// Endpoint describes the client for logging.
	Endpoint string

	mu       sync.RWMutex
	identity uuid.UUID
	linked   bool
	name     string
}

// Identity returns the claimed player identity, if linked.
func (s *Session) Identity() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity, s.linked
}

// Name returns the claimed display name, or "" if not linked.
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Linked reports whether the session has claimed an identity.
func (s *Session) Linked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.linked
}

func (s *Session) link(identity uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.name = name
	s.linked = true
}

// Registry owns session lifetime. Session IDs are assigned monotonically and
// never reused within the process lifetime.
type Registry struct {
	mu         sync.RWMutex
	nextID     uint32
	sessions   map[uint32]*Session
	byIdentity map[uuid.UUID]*Session
	byName     map[string]*Session // keyed by lowercased display name
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		nextID:     1,
		sessions:   make(map[uint32]*Session),
		byIdentity: make(map[uuid.UUID]*Session),
		byName:     make(map[string]*Session),
	}
}

// Allocate registers a new session for a transport and returns it.
func (r *Registry) Allocate(t Transport, endpoint string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &Session{
		ID:        r.nextID,
		Transport: t,
		Endpoint:  endpoint,
	}
	r.nextID++
	r.sessions[s.ID] = s
	return s
}

// ClaimIdentity atomically links a session to a player identity and display
// name. Any prior live session holding the same identity or name is
// unregistered and returned for the caller to notify and close: the newer
// claim wins. Fails only if s itself was already released.
func (r *Registry) ClaimIdentity(s *Session, identity uuid.UUID, name string) ([]*Session, error) {
	lower := strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[s.ID]; !ok {
		return nil, ErrSessionClosed
	}

	var evicted []*Session
	for _, prior := range []*Session{r.byIdentity[identity], r.byName[lower]} {
		if prior == nil || prior == s {
			continue
		}
		if len(evicted) == 1 && evicted[0] == prior {
			continue
		}
		r.unregisterLocked(prior)
		evicted = append(evicted, prior)
	}

	// Re-claiming from the same session replaces its prior claim.
	r.unclaimLocked(s)

	s.link(identity, name)
	r.byIdentity[identity] = s
	r.byName[lower] = s
	return evicted, nil
}

// Release removes a session and frees its identity and name claims.
// Returns the removed session, or nil if it was not registered.
func (r *Registry) Release(sessionID uint32) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	r.unregisterLocked(s)
	return s
}

// unregisterLocked removes a session and its claims from the registry maps.
// The session keeps its last identity and name so callers can notify
// presentation collaborators after removal.
func (r *Registry) unregisterLocked(s *Session) {
	r.unclaimLocked(s)
	delete(r.sessions, s.ID)
}

func (r *Registry) unclaimLocked(s *Session) {
	if identity, ok := s.Identity(); ok {
		if r.byIdentity[identity] == s {
			delete(r.byIdentity, identity)
		}
		if lower := strings.ToLower(s.Name()); r.byName[lower] == s {
			delete(r.byName, lower)
		}
	}
}

// Get returns a session by ID.
func (r *Registry) Get(sessionID uint32) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	return s, ok
}

// FindByIdentity returns the live session linked to an identity.
func (r *Registry) FindByIdentity(identity uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byIdentity[identity]
	return s, ok
}

// FindByName returns the live session holding a display name claim.
func (r *Registry) FindByName(name string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[strings.ToLower(name)]
	return s, ok
}

// AllSessions returns a snapshot slice safe to iterate while the registry
// mutates concurrently.
func (r *Registry) AllSessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
