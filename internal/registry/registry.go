// Package registry is the authoritative, process-local store of active
// call sessions. All operations are safe under concurrent invocation;
// mutations of a single call are serialized through a per-entry lock.
package registry

import (
	"errors"
	"sync"

	"github.com/callforge/switchboard/internal/domain"
	"github.com/callforge/switchboard/internal/logging"
)

var (
	ErrNotFound      = errors.New("call session not found")
	ErrAlreadyExists = errors.New("call session already exists")
)

// entry wraps a stored session with its own lock so that two actions on
// the same call arriving from different connections cannot interleave.
type entry struct {
	mu      sync.Mutex
	deleted bool
	sess    domain.CallSession
}

// Registry stores active call sessions keyed by call ID.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
	log      *logging.Logger
}

// New creates an empty session registry.
func New(log *logging.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		log:      log.Sub("registry"),
	}
}

// Create stores a new session. Fails with ErrAlreadyExists if the call ID
// is already present.
func (r *Registry) Create(sess domain.CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.CallID]; ok {
		return ErrAlreadyExists
	}
	r.sessions[sess.CallID] = &entry{sess: sess}
	r.log.Debug().Str("callId", sess.CallID).Str("agentId", sess.AgentID).Msg("session created")
	return nil
}

// Get returns a copy of the session, or ErrNotFound.
func (r *Registry) Get(callID string) (domain.CallSession, error) {
	e, ok := r.lookup(callID)
	if !ok {
		return domain.CallSession{}, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		return domain.CallSession{}, ErrNotFound
	}
	return e.sess, nil
}

// Mutate applies fn to the stored session under the entry's lock and
// commits the result. If fn returns an error the stored session is left
// unchanged. Fails with ErrNotFound if the call is absent.
func (r *Registry) Mutate(callID string, fn func(*domain.CallSession) error) error {
	e, ok := r.lookup(callID)
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.deleted {
		// Raced a delete between lookup and lock.
		return ErrNotFound
	}

	working := e.sess
	if err := fn(&working); err != nil {
		return err
	}
	e.sess = working
	return nil
}

// Delete removes the session and reports whether it existed. Deleting an
// absent call ID is a safe no-op so a hang-up racing the reaper cannot
// double-fire terminal handling.
func (r *Registry) Delete(callID string) bool {
	r.mu.Lock()
	e, ok := r.sessions[callID]
	if ok {
		delete(r.sessions, callID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()

	r.log.Debug().Str("callId", callID).Msg("session deleted")
	return true
}

// Snapshot returns copies of all stored sessions.
func (r *Registry) Snapshot() []domain.CallSession {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]domain.CallSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if !e.deleted {
			out = append(out, e.sess)
		}
		e.mu.Unlock()
	}
	return out
}

// Len returns the number of active sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) lookup(callID string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[callID]
	return e, ok
}
