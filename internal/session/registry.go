package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Factory starts the operation for a new session. It reports through the
// recorder from the operation's own goroutine and returns a handle used for
// cooperative cancellation. A factory error aborts the creation: the
// reserved identifier is released and no session is stored.
type Factory[R any] func(ctx context.Context, rec *Recorder[R]) (Operation, error)

// Registry is the single point of mutual exclusion for the identifier
// namespace. Lookups touch only the map lock, never a session's own mutex,
// so Get does not block on an in-progress fragment append.
type Registry[R any] struct {
	mu       sync.RWMutex
	sessions map[string]*Session[R]
}

// NewRegistry creates an empty registry.
func NewRegistry[R any]() *Registry[R] {
	return &Registry[R]{sessions: make(map[string]*Session[R])}
}

// Create atomically reserves the identifier, then starts the operation via
// the factory outside the registry lock. Two concurrent creates for the same
// identifier start exactly one operation: the loser fails with
// ErrAlreadyExists before its factory runs.
func (r *Registry[R]) Create(ctx context.Context, id string, start Factory[R]) (*Session[R], error) {
	r.mu.Lock()
	if _, ok := r.sessions[id]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %q: %w", id, ErrAlreadyExists)
	}
	s := newSession[R](id)
	r.sessions[id] = s
	r.mu.Unlock()

	op, err := start(ctx, &Recorder[R]{s: s})
	if err != nil {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()
		return nil, err
	}
	if s.begin(op) {
		// A Terminate landed while the factory was still running, before
		// there was an operation to signal. Deliver it now; the session
		// terminates through the usual cooperative path.
		_ = op.Cancel(ctx)
	}
	return s, nil
}

// Get returns the session for the identifier. An identifier that never
// existed and one already reaped are indistinguishable: both are ErrNotFound.
func (r *Registry[R]) Get(id string) (*Session[R], error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return s, nil
}

// Remove deletes a terminal session. Removing a live session is a no-op, so
// the reaper can never drop a running operation. Pollers holding a session
// reference fetched earlier are unaffected; only new lookups fail.
func (r *Registry[R]) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || !s.State().Terminal() {
		return false
	}
	delete(r.sessions, id)
	return true
}

// TerminalOlderThan returns identifiers of sessions that reached a terminal
// state more than age ago.
func (r *Registry[R]) TerminalOlderThan(age time.Duration) []string {
	cutoff := time.Now().Add(-age)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, s := range r.sessions {
		if finished, ok := s.FinishedAt(); ok && finished.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// List returns all registered sessions.
func (r *Registry[R]) List() []*Session[R] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session[R], 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry[R]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
