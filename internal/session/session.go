// Package session implements the delta update core: a concurrency-safe
// registry of long-running operations keyed by session identifier, a manager
// that starts, polls, and terminates them, and a reaper that evicts
// terminated sessions after a retention window. Pollers receive incremental
// snapshots: only the result fragments and log bytes produced since the
// cursor they supply.
package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the lifecycle state of a session.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final. Terminal sessions are
// immutable: no further fragments, log output, or transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Cursor marks how much of a session's output a poller has already
// consumed. The zero value reads from the beginning. Pollers hold their own
// cursors; the manager stores nothing per poller.
type Cursor struct {
	Results   int `json:"results"`
	LogOffset int `json:"log_offset"`
}

// Snapshot is an immutable incremental view of a session: the fragments and
// log bytes produced since the given cursor, plus the lifecycle state and
// terminal error at the moment the snapshot was taken. If State is terminal,
// everything produced before termination is visible through Next.
type Snapshot[R any] struct {
	Identifier string
	Results    []R
	LogOutput  string
	Metadata   map[string]string
	State      State
	Err        error
	Next       Cursor
}

// Operation is the capability contract a running unit of work must satisfy.
// Cancellation is cooperative: Cancel signals the operation, which must
// observe the signal at its next checkpoint and finish on its own.
type Operation interface {
	Cancel(ctx context.Context) error
}

// Session tracks one run of an operation. The operation is the single
// producer of fragments and log output; pollers are concurrent consumers.
// One mutex guards all mutable state so every snapshot is prefix-consistent:
// a terminal state is never observed without the fragments that preceded it.
type Session[R any] struct {
	id string

	mu         sync.Mutex
	op         Operation
	state      State
	fragments  []R
	log        []byte
	meta       map[string]string
	err        error
	cancelled  bool
	finishedAt time.Time
	lifetime   *time.Timer
	onTerminal func(state State, err error)
}

func newSession[R any](id string) *Session[R] {
	return &Session[R]{id: id, state: StatePending}
}

// ID returns the session identifier.
func (s *Session[R]) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session[R]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns an incremental view of everything produced after the
// cursor. Cursors ahead of the current position are clamped, so a stale or
// corrupted cursor degrades to an empty delta rather than an error.
func (s *Session[R]) Snapshot(since Cursor) Snapshot[R] {
	s.mu.Lock()
	defer s.mu.Unlock()

	ri := since.Results
	if ri < 0 {
		ri = 0
	} else if ri > len(s.fragments) {
		ri = len(s.fragments)
	}
	li := since.LogOffset
	if li < 0 {
		li = 0
	} else if li > len(s.log) {
		li = len(s.log)
	}

	results := make([]R, len(s.fragments)-ri)
	copy(results, s.fragments[ri:])

	var meta map[string]string
	if len(s.meta) > 0 {
		meta = make(map[string]string, len(s.meta))
		for k, v := range s.meta {
			meta[k] = v
		}
	}

	return Snapshot[R]{
		Identifier: s.id,
		Results:    results,
		LogOutput:  string(s.log[li:]),
		Metadata:   meta,
		State:      s.state,
		Err:        s.err,
		Next:       Cursor{Results: len(s.fragments), LogOffset: len(s.log)},
	}
}

// FinishedAt returns the terminal transition time, if any.
func (s *Session[R]) FinishedAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt, s.state.Terminal()
}

// begin attaches the started operation and moves pending to running. A
// session whose operation already completed synchronously stays terminal.
// It reports whether a cancel was requested while the session was still
// pending; the caller must deliver that signal to the operation, since
// requestCancel had no operation to return at the time.
func (s *Session[R]) begin(op Operation) (cancelRequested bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.op = op
	if s.state == StatePending {
		s.state = StateRunning
	}
	return s.cancelled
}

// requestCancel marks the session for cooperative cancellation and returns
// the operation to signal. It returns nil if the session is already
// terminal or the cancel signal was already sent.
func (s *Session[R]) requestCancel() Operation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() || s.cancelled {
		return nil
	}
	s.cancelled = true
	return s.op
}

// setTerminalHook installs the callback invoked once on the terminal
// transition. It must be set before the operation starts producing.
func (s *Session[R]) setTerminalHook(fn func(State, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTerminal = fn
}

func (s *Session[R]) armLifetime(d time.Duration, expire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return
	}
	s.lifetime = time.AfterFunc(d, expire)
}

// complete records the terminal transition. The first call wins; appends
// and repeated completions after that are ignored. A run that ends with a
// context cancellation after a cancel request terminates as cancelled; any
// other error terminates as failed.
func (s *Session[R]) complete(runErr error) {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	switch {
	case runErr == nil:
		s.state = StateCompleted
	case s.cancelled && errors.Is(runErr, context.Canceled):
		s.state = StateCancelled
	default:
		s.state = StateFailed
		s.err = runErr
	}
	s.finishedAt = time.Now()
	s.op = nil
	if s.lifetime != nil {
		s.lifetime.Stop()
		s.lifetime = nil
	}
	state, err, hook := s.state, s.err, s.onTerminal
	s.mu.Unlock()

	if hook != nil {
		hook(state, err)
	}
}

// Recorder is the producer-side handle bound to a session. The operation
// factory receives one and the operation reports through it from its own
// goroutine: result fragments, log output, metadata, and finally exactly
// one Complete.
type Recorder[R any] struct {
	s *Session[R]
}

// AppendResults appends result fragments in order. Appends against a
// terminal session are dropped.
func (r *Recorder[R]) AppendResults(results ...R) {
	if len(results) == 0 {
		return
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.state.Terminal() {
		return
	}
	r.s.fragments = append(r.s.fragments, results...)
}

// Write appends log output. Recorder is an io.Writer so process output can
// be streamed into it directly.
func (r *Recorder[R]) Write(p []byte) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.state.Terminal() {
		return len(p), nil
	}
	r.s.log = append(r.s.log, p...)
	return len(p), nil
}

// SetMeta records a metadata entry on the session, such as the path to the
// result bundle produced by a run.
func (r *Recorder[R]) SetMeta(key, value string) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.state.Terminal() {
		return
	}
	if r.s.meta == nil {
		r.s.meta = make(map[string]string)
	}
	r.s.meta[key] = value
}

// Complete finishes the session. A nil error completes it; a context
// cancellation after a terminate request cancels it; anything else fails it.
func (r *Recorder[R]) Complete(err error) {
	r.s.complete(err)
}
