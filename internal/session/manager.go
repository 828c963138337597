package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/szaher/xcompanion/internal/events"
	"github.com/szaher/xcompanion/internal/telemetry"
)

// StartFunc binds a request to a running operation. Implementations
// validate the request (returning an error wrapping ErrInvalidRequest for
// malformed input), launch the work on its own goroutine, and report
// through the recorder.
type StartFunc[Q, R any] func(ctx context.Context, rec *Recorder[R], req Q) (Operation, error)

// Manager orchestrates session lifecycle: start, poll, terminate. It is
// generic over the request type Q passed opaquely to the start function and
// the result fragment type R accumulated by sessions.
type Manager[Q, R any] struct {
	registry    *Registry[R]
	start       StartFunc[Q, R]
	logger      *slog.Logger
	emitter     events.Emitter
	metrics     *telemetry.Metrics
	maxLifetime time.Duration
}

// ManagerOption configures the Manager.
type ManagerOption[Q, R any] func(*Manager[Q, R])

// WithLogger sets the logger.
func WithLogger[Q, R any](logger *slog.Logger) ManagerOption[Q, R] {
	return func(m *Manager[Q, R]) { m.logger = logger }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter[Q, R any](e events.Emitter) ManagerOption[Q, R] {
	return func(m *Manager[Q, R]) { m.emitter = e }
}

// WithMetrics sets the metrics collector.
func WithMetrics[Q, R any](metrics *telemetry.Metrics) ManagerOption[Q, R] {
	return func(m *Manager[Q, R]) { m.metrics = metrics }
}

// WithMaxLifetime auto-terminates sessions still running after d, through
// the same cooperative path as an explicit Terminate. Zero disables it.
func WithMaxLifetime[Q, R any](d time.Duration) ManagerOption[Q, R] {
	return func(m *Manager[Q, R]) { m.maxLifetime = d }
}

// NewManager creates a session manager around a start function.
func NewManager[Q, R any](start StartFunc[Q, R], opts ...ManagerOption[Q, R]) *Manager[Q, R] {
	m := &Manager[Q, R]{
		registry: NewRegistry[R](),
		start:    start,
		logger:   slog.Default(),
		emitter:  events.NoopEmitter{},
		metrics:  telemetry.NewMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the underlying registry, used by the reaper.
func (m *Manager[Q, R]) Registry() *Registry[R] {
	return m.registry
}

// Start creates a session and launches its operation asynchronously. An
// empty id gets a generated one. The returned identifier is valid for Poll
// and Terminate immediately, before the operation produces anything.
func (m *Manager[Q, R]) Start(ctx context.Context, id string, req Q) (string, error) {
	if id == "" {
		id = newID()
	}
	s, err := m.registry.Create(ctx, id, func(ctx context.Context, rec *Recorder[R]) (Operation, error) {
		// Install the terminal hook before the operation can run, so a
		// synchronous completion is not missed.
		rec.s.setTerminalHook(m.terminalHook(id))
		return m.start(ctx, rec, req)
	})
	if err != nil {
		return "", err
	}
	if m.maxLifetime > 0 {
		s.armLifetime(m.maxLifetime, func() {
			m.logger.Warn("session exceeded max lifetime", "session", id, "max_lifetime", m.maxLifetime)
			_ = m.Terminate(context.Background(), id)
		})
	}

	m.logger.Info("session started", "session", id, "state", s.State())
	m.emitter.Emit(events.New(events.SessionStarted, id))
	m.metrics.SessionStarted()
	m.metrics.SetActiveSessions(m.registry.Len())
	return id, nil
}

// Poll returns the delta since the cursor: new fragments, new log output,
// current state, and terminal error if any. Poll never blocks on the
// operation and never fails for an existing session; runtime failures
// surface inside the snapshot as state failed plus a terminal error.
func (m *Manager[Q, R]) Poll(ctx context.Context, id string, since Cursor) (Snapshot[R], error) {
	s, err := m.registry.Get(id)
	if err != nil {
		return Snapshot[R]{}, err
	}
	snap := s.Snapshot(since)
	m.metrics.PollServed(len(snap.Results))
	return snap, nil
}

// Terminate requests cooperative cancellation of a running session. The
// session transitions to cancelled once the operation acknowledges the
// signal and exits; an operation already finishing transitions naturally.
// Terminating a terminal session is a no-op.
func (m *Manager[Q, R]) Terminate(ctx context.Context, id string) error {
	s, err := m.registry.Get(id)
	if err != nil {
		return err
	}
	op := s.requestCancel()
	if op == nil {
		return nil
	}
	m.logger.Info("session terminate requested", "session", id)
	if err := op.Cancel(ctx); err != nil {
		return fmt.Errorf("cancel session %q: %w", id, err)
	}
	return nil
}

// Info is a summary row for session listings.
type Info struct {
	ID    string `json:"id"`
	State State  `json:"state"`
}

// List returns a summary of all registered sessions.
func (m *Manager[Q, R]) List(ctx context.Context) []Info {
	sessions := m.registry.List()
	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Info{ID: s.ID(), State: s.State()})
	}
	return out
}

func (m *Manager[Q, R]) terminalHook(id string) func(State, error) {
	return func(state State, err error) {
		attrs := []any{slog.String("session", id), slog.String("state", string(state))}
		eventType := events.SessionCompleted
		switch state {
		case StateFailed:
			eventType = events.SessionFailed
			attrs = append(attrs, slog.String("error", err.Error()))
		case StateCancelled:
			eventType = events.SessionCancelled
		}
		m.logger.Info("session finished", attrs...)

		event := events.New(eventType, id)
		if err != nil {
			event = event.WithData("error", err.Error())
		}
		m.emitter.Emit(event)
		m.metrics.SessionFinished(string(state))
	}
}
