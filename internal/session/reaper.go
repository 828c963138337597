package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/szaher/xcompanion/internal/events"
	"github.com/szaher/xcompanion/internal/telemetry"
)

// Reaper periodically removes terminal sessions older than the retention
// window, bounding registry memory. It is decoupled from poll and terminate:
// removal of an immutable terminal session cannot disturb a poller that
// already holds the session, only make new lookups fail with ErrNotFound.
type Reaper[R any] struct {
	registry  *Registry[R]
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	emitter   events.Emitter
	metrics   *telemetry.Metrics
}

// ReaperOption configures the Reaper.
type ReaperOption[R any] func(*Reaper[R])

// WithReaperLogger sets the logger.
func WithReaperLogger[R any](logger *slog.Logger) ReaperOption[R] {
	return func(r *Reaper[R]) { r.logger = logger }
}

// WithReaperEmitter sets the lifecycle event emitter.
func WithReaperEmitter[R any](e events.Emitter) ReaperOption[R] {
	return func(r *Reaper[R]) { r.emitter = e }
}

// WithReaperMetrics sets the metrics collector.
func WithReaperMetrics[R any](metrics *telemetry.Metrics) ReaperOption[R] {
	return func(r *Reaper[R]) { r.metrics = metrics }
}

// NewReaper creates a reaper sweeping the registry every interval and
// removing sessions terminal for longer than retention.
func NewReaper[R any](registry *Registry[R], interval, retention time.Duration, opts ...ReaperOption[R]) *Reaper[R] {
	r := &Reaper[R]{
		registry:  registry,
		interval:  interval,
		retention: retention,
		logger:    slog.Default(),
		emitter:   events.NoopEmitter{},
		metrics:   telemetry.NewMetrics(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run sweeps until the context is cancelled.
func (r *Reaper[R]) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep removes terminal sessions past retention and returns how many.
func (r *Reaper[R]) Sweep() int {
	removed := 0
	for _, id := range r.registry.TerminalOlderThan(r.retention) {
		if r.registry.Remove(id) {
			removed++
			r.emitter.Emit(events.New(events.SessionReaped, id))
			r.logger.Debug("session reaped", "session", id)
		}
	}
	if removed > 0 {
		r.metrics.SessionsReaped(removed)
		r.metrics.SetActiveSessions(r.registry.Len())
		r.logger.Info("reaper sweep", "removed", removed, "remaining", r.registry.Len())
	}
	return removed
}
