// Package events defines structured event types for session lifecycle
// operations.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Type represents the kind of event.
type Type string

const (
	SessionStarted   Type = "session.started"
	SessionCompleted Type = "session.completed"
	SessionFailed    Type = "session.failed"
	SessionCancelled Type = "session.cancelled"
	SessionReaped    Type = "session.reaped"
)

// Event is a structured event emitted during session lifecycle operations.
type Event struct {
	Type      Type                   `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// New creates a new event with the given type and session identifier.
func New(eventType Type, sessionID string) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
	}
}

// WithData adds a data field to the event and returns it for chaining.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// JSON returns the event serialized as JSON.
func (e *Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter is the interface for event consumers.
type Emitter interface {
	Emit(event *Event)
}

// NoopEmitter discards all events.
type NoopEmitter struct{}

// Emit implements Emitter by discarding the event.
func (NoopEmitter) Emit(*Event) {}

// CollectorEmitter collects events in memory for testing. Safe for
// concurrent use; lifecycle events arrive from operation goroutines.
type CollectorEmitter struct {
	mu     sync.Mutex
	events []*Event
}

// Emit appends the event to the collector.
func (c *CollectorEmitter) Emit(event *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of the collected events.
func (c *CollectorEmitter) Events() []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Event, len(c.events))
	copy(out, c.events)
	return out
}

// LogEmitter writes events to a structured logger.
type LogEmitter struct {
	Logger *slog.Logger
}

// Emit logs the event with its data fields as attributes.
func (l *LogEmitter) Emit(event *Event) {
	attrs := []any{
		slog.String("session", event.SessionID),
	}
	for k, v := range event.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	l.Logger.Info(string(event.Type), attrs...)
}
