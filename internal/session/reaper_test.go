package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/szaher/xcompanion/internal/events"
)

func TestReaperSweepRemovesOldTerminal(t *testing.T) {
	m := NewManager(scriptedStart)
	ctx := context.Background()

	if _, err := m.Start(ctx, "done", runScript{fragments: []string{"a"}}); err != nil {
		t.Fatalf("Start returned unexpected error: %v", err)
	}
	waitTerminal(t, m, "done")

	if _, err := m.Start(ctx, "live", runScript{block: true}); err != nil {
		t.Fatalf("Start returned unexpected error: %v", err)
	}

	collector := &events.CollectorEmitter{}
	reaper := NewReaper(m.Registry(), time.Minute, 0, WithReaperEmitter[string](collector))
	time.Sleep(10 * time.Millisecond) // age the terminal session past retention 0

	if removed := reaper.Sweep(); removed != 1 {
		t.Fatalf("Sweep removed %d sessions, want 1", removed)
	}

	// Reaped and never-existed are indistinguishable: both are not found.
	_, errReaped := m.Poll(ctx, "done", Cursor{})
	_, errNever := m.Poll(ctx, "nope", Cursor{})
	if !errors.Is(errReaped, ErrNotFound) {
		t.Errorf("Poll of reaped session = %v, want ErrNotFound", errReaped)
	}
	if !errors.Is(errNever, ErrNotFound) {
		t.Errorf("Poll of unknown session = %v, want ErrNotFound", errNever)
	}

	// The live session survived the sweep.
	if _, err := m.Poll(ctx, "live", Cursor{}); err != nil {
		t.Errorf("live session removed by sweep: %v", err)
	}

	reaped := collector.Events()
	if len(reaped) != 1 || reaped[0].Type != events.SessionReaped || reaped[0].SessionID != "done" {
		t.Errorf("reap events = %v, want one %s for \"done\"", reaped, events.SessionReaped)
	}

	if err := m.Terminate(ctx, "live"); err != nil {
		t.Fatalf("Terminate returned unexpected error: %v", err)
	}
}

func TestReaperRetentionKeepsRecentTerminal(t *testing.T) {
	m := NewManager(scriptedStart)
	ctx := context.Background()

	if _, err := m.Start(ctx, "recent", runScript{}); err != nil {
		t.Fatalf("Start returned unexpected error: %v", err)
	}
	waitTerminal(t, m, "recent")

	reaper := NewReaper(m.Registry(), time.Minute, time.Hour)
	if removed := reaper.Sweep(); removed != 0 {
		t.Fatalf("Sweep removed %d sessions, want 0 within retention", removed)
	}

	// Terminal sessions stay pollable for the grace period.
	snap, err := m.Poll(ctx, "recent", Cursor{})
	if err != nil {
		t.Fatalf("Poll returned unexpected error: %v", err)
	}
	if snap.State != StateCompleted {
		t.Errorf("state = %q, want %q", snap.State, StateCompleted)
	}
}

func TestReaperRunStopsOnContextCancel(t *testing.T) {
	m := NewManager(scriptedStart)
	reaper := NewReaper(m.Registry(), time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after context cancellation")
	}
}
