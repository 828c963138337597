package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// nopOperation is an operation whose cancel does nothing.
type nopOperation struct{}

func (nopOperation) Cancel(context.Context) error { return nil }

func nopFactory(_ context.Context, _ *Recorder[string]) (Operation, error) {
	return nopOperation{}, nil
}

func TestRegistryCreate(t *testing.T) {
	reg := NewRegistry[string]()
	ctx := context.Background()

	s, err := reg.Create(ctx, "s1", nopFactory)
	if err != nil {
		t.Fatalf("Create returned unexpected error: %v", err)
	}
	if s.ID() != "s1" {
		t.Errorf("ID = %q, want %q", s.ID(), "s1")
	}
	if got := s.State(); got != StateRunning {
		t.Errorf("state after create = %q, want %q", got, StateRunning)
	}

	_, err = reg.Create(ctx, "s1", nopFactory)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate Create error = %v, want ErrAlreadyExists", err)
	}
}

func TestRegistryCreateFactoryError(t *testing.T) {
	reg := NewRegistry[string]()
	ctx := context.Background()

	_, err := reg.Create(ctx, "s1", func(context.Context, *Recorder[string]) (Operation, error) {
		return nil, fmt.Errorf("%w: bad bundle", ErrInvalidRequest)
	})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("Create error = %v, want ErrInvalidRequest", err)
	}

	// The failed creation released the identifier.
	if _, err := reg.Get("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after failed create = %v, want ErrNotFound", err)
	}
	if _, err := reg.Create(ctx, "s1", nopFactory); err != nil {
		t.Errorf("Create after failed create returned unexpected error: %v", err)
	}
}

func TestRegistryConcurrentCreateStartsOneOperation(t *testing.T) {
	reg := NewRegistry[string]()
	ctx := context.Background()

	const callers = 32
	var started atomic.Int32
	var succeeded atomic.Int32
	var collided atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Create(ctx, "contended", func(context.Context, *Recorder[string]) (Operation, error) {
				started.Add(1)
				return nopOperation{}, nil
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrAlreadyExists):
				collided.Add(1)
			default:
				t.Errorf("Create returned unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded.Load() != 1 {
		t.Errorf("%d creates succeeded, want exactly 1", succeeded.Load())
	}
	if collided.Load() != callers-1 {
		t.Errorf("%d creates collided, want %d", collided.Load(), callers-1)
	}
	if started.Load() != 1 {
		t.Errorf("%d operations started, want exactly 1 (no orphans)", started.Load())
	}
}

func TestRegistryGetNotFound(t *testing.T) {
	reg := NewRegistry[string]()
	if _, err := reg.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestRegistryRemoveOnlyTerminal(t *testing.T) {
	reg := NewRegistry[string]()
	ctx := context.Background()

	var rec *Recorder[string]
	s, err := reg.Create(ctx, "s1", func(_ context.Context, r *Recorder[string]) (Operation, error) {
		rec = r
		return nopOperation{}, nil
	})
	if err != nil {
		t.Fatalf("Create returned unexpected error: %v", err)
	}

	if reg.Remove("s1") {
		t.Error("Remove of a running session succeeded, want no-op")
	}
	if _, err := reg.Get("s1"); err != nil {
		t.Fatalf("session dropped by Remove while running: %v", err)
	}

	rec.Complete(nil)
	if !reg.Remove("s1") {
		t.Error("Remove of a terminal session failed")
	}
	if _, err := reg.Get("s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Remove = %v, want ErrNotFound", err)
	}

	// A poller holding the session reference is unaffected by removal.
	snap := s.Snapshot(Cursor{})
	if snap.State != StateCompleted {
		t.Errorf("snapshot of removed session state = %q, want %q", snap.State, StateCompleted)
	}
}

func TestRegistryTerminalOlderThan(t *testing.T) {
	reg := NewRegistry[string]()
	ctx := context.Background()

	recs := make(map[string]*Recorder[string])
	for _, id := range []string{"old", "live"} {
		if _, err := reg.Create(ctx, id, func(_ context.Context, r *Recorder[string]) (Operation, error) {
			recs[id] = r
			return nopOperation{}, nil
		}); err != nil {
			t.Fatalf("Create(%q) returned unexpected error: %v", id, err)
		}
	}

	recs["old"].Complete(nil)
	time.Sleep(10 * time.Millisecond)

	ids := reg.TerminalOlderThan(0)
	if len(ids) != 1 || ids[0] != "old" {
		t.Errorf("TerminalOlderThan(0) = %v, want [old]", ids)
	}

	if ids := reg.TerminalOlderThan(time.Hour); len(ids) != 0 {
		t.Errorf("TerminalOlderThan(1h) = %v, want none", ids)
	}
}
