package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestEventJSON(t *testing.T) {
	e := New(SessionCompleted, "sess_01").WithData("fragments", 12)
	raw, err := e.JSON()
	if err != nil {
		t.Fatalf("JSON returned unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshaling event: %v", err)
	}
	if decoded["type"] != string(SessionCompleted) {
		t.Errorf("type = %v, want %q", decoded["type"], SessionCompleted)
	}
	if decoded["session_id"] != "sess_01" {
		t.Errorf("session_id = %v, want sess_01", decoded["session_id"])
	}
	data := decoded["data"].(map[string]interface{})
	if data["fragments"] != float64(12) {
		t.Errorf("data.fragments = %v, want 12", data["fragments"])
	}
}

func TestEventJSONOmitsEmptyData(t *testing.T) {
	raw, err := New(SessionReaped, "sess_02").JSON()
	if err != nil {
		t.Fatalf("JSON returned unexpected error: %v", err)
	}
	if strings.Contains(string(raw), `"data"`) {
		t.Errorf("event without data serialized a data field: %s", raw)
	}
}

func TestCollectorEmitterConcurrent(t *testing.T) {
	c := &CollectorEmitter{}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c.Emit(New(SessionStarted, fmt.Sprintf("sess_%02d", n)))
		}(i)
	}
	wg.Wait()

	got := c.Events()
	if len(got) != 16 {
		t.Fatalf("collected %d events, want 16", len(got))
	}

	// The returned slice is a copy; appending to the collector afterwards
	// must not be visible through it.
	c.Emit(New(SessionReaped, "sess_late"))
	if len(got) != 16 {
		t.Errorf("snapshot grew to %d events after a later emit", len(got))
	}
}

func TestLogEmitter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	emitter := &LogEmitter{Logger: logger}

	emitter.Emit(New(SessionFailed, "sess_03").WithData("error", "bundle crashed"))

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshaling log line: %v", err)
	}
	if line["msg"] != string(SessionFailed) {
		t.Errorf("msg = %v, want %q", line["msg"], SessionFailed)
	}
	if line["session"] != "sess_03" {
		t.Errorf("session = %v, want sess_03", line["session"])
	}
	if line["error"] != "bundle crashed" {
		t.Errorf("error = %v, want the data attribute", line["error"])
	}
}
