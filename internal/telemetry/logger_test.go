package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("suppressed")
	logger.Warn("emitted")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshaling log output: %v", err)
	}
	if line["msg"] != "emitted" {
		t.Errorf("msg = %v, want the warn entry only", line["msg"])
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "abc123")
	if got := CorrelationID(ctx); got != "abc123" {
		t.Errorf("CorrelationID = %q, want abc123", got)
	}

	generated := CorrelationID(WithCorrelationID(context.Background(), ""))
	if len(generated) != 32 {
		t.Errorf("generated correlation ID = %q, want 32 hex chars", generated)
	}

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID on bare context = %q, want empty", got)
	}
}

func TestSessionLogger(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(&buf, slog.LevelInfo)
	ctx := WithCorrelationID(context.Background(), "corr1")

	SessionLogger(base, ctx, "sess_42").Info("poll served")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshaling log output: %v", err)
	}
	if line["session"] != "sess_42" {
		t.Errorf("session = %v, want sess_42", line["session"])
	}
	if line["correlation_id"] != "corr1" {
		t.Errorf("correlation_id = %v, want corr1", line["correlation_id"])
	}
}
