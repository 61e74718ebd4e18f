package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEmitWritesOneJSONObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(&buf)

	if err := emitter.Emit(TypeModelLoadingStarted, map[string]any{"model_name": "CLAP_Jan23"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if err := emitter.Emit(TypeError, map[string]any{"success": false, "error": "boom"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("First line is not valid JSON: %v", err)
	}
	if first.Type != TypeModelLoadingStarted {
		t.Errorf("Expected type %q, got %q", TypeModelLoadingStarted, first.Type)
	}

	var second Event
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("Second line is not valid JSON: %v", err)
	}
	if second.Type != TypeError {
		t.Errorf("Expected type %q, got %q", TypeError, second.Type)
	}
}

func TestEmitTimestampIsParseable(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(&buf)

	before := time.Now().Add(-time.Second)
	if err := emitter.Emit(TypeCommand, map[string]any{"action": "load_model"}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	var event Event
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("Event is not valid JSON: %v", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, event.Timestamp)
	if err != nil {
		t.Fatalf("Timestamp %q is not RFC3339: %v", event.Timestamp, err)
	}
	if ts.Before(before) {
		t.Errorf("Timestamp %v is before emit time %v", ts, before)
	}
}

func TestEmitFlushesImmediately(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(&buf)

	if err := emitter.Emit(TypeDetectionCompleted, map[string]any{"success": true}); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	// The event must be visible on the sink without any further writes.
	if buf.Len() == 0 {
		t.Fatal("Expected event to be flushed to the sink")
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Error("Expected event line to be newline terminated")
	}
}
