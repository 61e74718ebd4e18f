// Package events serializes backend events to the controlling process,
// one JSON object per line.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	TypeCommand               = "command"
	TypeModelLoadingStarted   = "model_loading_started"
	TypeModelLoadingProgress  = "model_loading_progress"
	TypeModelLoadingCompleted = "model_loading_completed"
	TypeDetectionStarted      = "detection_started"
	TypeDetectionCompleted    = "detection_completed"
	TypeError                 = "error"
)

// Event is the envelope written to the output stream.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Emitter writes events to a single shared sink. Writes are serialized and
// flushed immediately so the external reader observes them in emit order.
type Emitter struct {
	mu  sync.Mutex
	w   *bufio.Writer
	now func() time.Time
}

func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{
		w:   bufio.NewWriter(w),
		now: time.Now,
	}
}

func (e *Emitter) Emit(eventType string, data any) error {
	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: e.now().Format(time.RFC3339Nano),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.w.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	if err := e.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}

	return nil
}
