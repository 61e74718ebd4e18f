// Package detection defines the batch-detection collaborator consumed by
// the backend. The production implementation lives in internal/runtime.
package detection

import "context"

// Params describes one batch detection run. OutputPath is where the
// detector must write its results table; the backend treats the existence
// of that file as the authoritative success signal.
type Params struct {
	Files      []string
	PosPrompts string
	NegPrompts string
	Theta      float64
	OutputPath string
}

// Detector runs inference over the given audio files and writes a CSV
// results table to Params.OutputPath as a side effect.
type Detector interface {
	Detect(ctx context.Context, params Params) error
}
