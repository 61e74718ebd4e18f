// Package experiments maintains the per-directory sidecar config, a JSON
// document recording named experiment parameter sets for the annotation UI.
package experiments

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// SidecarName is the JSON document the annotation tool keeps next to
	// its audio data.
	SidecarName = "config.json"

	// TempExperiment is the record reserved for the most recent ad-hoc
	// detection run. It is overwritten on every successful run.
	TempExperiment = "temp"
)

// Record holds the parameters of one detection run.
type Record struct {
	PosPrompts string  `json:"posPrompts"`
	NegPrompts string  `json:"negPrompts"`
	Theta      float64 `json:"theta"`
	Time       string  `json:"time"`
}

// RecordTemp rewrites the sidecar in saveDir so that experiments.temp holds
// the given parameters plus a fresh timestamp. All other keys in the
// document are preserved as-is. The sidecar must already exist; the
// annotation tool owns its creation.
func RecordTemp(saveDir, posPrompts, negPrompts string, theta float64) error {
	path := filepath.Join(saveDir, SidecarName)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read sidecar config: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse sidecar config: %w", err)
	}

	exps, ok := doc["experiments"].(map[string]any)
	if !ok {
		exps = map[string]any{}
		doc["experiments"] = exps
	}

	exps[TempExperiment] = Record{
		PosPrompts: posPrompts,
		NegPrompts: negPrompts,
		Theta:      theta,
		Time:       time.Now().Format(time.RFC3339Nano),
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode sidecar config: %w", err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("failed to write sidecar config: %w", err)
	}

	return nil
}
