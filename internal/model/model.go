// Package model defines the model-loading collaborator consumed by the
// backend. The production implementation lives in internal/runtime.
package model

import "context"

// ProgressFunc receives progress notifications during a load. The backend
// forwards them to the controlling process as events.
type ProgressFunc func(eventType string, data map[string]any)

// Handle is an opaque reference to a loaded inference model. The backend
// holds at most one live handle; loading a new model replaces it with no
// explicit unload step.
type Handle interface {
	Name() string
}

// Loader loads a model by identifier and returns its handle.
type Loader interface {
	Load(ctx context.Context, name string, progress ProgressFunc) (Handle, error)
}

// NamedHandle is the trivial Handle used by loaders that track no state of
// their own beyond the identifier.
type NamedHandle string

func (h NamedHandle) Name() string { return string(h) }
