// Package weights provisions model weight files from HuggingFace Hub and
// verifies their integrity before the runtime is asked to load them.
package weights

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/soundscribe/ml-backend/internal/config"
	"github.com/soundscribe/ml-backend/internal/events"
	"github.com/soundscribe/ml-backend/internal/model"
	"github.com/soundscribe/ml-backend/internal/utils/hashutil"

	"github.com/cozy-creator/hf-hub/hub"
	"go.uber.org/zap"
)

const hfPrefix = "hf:"

// Manager resolves model identifiers to local weight paths, downloading
// from the hub when the cache misses.
type Manager struct {
	hubClient *hub.Client
	specs     map[string]config.ModelSpec
	logger    *zap.Logger
}

func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		hubClient: hub.DefaultClient(),
		specs:     cfg.Models,
		logger:    logger.Named("weights"),
	}
}

// Ensure makes the weights for the named model available locally and
// returns the path to the primary weights file. Models without a configured
// spec return an empty path; the runtime then resolves weights on its own.
// Progress is reported through the loader's callback so the controlling
// process can observe long downloads.
func (m *Manager) Ensure(ctx context.Context, name string, progress model.ProgressFunc) (string, error) {
	spec, ok := m.specs[name]
	if !ok {
		m.logger.Info("No weight source configured, deferring to runtime", zap.String("model_name", name))
		return "", nil
	}

	if !strings.HasPrefix(spec.Source, hfPrefix) {
		return "", fmt.Errorf("unsupported model source: %s", spec.Source)
	}
	repoID := strings.TrimPrefix(spec.Source, hfPrefix)

	if progress != nil {
		progress(events.TypeModelLoadingProgress, map[string]any{
			"model_name": name,
			"stage":      "provisioning_weights",
			"repo":       repoID,
		})
	}

	params := hub.DownloadParams{
		Repo: &hub.Repo{Id: repoID, Type: "model"},
	}
	snapshot, err := m.hubClient.Download(&params)
	if err != nil {
		return "", fmt.Errorf("failed to download weights from %s: %w", repoID, err)
	}

	weightsPath := snapshot
	if spec.Weights != "" {
		weightsPath = filepath.Join(snapshot, spec.Weights)
	}

	if err := m.verify(weightsPath, spec.Checksum); err != nil {
		return "", err
	}

	if progress != nil {
		progress(events.TypeModelLoadingProgress, map[string]any{
			"model_name": name,
			"stage":      "weights_ready",
		})
	}

	return weightsPath, nil
}

// verify checks the blake3 digest of the weights file when the config pins
// one. An unpinned checksum skips verification.
func (m *Manager) verify(path, checksum string) error {
	if checksum == "" {
		return nil
	}

	digest, err := hashutil.Blake3HashFile(path)
	if err != nil {
		return fmt.Errorf("failed to hash weights file: %w", err)
	}

	if !strings.EqualFold(digest, checksum) {
		return fmt.Errorf("weights checksum mismatch for %s: got %s, want %s", path, digest, checksum)
	}

	return nil
}
