package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/soundscribe/ml-backend/internal/config"

	"go.uber.org/zap"
)

// StartProcess launches the configured runtime command (typically the
// Python CLAP worker) and blocks until it exits or ctx is cancelled. Its
// output goes to stderr; stdout belongs to the event protocol.
func StartProcess(ctx context.Context, cfg *config.RuntimeConfig, logger *zap.Logger) error {
	if cfg.Command == "" {
		return fmt.Errorf("no runtime command configured")
	}

	parts := strings.Fields(cfg.Command)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CLAP_RUNTIME_HOST=%s", cfg.Host),
		fmt.Sprintf("CLAP_RUNTIME_PORT=%d", cfg.Port),
	)

	logger.Info("Starting inference runtime", zap.String("command", cfg.Command))

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("inference runtime exited: %w", err)
	}

	return nil
}
