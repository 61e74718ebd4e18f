package weights

import (
	"context"
	"strings"
	"testing"

	"github.com/soundscribe/ml-backend/internal/config"

	"go.uber.org/zap"
)

func TestEnsureUnconfiguredModelDefersToRuntime(t *testing.T) {
	m := NewManager(&config.Config{}, zap.NewNop())

	path, err := m.Ensure(context.Background(), "CLAP_Jan23", nil)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if path != "" {
		t.Errorf("Expected an empty weights path for an unconfigured model, got %q", path)
	}
}

func TestEnsureRejectsUnsupportedSource(t *testing.T) {
	cfg := &config.Config{
		Models: map[string]config.ModelSpec{
			"CLAP_Jan23": {Source: "s3://bucket/clap"},
		},
	}
	m := NewManager(cfg, zap.NewNop())

	_, err := m.Ensure(context.Background(), "CLAP_Jan23", nil)
	if err == nil {
		t.Fatal("Expected an error for a non-hub source")
	}
	if !strings.Contains(err.Error(), "unsupported model source") {
		t.Errorf("Expected the source to be rejected, got %v", err)
	}
}
