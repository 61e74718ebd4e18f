package runtime

import (
	"context"
	"fmt"

	"github.com/soundscribe/ml-backend/internal/model"
	"github.com/soundscribe/ml-backend/internal/weights"

	"go.uber.org/zap"
)

// Loader implements model.Loader: it provisions the model weights locally,
// then instructs the runtime to load them.
type Loader struct {
	client  *Client
	weights *weights.Manager
	logger  *zap.Logger
}

func NewLoader(client *Client, weights *weights.Manager, logger *zap.Logger) *Loader {
	return &Loader{
		client:  client,
		weights: weights,
		logger:  logger.Named("loader"),
	}
}

func (l *Loader) Load(ctx context.Context, name string, progress model.ProgressFunc) (model.Handle, error) {
	weightsPath, err := l.weights.Ensure(ctx, name, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to provision weights for %s: %w", name, err)
	}

	l.logger.Info("Loading model on runtime",
		zap.String("model_name", name),
		zap.String("weights_path", weightsPath),
	)

	if err := l.client.LoadModel(ctx, name, weightsPath); err != nil {
		return nil, err
	}

	return model.NamedHandle(name), nil
}
