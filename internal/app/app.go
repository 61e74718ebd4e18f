package app

import (
	"context"

	"github.com/soundscribe/ml-backend/internal/config"
	"github.com/soundscribe/ml-backend/pkg/logger"

	"go.uber.org/zap"
)

type App struct {
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	Logger *zap.Logger
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(l *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = l
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		config:     cfg,
		ctx:        ctx,
		cancelFunc: cancel,
	}

	l, err := logger.InitLogger(cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	app.Logger = l

	for _, option := range options {
		if err := option(app); err != nil {
			cancel()
			return nil, err
		}
	}

	return app, nil
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) Close() {
	app.cancelFunc()

	if app.Logger != nil {
		_ = app.Logger.Sync()
	}
}
