package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soundscribe/ml-backend/internal/app"
	"github.com/soundscribe/ml-backend/internal/backend"
	"github.com/soundscribe/ml-backend/internal/config"
	"github.com/soundscribe/ml-backend/internal/events"
	"github.com/soundscribe/ml-backend/internal/runtime"
	"github.com/soundscribe/ml-backend/internal/weights"
	"github.com/soundscribe/ml-backend/internal/worker"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var Cmd = &cobra.Command{
	Use:   "run",
	Short: "Start the ML backend process",
	RunE:  runBackend,
}

func init() {
	flags := Cmd.Flags()

	flags.String("environment", "development", "Environment configuration")
	flags.Int("workers", config.DefaultWorkers, "Size of the worker pool for model loading and detection")
	flags.String("runtime-host", "localhost", "Host of the CLAP inference runtime")
	flags.Int("runtime-port", config.DefaultRuntimePort, "Port of the CLAP inference runtime")
	flags.Int("runtime-timeout", config.DefaultRuntimeTimeout, "Runtime connection timeout in seconds")
	flags.String("runtime-command", "", "Command used to spawn the inference runtime")
	flags.Bool("start-runtime", false, "Spawn the inference runtime as a child process")

	viper.BindPFlags(flags)

	bindEnvs()
}

func bindEnvs() {
	// Core settings (will use SOUNDSCRIBE_ prefix)
	// Example: SOUNDSCRIBE_WORKERS
	viper.BindEnv("environment")
	viper.BindEnv("workers")
	viper.BindEnv("start_runtime")

	viper.BindEnv("runtime.host")
	viper.BindEnv("runtime.port")
	viper.BindEnv("runtime.timeout")
	viper.BindEnv("runtime.command")
}

func runBackend(_ *cobra.Command, _ []string) error {
	a, err := app.NewApp(config.MustGetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config()
	runtimeCfg := resolveRuntimeConfig(cfg)

	errc := make(chan error, 2)
	signalc := make(chan os.Signal, 1)

	if viper.GetBool("start_runtime") {
		go func() {
			errc <- runtime.StartProcess(a.Context(), runtimeCfg, a.Logger)
		}()
	}

	client, err := connectRuntime(a.Context(), runtimeCfg, a.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	workers := cfg.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	tasks := worker.NewTaskRunner(workers)
	defer tasks.Stop()

	loader := runtime.NewLoader(client, weights.NewManager(cfg, a.Logger), a.Logger)
	detector := runtime.NewDetector(client, a.Logger)
	emitter := events.NewEmitter(os.Stdout)

	b := backend.New(emitter, tasks, loader, detector, a.Logger)

	go func() {
		errc <- b.Run(a.Context(), os.Stdin)
	}()

	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		return err
	case <-signalc:
		a.Logger.Info("Received shutdown signal")
		return nil
	}
}

func resolveRuntimeConfig(cfg *config.Config) *config.RuntimeConfig {
	rc := cfg.Runtime
	if rc == nil {
		rc = &config.RuntimeConfig{}
	}

	if rc.Host == "" {
		rc.Host = "localhost"
	}
	if rc.Port == 0 {
		rc.Port = config.DefaultRuntimePort
	}
	if rc.Timeout == 0 {
		rc.Timeout = config.DefaultRuntimeTimeout
	}
	if rc.Command == "" {
		rc.Command = viper.GetString("runtime.command")
	}

	return rc
}

// connectRuntime retries the initial dial; when we spawn the runtime
// ourselves it needs a moment before it listens.
func connectRuntime(ctx context.Context, cfg *config.RuntimeConfig, logger *zap.Logger) (*runtime.Client, error) {
	var (
		client *runtime.Client
		err    error
	)

	for attempt := 0; attempt < 30; attempt++ {
		client, err = runtime.NewClient(cfg, logger)
		if err == nil {
			return client, nil
		}

		logger.Warn("Runtime not reachable yet", zap.Int("attempt", attempt+1), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return nil, err
}
