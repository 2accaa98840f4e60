// Package cli provides common CLI initialization utilities shared by the
// gastos subcommands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gastos/internal/amqp"
	"gastos/internal/backend"
	"gastos/internal/config"
	"gastos/internal/log"
	"gastos/internal/services"

	"github.com/joho/godotenv"
)

// SetupLogger builds the process logger and sets it as the slog default.
func SetupLogger(level string, out io.Writer) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Component: log.ComponentApp,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Runtime is an initialised record store with everything it holds open.
type Runtime struct {
	Config  *config.Config
	Store   *services.RecordStore
	Changes *amqp.Client // nil when AMQP is not configured or unreachable
	Applied []services.Migration

	backend *backend.BackendResult
}

// Bootstrap opens the configured medium, connects the change publisher and
// runs the migrations.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Runtime, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{Config: cfg, backend: res}
	opts := services.Options{
		MovementsTTL:      storeTTL(cfg.MovementsCacheTTL),
		CategoriesTTL:     storeTTL(cfg.CategoriesCacheTTL),
		DefaultCategories: cfg.DefaultCategories,
		Logger:            logger,
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without change events", log.FieldError, err)
		} else {
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, log.FieldOrigin, client.Origin())
			rt.Changes = client
			opts.Publisher = client
		}
	}

	rt.Store = services.NewRecordStore(res.Medium, opts)
	applied, err := rt.Store.Init(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("initialize record store: %w", err)
	}
	rt.Applied = applied
	return rt, nil
}

// storeTTL maps a configured TTL onto store options, where zero selects the
// default and a negative value disables caching.
func storeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return -1
	}
	return d
}

// Close releases the medium and the AMQP connection.
func (r *Runtime) Close() error {
	var errs []error
	if r.Changes != nil {
		errs = append(errs, r.Changes.Close())
	}
	errs = append(errs, r.backend.Close())
	return errors.Join(errs...)
}

// ShutdownContext returns a context cancelled on SIGINT or SIGTERM.
func ShutdownContext(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
