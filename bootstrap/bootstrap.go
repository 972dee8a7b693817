// Package bootstrap wires all dependencies into a runnable application:
// logger, configuration store, compiled schema registry and services.
package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/volplane/volplane/adapters/clock"
	"github.com/volplane/volplane/adapters/idgen"
	"github.com/volplane/volplane/adapters/memory"
	"github.com/volplane/volplane/adapters/metrics"
	"github.com/volplane/volplane/adapters/sqlite"
	"github.com/volplane/volplane/app"
	"github.com/volplane/volplane/config"
	"github.com/volplane/volplane/domain/schema"
	"github.com/volplane/volplane/ports"
)

// App holds the wired application.
type App struct {
	Logger        zerolog.Logger
	Config        *config.Config
	Registry      *schema.Registry
	Metrics       *metrics.Collector
	Validation    *app.ValidationService
	Configuration *app.ConfigurationService

	db *sqlite.DB
}

// New wires the application from configuration. Registry defects fail
// here, before any request is accepted.
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	registry, err := schema.NewCluster()
	if err != nil {
		return nil, fmt.Errorf("compile schema registry: %w", err)
	}

	var store ports.ConfigStore
	var db *sqlite.DB
	switch cfg.Database.Driver {
	case "sqlite":
		db, err = sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		store = sqlite.NewConfigStore(db)
	case "memory":
		store = memory.NewConfigStore()
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}

	collector := metrics.New()
	clk := clock.Real{}
	validation := app.NewValidationService(registry, idgen.UUID{}, clk, collector, logger)
	configuration := app.NewConfigurationService(validation, store, clk, collector, logger, cfg.Commit.MaxRetries)

	logger.Info().
		Str("driver", cfg.Database.Driver).
		Msg("volplane ready")

	return &App{
		Logger:        logger,
		Config:        cfg,
		Registry:      registry,
		Metrics:       collector,
		Validation:    validation,
		Configuration: configuration,
		db:            db,
	}, nil
}

// Close releases held resources.
func (a *App) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
