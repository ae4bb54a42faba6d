// Package cli holds the start-up steps shared by the findash binaries.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"findash/internal/config"
	"findash/internal/ecos"
	"findash/internal/kis"
	"findash/internal/log"
	"findash/internal/storage"
)

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads the configuration or exits.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Configuration load failed", log.FieldError, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// InitSQLite opens the repository, running migrations, or exits.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// NewECOS builds the ECOS client from cfg.
func NewECOS(cfg *config.Config, logger *log.Logger) *ecos.Client {
	return ecos.NewClient(cfg.ECOSBaseURL, cfg.ECOSAPIKey,
		ecos.WithPageSize(cfg.ECOSPageSize),
		ecos.WithRate(cfg.ECOSRPS),
		ecos.WithLogger(logger.WithComponent(log.ComponentECOS).Logger))
}

// NewKIS builds the KIS client, or returns nil without credentials.
func NewKIS(cfg *config.Config, logger *log.Logger) *kis.Client {
	if !cfg.HasKIS() {
		return nil
	}
	return kis.NewClient(cfg.KISBaseURL, cfg.KISAppKey, cfg.KISAppSecret,
		kis.WithRate(cfg.KISRPS),
		kis.WithLogger(logger.WithComponent(log.ComponentKIS).Logger))
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs before cancellation with at most timeout to finish; done closes after.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		cancel()

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
