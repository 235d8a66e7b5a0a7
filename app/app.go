// Package app runs a service through the standard startup sequence.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/logging"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/metrics"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/version"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/server"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/telemetry"
)

// Hooks are the integration points a service provides. C is its typed
// config, D its bundle of backends.
type Hooks[C any, D any] struct {
	// Name is used for logging only.
	Name string

	// LoadConfig returns the core config and the service config.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// ConnectDB opens backends. It should respect core.DBConnectTimeout.
	ConnectDB func(ctx context.Context, core *config.CoreConfig, appCfg C, logger *zap.Logger) (D, error)

	// EnsureSchema runs once after ConnectDB, bounded by
	// core.SchemaBootTimeout. Optional.
	EnsureSchema func(ctx context.Context, core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) error

	// BuildHandler returns the root handler with all middleware and routes.
	BuildHandler func(core *config.CoreConfig, appCfg C, db D, logger *zap.Logger) (http.Handler, error)

	// Shutdown releases backends after the server has stopped. Optional.
	Shutdown func(ctx context.Context, db D, logger *zap.Logger) error
}

const shutdownBudget = 10 * time.Second

// Run executes the startup sequence:
//
//  1. Bootstrap logger
//  2. Load config (Hooks.LoadConfig)
//  3. Build the final logger and register metrics
//  4. Start tracing
//  5. Connect backends (Hooks.ConnectDB)
//  6. Ensure schema (Hooks.EnsureSchema)
//  7. Build the handler and serve until a shutdown signal
//  8. Release backends (Hooks.Shutdown) and flush traces
func Run[C any, D any](ctx context.Context, hooks Hooks[C, D]) error {
	if hooks.LoadConfig == nil || hooks.ConnectDB == nil || hooks.BuildHandler == nil {
		return errors.New("app: LoadConfig, ConnectDB and BuildHandler are required")
	}

	boot := logging.BootstrapLogger()
	defer func() { _ = boot.Sync() }()

	coreCfg, appCfg, err := hooks.LoadConfig(boot)
	if err != nil {
		boot.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.MustBuildLogger(coreCfg.LogLevel, coreCfg.Env, coreCfg.ServiceName)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("app", hooks.Name),
		zap.String("version", version.String()),
		zap.String("env", coreCfg.Env),
	)

	metrics.RegisterDefault(logger)

	shutdownTracing := telemetry.Setup(ctx, coreCfg.ServiceName, logger)
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("trace flush failed", zap.Error(err))
		}
	}()

	db, err := hooks.ConnectDB(ctx, coreCfg, appCfg, logger)
	if err != nil {
		logger.Error("backend connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}
	if hooks.Shutdown != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
			defer cancel()
			if err := hooks.Shutdown(sctx, db, logger); err != nil {
				logger.Warn("backend shutdown failed", zap.Error(err))
			}
		}()
	}

	if hooks.EnsureSchema != nil {
		schemaCtx, cancel := context.WithTimeout(ctx, coreCfg.SchemaBootTimeout)
		err := hooks.EnsureSchema(schemaCtx, coreCfg, appCfg, db, logger)
		cancel()
		if err != nil {
			logger.Error("schema ensure failed", zap.Error(err))
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	handler, err := hooks.BuildHandler(coreCfg, appCfg, db, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		return fmt.Errorf("build handler: %w", err)
	}

	if err := server.ListenAndServeWithContext(ctx, coreCfg, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
