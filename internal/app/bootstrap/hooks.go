// Package bootstrap wires configuration, backends and routes for the
// conclave service.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/app"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store/memstore"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store/pgstore"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/crypto"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/db/postgres"
	dbredis "github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/db/redis"
)

// tokenSealingInfo scopes the HKDF-derived key to stored OAuth tokens.
const tokenSealingInfo = "discord-oauth-tokens"

// Hooks is what cmd/conclave hands to app.Run.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:         "conclave",
	LoadConfig:   LoadConfig,
	ConnectDB:    ConnectDB,
	EnsureSchema: EnsureSchema,
	BuildHandler: BuildHandler,
	Shutdown:     Shutdown,
}

// LoadConfig reads core and domain settings from CONCLAVE_* variables,
// config files and flags.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, vals, err := config.Load(logger, envPrefix, appKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}
	appCfg := appConfigFrom(vals)
	if err := appCfg.validate(coreCfg.IsProd()); err != nil {
		return nil, AppConfig{}, err
	}

	if appCfg.SessionSecret == "" {
		secret, err := crypto.RandomBase64URL(32)
		if err != nil {
			return nil, AppConfig{}, fmt.Errorf("generate session secret: %w", err)
		}
		appCfg.SessionSecret = secret
		logger.Warn("session_secret not set; using a random one, sessions will not survive a restart")
	}
	if !appCfg.OAuthConfigured() {
		logger.Warn("discord oauth is not configured; sign-in answers 503")
	}
	for kind, url := range appCfg.Webhooks {
		if url == "" {
			logger.Warn("webhook not configured", zap.String("kind", string(kind)))
		}
	}
	return coreCfg, appCfg, nil
}

// ConnectDB opens Postgres (or the in-memory store when database_url is
// empty) and Redis when redis_url is set.
func ConnectDB(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (DBDeps, error) {
	var deps DBDeps

	if appCfg.DatabaseURL == "" {
		logger.Warn("database_url not set; using the in-memory store")
		deps.Store = memstore.New()
	} else {
		pool, err := postgres.ConnectPool(appCfg.DatabaseURL, coreCfg.DBConnectTimeout)
		if err != nil {
			return DBDeps{}, fmt.Errorf("connect postgres: %w", err)
		}
		deps.Pool = pool
		deps.PG = pgstore.New(pool)
		deps.Store = deps.PG
		logger.Info("connected to postgres")
	}

	if appCfg.RedisURL != "" {
		client, err := dbredis.ConnectURL(appCfg.RedisURL, coreCfg.DBConnectTimeout)
		if err != nil {
			deps.Close()
			return DBDeps{}, fmt.Errorf("connect redis: %w", err)
		}
		deps.Redis = client
		logger.Info("connected to redis")
	}

	if appCfg.TokenEncryptionKey != "" {
		enc, err := crypto.NewEncryptorFromSecret(appCfg.TokenEncryptionKey, tokenSealingInfo)
		if err != nil {
			deps.Close()
			return DBDeps{}, fmt.Errorf("token encryption: %w", err)
		}
		deps.Store = store.WithTokenSealing(deps.Store, enc)
	} else {
		logger.Warn("token_encryption_key not set; oauth tokens are stored in plaintext")
	}
	return deps, nil
}

// EnsureSchema creates the Postgres tables and indexes. The memory store
// needs nothing.
func EnsureSchema(ctx context.Context, _ *config.CoreConfig, _ AppConfig, deps DBDeps, logger *zap.Logger) error {
	if deps.PG == nil {
		return nil
	}
	if err := deps.PG.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("schema ready")
	return nil
}

// Shutdown closes the backends after the server stops.
func Shutdown(_ context.Context, deps DBDeps, logger *zap.Logger) error {
	deps.Close()
	logger.Info("backends closed")
	return nil
}
