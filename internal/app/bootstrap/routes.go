package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/auth/apikey"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/discord"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/features/admin"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/features/auth"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/features/events"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/features/stats"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/features/webhooks"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/relay"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/session"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/metrics"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/cache"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/db/postgres"
	dbredis "github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/db/redis"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/health"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/pprof"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/ratelimit"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/retry"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/version"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/router"
)

const redisPrefix = "conclave:"

// BuildHandler assembles the router: core middleware, probes and the
// /api feature groups.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	resolver := policy.NewResolver(appCfg.Roles)
	sessions, err := session.NewManager(session.Options{
		Secret:        []byte(appCfg.SessionSecret),
		Secure:        coreCfg.IsProd(),
		Resolver:      resolver,
		Users:         deps.Store,
		RefreshWindow: appCfg.SessionRefreshWindow,
	})
	if err != nil {
		return nil, err
	}

	dc, err := discordClient(appCfg, logger)
	if err != nil {
		return nil, err
	}

	r := router.New(coreCfg, logger)

	health.Mount(r, coreCfg.ServiceName, healthChecks(deps), logger)
	version.Mount(r, coreCfg.ServiceName)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	if appCfg.DebugAPIKey != "" {
		pprof.Mount(r, apikey.Require(appCfg.DebugAPIKey, "conclave-debug", logger))
	}

	authOpts := auth.Options{
		Users:         deps.Store,
		Sessions:      sessions,
		AutoInvite:    appCfg.AutoInvite,
		SiteURL:       appCfg.SiteURL,
		SecureCookies: coreCfg.IsProd(),
		Logger:        logger.Named("auth"),
	}
	adminOpts := admin.Options{
		Store:    deps.Store,
		Sessions: sessions,
		Logger:   logger.Named("admin"),
	}
	// Interfaces stay nil when the client is absent so the handlers see
	// "not configured".
	var fetcher stats.Fetcher
	if dc != nil {
		authOpts.Discord = dc
		if dc.BotConfigured() {
			adminOpts.Guild = dc
			fetcher = dc
		}
	}

	rel := relay.New(relay.Options{
		URLs:     appCfg.Webhooks,
		Sender:   relay.NewSender(nil, retry.Policy{}, logger.Named("relay")),
		Store:    deps.Store,
		Limiters: limiters(deps),
		Logger:   logger.Named("relay"),
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", auth.New(authOpts).Routes)
		api.Route("/webhooks", webhooks.New(rel, logger.Named("webhooks")).Routes)
		api.Route("/discord/events", events.New(deps.Store, appCfg.BotEventSecret, logger.Named("events")).Routes)
		api.Route("/admin", admin.New(adminOpts).Routes)
		api.Method(http.MethodGet, "/stats", stats.New(fetcher, statsCache(deps), appCfg.StatsCacheTTL, logger.Named("stats")))
	})

	logger.Info("routes mounted",
		zap.Bool("oauth", dc != nil),
		zap.Bool("bot", dc != nil && dc.BotConfigured()),
		zap.Bool("redis", deps.Redis != nil),
		zap.Bool("postgres", deps.PG != nil),
	)
	return router.Instrument(r, coreCfg.ServiceName), nil
}

// discordClient returns nil without error when OAuth is not configured.
func discordClient(appCfg AppConfig, logger *zap.Logger) (*discord.Client, error) {
	if !appCfg.OAuthConfigured() {
		return nil, nil
	}
	dc, err := discord.New(appCfg.Discord, logger.Named("discord"))
	if err != nil {
		return nil, fmt.Errorf("discord client: %w", err)
	}
	return dc, nil
}

func healthChecks(deps DBDeps) map[string]health.Check {
	checks := map[string]health.Check{}
	if deps.Pool != nil {
		checks["postgres"] = postgres.HealthCheck(deps.Pool)
	} else {
		checks["store"] = deps.Store.Ping
	}
	if deps.Redis != nil {
		checks["redis"] = dbredis.HealthCheck(deps.Redis)
	}
	return checks
}

// limiters share windows across instances through Redis. Without Redis the
// relay falls back to per-process memory limiters.
func limiters(deps DBDeps) map[models.Kind]ratelimit.Limiter {
	if deps.Redis == nil {
		return nil
	}
	out := make(map[models.Kind]ratelimit.Limiter, len(relay.Forms))
	for kind, form := range relay.Forms {
		out[kind] = ratelimit.NewRedis(deps.Redis, form.Rule, redisPrefix+"rl:"+string(kind)+":")
	}
	return out
}

func statsCache(deps DBDeps) cache.Cache {
	if deps.Redis != nil {
		return cache.NewRedis(deps.Redis, redisPrefix)
	}
	return cache.NewMemory()
}
