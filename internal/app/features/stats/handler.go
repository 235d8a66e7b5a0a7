// Package stats serves the cached public guild summary at /api/stats.
package stats

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/discord"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/metrics"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/pantry/cache"
)

// Fetcher reads live guild stats.
type Fetcher interface {
	FetchGuildStats(ctx context.Context) (discord.GuildStats, error)
}

const (
	freshKey    = "stats:guild"
	lastGoodKey = "stats:guild:last-good"
	fetchBudget = 8 * time.Second
)

type snapshot struct {
	Stats     discord.GuildStats `json:"stats"`
	FetchedAt time.Time          `json:"fetchedAt"`
}

// Handler serves GET /api/stats. A nil fetcher answers 503.
type Handler struct {
	fetcher Fetcher
	cache   cache.Cache
	ttl     time.Duration
	logger  *zap.Logger
	group   singleflight.Group
	now     func() time.Time
}

func New(f Fetcher, c cache.Cache, ttl time.Duration, logger *zap.Logger) *Handler {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{fetcher: f, cache: c, ttl: ttl, logger: logger, now: time.Now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.fetcher == nil {
		httputil.JSONError(w, http.StatusServiceUnavailable, "service_not_configured", "guild stats are not configured")
		return
	}
	ctx := r.Context()

	if snap, err := cache.GetJSON[snapshot](ctx, h.cache, freshKey); err == nil {
		h.write(w, snap, true, false)
		return
	} else if !errors.Is(err, cache.ErrNotFound) {
		h.logger.Warn("stats cache read failed", zap.Error(err))
	}

	// Concurrent misses share one upstream fetch.
	v, err, _ := h.group.Do(freshKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchBudget)
		defer cancel()
		st, err := h.fetcher.FetchGuildStats(fctx)
		if err != nil {
			return nil, err
		}
		snap := snapshot{Stats: st, FetchedAt: h.now().UTC()}
		if err := cache.SetJSON(fctx, h.cache, freshKey, snap, h.ttl); err != nil {
			h.logger.Warn("stats cache write failed", zap.Error(err))
		}
		if err := cache.SetJSON(fctx, h.cache, lastGoodKey, snap, 0); err != nil {
			h.logger.Warn("stats cache write failed", zap.Error(err))
		}
		return snap, nil
	})
	if err == nil {
		h.write(w, v.(snapshot), false, false)
		return
	}

	h.logger.Warn("guild stats fetch failed", zap.Error(err))
	if snap, cerr := cache.GetJSON[snapshot](ctx, h.cache, lastGoodKey); cerr == nil {
		metrics.StatsFallback()
		h.write(w, snap, true, true)
		return
	}
	httputil.JSONError(w, http.StatusBadGateway, "upstream_error", "guild stats are unavailable")
}

func (h *Handler) write(w http.ResponseWriter, snap snapshot, cached, stale bool) {
	w.Header().Set("Cache-Control", "public, max-age=60")
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"stats":     snap.Stats,
		"fetchedAt": snap.FetchedAt,
		"cached":    cached,
		"stale":     stale,
	})
}
