package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

func TestAppConfigFrom(t *testing.T) {
	vals := config.AppConfigValues{
		"site_url":              "https://conclave.example/",
		"discord_client_id":     "cid",
		"discord_client_secret": "csecret",
		"discord_redirect_uri":  "https://conclave.example/api/auth/discord/callback",
		"discord_auto_invite":   "false",
		"webhook_appeals_url":   "https://discord.com/api/webhooks/1/a",
		"role_admin_ids":        "111, 222",
		"stats_cache_ttl":       "90s",
	}
	cfg := appConfigFrom(vals)

	assert.Equal(t, "https://conclave.example", cfg.SiteURL)
	assert.True(t, cfg.OAuthConfigured())
	assert.False(t, cfg.AutoInvite)
	assert.Equal(t, "https://discord.com/api/webhooks/1/a", cfg.Webhooks[models.KindAppeals])
	assert.Empty(t, cfg.Webhooks[models.KindContact])
	assert.Equal(t, []string{"111", "222"}, cfg.Roles.Admin)
	assert.Equal(t, 90*time.Second, cfg.StatsCacheTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionRefreshWindow)
}

func prodConfig() AppConfig {
	cfg := appConfigFrom(config.AppConfigValues{
		"site_url":              "https://conclave.example",
		"discord_client_id":     "cid",
		"discord_client_secret": "csecret",
		"discord_redirect_uri":  "https://conclave.example/api/auth/discord/callback",
	})
	cfg.SessionSecret = strings.Repeat("s", 32)
	cfg.TokenEncryptionKey = "token-key"
	cfg.DatabaseURL = "postgres://conclave@localhost/conclave"
	return cfg
}

func TestValidate(t *testing.T) {
	require.NoError(t, prodConfig().validate(true))
	require.NoError(t, AppConfig{SiteURL: "http://localhost:3000"}.validate(false))

	cases := map[string]func(*AppConfig){
		"missing secret":   func(c *AppConfig) { c.SessionSecret = "" },
		"short secret":     func(c *AppConfig) { c.SessionSecret = "short" },
		"missing database": func(c *AppConfig) { c.DatabaseURL = "" },
		"missing oauth":    func(c *AppConfig) { c.Discord.ClientSecret = "" },
		"plain http":       func(c *AppConfig) { c.SiteURL = "http://conclave.example" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := prodConfig()
			mutate(&cfg)
			assert.Error(t, cfg.validate(true))
		})
	}
}

func TestConnectDB_MemoryWithSealing(t *testing.T) {
	core := &config.CoreConfig{DBConnectTimeout: time.Second}
	deps, err := ConnectDB(context.Background(), core, AppConfig{TokenEncryptionKey: "k"}, zap.NewNop())
	require.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.Pool)
	assert.Nil(t, deps.Redis)
	_, sealed := deps.Store.(*store.Sealed)
	assert.True(t, sealed)
	require.NoError(t, EnsureSchema(context.Background(), core, AppConfig{}, deps, zap.NewNop()))
}

func newTestHandler(t *testing.T, appCfg AppConfig) http.Handler {
	t.Helper()
	core := &config.CoreConfig{ServiceName: "conclave", MaxRequestBodyBytes: 1 << 20, DBConnectTimeout: time.Second}
	deps, err := ConnectDB(context.Background(), core, appCfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	h, err := BuildHandler(core, appCfg, deps, zap.NewNop())
	require.NoError(t, err)
	return h
}

func TestBuildHandler_DevWithoutDiscord(t *testing.T) {
	h := newTestHandler(t, AppConfig{
		SiteURL:       "http://localhost:3000",
		SessionSecret: strings.Repeat("x", 32),
		Webhooks:      map[models.Kind]string{},
	})

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/version", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/auth/discord/login", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/auth/validate", http.StatusUnauthorized},
		{http.MethodGet, "/api/auth/me", http.StatusUnauthorized},
		{http.MethodGet, "/api/webhooks/contact", http.StatusOK},
		{http.MethodGet, "/api/stats", http.StatusServiceUnavailable},
		{http.MethodGet, "/api/admin/audit", http.StatusUnauthorized},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestBuildHandler_EventsNeedSecret(t *testing.T) {
	h := newTestHandler(t, AppConfig{
		SiteURL:        "http://localhost:3000",
		SessionSecret:  strings.Repeat("x", 32),
		BotEventSecret: "bot-secret",
	})

	body := `{"userId":"42","roles":[]}`
	req := httptest.NewRequest(http.MethodPost, "/api/discord/events/member-join", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/discord/events/member-join", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer bot-secret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tracked":false`)
}

func TestBuildHandler_PprofNeedsKey(t *testing.T) {
	base := AppConfig{SiteURL: "http://localhost:3000", SessionSecret: strings.Repeat("x", 32)}

	rec := httptest.NewRecorder()
	newTestHandler(t, base).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	withKey := base
	withKey.DebugAPIKey = "debug-key"
	h := newTestHandler(t, withKey)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil)
	req.Header.Set("X-API-Key", "debug-key")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
