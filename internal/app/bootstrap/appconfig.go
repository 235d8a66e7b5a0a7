package bootstrap

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/config"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/discord"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

const envPrefix = "CONCLAVE"

// appKeys are the domain settings, read as CONCLAVE_<NAME> from the
// environment or --<name> flags.
var appKeys = []config.AppKey{
	{Name: "site_url", Default: "http://localhost:3000", Desc: "public base URL of the site"},

	{Name: "discord_client_id", Default: "", Desc: "Discord OAuth client id"},
	{Name: "discord_client_secret", Default: "", Desc: "Discord OAuth client secret"},
	{Name: "discord_redirect_uri", Default: "", Desc: "Discord OAuth redirect URI"},
	{Name: "discord_bot_token", Default: "", Desc: "bot token for guild lookups"},
	{Name: "discord_guild_id", Default: "", Desc: "guild (server) id"},
	{Name: "discord_auto_invite", Default: true, Desc: "add signed-in non-members to the guild"},
	{Name: "discord_api_base", Default: discord.DefaultAPIBase, Desc: "Discord API base URL"},

	{Name: "webhook_contact_url", Default: "", Desc: "Discord webhook for contact messages"},
	{Name: "webhook_appeals_url", Default: "", Desc: "Discord webhook for ban appeals"},
	{Name: "webhook_submissions_url", Default: "", Desc: "Discord webhook for content submissions"},
	{Name: "webhook_complaints_url", Default: "", Desc: "Discord webhook for complaints"},

	{Name: "database_url", Default: "", Desc: "Postgres connection string; empty uses memory (dev only)"},
	{Name: "redis_url", Default: "", Desc: "Redis URL for shared rate limits and stats cache"},

	{Name: "session_secret", Default: "", Desc: "HMAC key for session tokens"},
	{Name: "token_encryption_key", Default: "", Desc: "key material for sealing stored OAuth tokens"},
	{Name: "bot_event_secret", Default: "", Desc: "shared secret for bot member events"},
	{Name: "debug_api_key", Default: "", Desc: "enables /debug/pprof for callers presenting this key"},

	{Name: "role_owner_ids", Default: []string{}, Desc: "owner role ids"},
	{Name: "role_board_ids", Default: []string{}, Desc: "board role ids"},
	{Name: "role_head_admin_ids", Default: []string{}, Desc: "head admin role ids"},
	{Name: "role_admin_ids", Default: []string{}, Desc: "admin role ids"},
	{Name: "role_head_mod_ids", Default: []string{}, Desc: "head moderator role ids"},
	{Name: "role_moderator_ids", Default: []string{}, Desc: "moderator role ids"},

	{Name: "stats_cache_ttl", Default: "5m", Desc: "guild stats freshness"},
	{Name: "session_refresh_window", Default: "168h", Desc: "remaining lifetime below which clients should refresh"},
}

// AppConfig is the typed domain configuration.
type AppConfig struct {
	SiteURL string

	Discord    discord.Config
	AutoInvite bool

	Webhooks map[models.Kind]string

	DatabaseURL string
	RedisURL    string

	SessionSecret      string
	TokenEncryptionKey string
	BotEventSecret     string
	DebugAPIKey        string

	Roles policy.Roles

	StatsCacheTTL        time.Duration
	SessionRefreshWindow time.Duration
}

// OAuthConfigured reports whether sign-in can run.
func (c AppConfig) OAuthConfigured() bool {
	return c.Discord.ClientID != "" && c.Discord.ClientSecret != "" && c.Discord.RedirectURL != ""
}

func appConfigFrom(vals config.AppConfigValues) AppConfig {
	return AppConfig{
		SiteURL: strings.TrimRight(vals.String("site_url"), "/"),
		Discord: discord.Config{
			ClientID:     vals.String("discord_client_id"),
			ClientSecret: vals.String("discord_client_secret"),
			RedirectURL:  vals.String("discord_redirect_uri"),
			BotToken:     vals.String("discord_bot_token"),
			GuildID:      vals.String("discord_guild_id"),
			APIBase:      vals.String("discord_api_base"),
		},
		AutoInvite: vals.Bool("discord_auto_invite"),
		Webhooks: map[models.Kind]string{
			models.KindContact:     vals.String("webhook_contact_url"),
			models.KindAppeals:     vals.String("webhook_appeals_url"),
			models.KindSubmissions: vals.String("webhook_submissions_url"),
			models.KindComplaints:  vals.String("webhook_complaints_url"),
		},
		DatabaseURL:        vals.String("database_url"),
		RedisURL:           vals.String("redis_url"),
		SessionSecret:      vals.String("session_secret"),
		TokenEncryptionKey: vals.String("token_encryption_key"),
		BotEventSecret:     vals.String("bot_event_secret"),
		DebugAPIKey:        vals.String("debug_api_key"),
		Roles: policy.Roles{
			Owner:     vals.StringSlice("role_owner_ids"),
			Board:     vals.StringSlice("role_board_ids"),
			HeadAdmin: vals.StringSlice("role_head_admin_ids"),
			Admin:     vals.StringSlice("role_admin_ids"),
			HeadMod:   vals.StringSlice("role_head_mod_ids"),
			Moderator: vals.StringSlice("role_moderator_ids"),
		},
		StatsCacheTTL:        vals.Duration("stats_cache_ttl", 5*time.Minute),
		SessionRefreshWindow: vals.Duration("session_refresh_window", 7*24*time.Hour),
	}
}

// validate enforces what production needs. Dev runs with whatever is set
// and the affected routes answer 503.
func (c AppConfig) validate(prod bool) error {
	if c.SiteURL == "" {
		return errors.New("site_url is required")
	}
	if !prod {
		return nil
	}
	var missing []string
	for _, kv := range []struct{ name, val string }{
		{"session_secret", c.SessionSecret},
		{"token_encryption_key", c.TokenEncryptionKey},
		{"database_url", c.DatabaseURL},
		{"discord_client_id", c.Discord.ClientID},
		{"discord_client_secret", c.Discord.ClientSecret},
		{"discord_redirect_uri", c.Discord.RedirectURL},
	} {
		if kv.val == "" {
			missing = append(missing, kv.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings in prod: %s", strings.Join(missing, ", "))
	}
	if len(c.SessionSecret) < 32 {
		return errors.New("session_secret must be at least 32 characters in prod")
	}
	if !strings.HasPrefix(c.SiteURL, "https://") {
		return errors.New("site_url must be https in prod")
	}
	return nil
}
