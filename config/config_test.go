package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationFlexible(t *testing.T) {
	def := 7 * time.Second
	tests := []struct {
		name    string
		raw     any
		want    time.Duration
		wantErr bool
	}{
		{"duration string", "90s", 90 * time.Second, false},
		{"minutes", "2m", 2 * time.Minute, false},
		{"plain seconds string", "120", 120 * time.Second, false},
		{"int seconds", 30, 30 * time.Second, false},
		{"int64 seconds", int64(45), 45 * time.Second, false},
		{"float seconds", 1.5, 1500 * time.Millisecond, false},
		{"time.Duration", 3 * time.Minute, 3 * time.Minute, false},
		{"empty string", "  ", def, false},
		{"nil", nil, def, false},
		{"garbage", "soon", def, true},
		{"zero", "0s", def, true},
		{"negative int", -5, def, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDurationFlexible(tt.raw, def)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_Precedence(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONCLAVETEST_HTTP_PORT", "9090")
	t.Setenv("CONCLAVETEST_LOG_LEVEL", "warn")
	t.Setenv("CONCLAVETEST_DISCORD_GUILD_ID", "1234")
	t.Setenv("CONCLAVETEST_ROLE_ADMIN_IDS", `["10","11"]`)
	t.Setenv("CONCLAVETEST_READ_TIMEOUT", "30")

	keys := []AppKey{
		{Name: "discord_guild_id", Default: "", Desc: "guild"},
		{Name: "discord_auto_invite", Default: true, Desc: "invite"},
		{Name: "role_admin_ids", Default: []string{}, Desc: "admins"},
		{Name: "stats_cache_ttl", Default: "5m", Desc: "ttl"},
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	core, app, err := load(nil, fs, []string{"--log_level=error"}, "CONCLAVETEST", keys)
	require.NoError(t, err)

	assert.Equal(t, 9090, core.HTTP.HTTPPort, "env overrides default")
	assert.Equal(t, "error", core.LogLevel, "flag overrides env")
	assert.Equal(t, "dev", core.Env)
	assert.Equal(t, 30*time.Second, core.HTTP.ReadTimeout)
	assert.Equal(t, 10*time.Second, core.DBConnectTimeout)

	assert.Equal(t, "1234", app.String("discord_guild_id"))
	assert.True(t, app.Bool("discord_auto_invite"))
	assert.Equal(t, []string{"10", "11"}, app.StringSlice("role_admin_ids"))
	assert.Equal(t, 5*time.Minute, app.Duration("stats_cache_ttl", time.Minute))
}

func TestLoad_RejectsBadCoreConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, _, err := load(nil, fs, []string{"--use_https=true"}, "CONCLAVEBAD", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert_file and key_file")
}

func TestRegisterAppFlags_Conflict(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	registerCoreFlags(fs)
	err := registerAppFlags(fs, []AppKey{{Name: "env", Default: "x"}})
	assert.Error(t, err)
}

func TestAppConfigValues_Accessors(t *testing.T) {
	vals := AppConfigValues{
		"s":     "  padded ",
		"i64":   int64(42),
		"bstr":  "yes",
		"csv":   "a, b,,c",
		"bad":   "[not json",
		"dur":   "bogus",
		"slice": []any{"x", 2},
	}
	assert.Equal(t, "padded", vals.String("s"))
	assert.Equal(t, 42, vals.Int("i64"))
	assert.True(t, vals.Bool("bstr"))
	assert.False(t, vals.Bool("missing"))
	assert.Equal(t, []string{"a", "b", "c"}, vals.StringSlice("csv"))
	assert.Nil(t, vals.StringSlice("bad"))
	assert.Equal(t, []string{"x", "2"}, vals.StringSlice("slice"))
	assert.Equal(t, time.Hour, vals.Duration("dur", time.Hour))
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, isSecretKey("discord_client_secret"))
	assert.True(t, isSecretKey("session_secret"))
	assert.True(t, isSecretKey("webhook_contact_url"))
	assert.True(t, isSecretKey("database_url"))
	assert.False(t, isSecretKey("discord_guild_id"))
}
