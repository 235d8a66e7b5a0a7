package discord

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, r http.Handler, bot bool) *Client {
	t.Helper()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cfg := Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		RedirectURL:  "https://conclave.example/api/auth/discord/callback",
		APIBase:      srv.URL,
		HTTPClient:   srv.Client(),
	}
	if bot {
		cfg.BotToken, cfg.GuildID = "bot-token", "g1"
	}
	c, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RequiresOAuthCredentials(t *testing.T) {
	_, err := New(Config{ClientID: "x"}, nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAuthCodeURL(t *testing.T) {
	c := newTestClient(t, chi.NewRouter(), false)
	u, err := url.Parse(c.AuthCodeURL("st4te"))
	require.NoError(t, err)
	q := u.Query()
	assert.True(t, strings.HasSuffix(u.Path, "/oauth2/authorize"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "identify email guilds.join", q.Get("scope"))
	assert.Equal(t, "code", q.Get("response_type"))
}

func TestExchange(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "at", "refresh_token": "rt", "token_type": "Bearer", "expires_in": 604800,
		})
	})
	c := newTestClient(t, r, false)

	tok, err := c.Exchange(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "at", tok.AccessToken)
	assert.Equal(t, "rt", tok.RefreshToken)

	_, err = c.Exchange(context.Background(), "bad")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Body, "invalid_grant")
	assert.Contains(t, err.Error(), "token exchange failed")

	_, err = c.Exchange(context.Background(), "")
	assert.Error(t, err)
}

func TestRefresh(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-rt", r.PostForm.Get("refresh_token"))
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": "new-at", "refresh_token": "new-rt", "token_type": "Bearer", "expires_in": 3600,
		})
	})
	c := newTestClient(t, r, false)

	tok, err := c.Refresh(context.Background(), "old-rt")
	require.NoError(t, err)
	assert.Equal(t, "new-at", tok.AccessToken)
	assert.Equal(t, "new-rt", tok.RefreshToken)
}

func TestFetchUserAndMember(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/users/@me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, User{ID: "42", Username: "ann", Avatar: "a_abc", Email: "a@b.com"})
	})
	r.Get("/guilds/g1/members/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bot bot-token", r.Header.Get("Authorization"))
		switch chi.URLParam(r, "id") {
		case "42":
			writeJSON(w, http.StatusOK, Member{Roles: []string{"r1"}, JoinedAt: "2025-01-01T00:00:00Z"})
		case "500":
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "oops"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Unknown Member", "code": 10007})
		}
	})
	c := newTestClient(t, r, true)
	ctx := context.Background()

	u, err := c.FetchUser(ctx, "at")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/42/a_abc.gif", u.AvatarURL())

	m, ok, err := c.FetchMember(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"r1"}, m.Roles)

	_, ok, err = c.FetchMember(ctx, "7")
	require.NoError(t, err, "404 is not an error")
	assert.False(t, ok)

	_, _, err = c.FetchMember(ctx, "500")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestAddMember(t *testing.T) {
	var body map[string]string
	r := chi.NewRouter()
	r.Put("/guilds/g1/members/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if chi.URLParam(r, "id") == "43" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusCreated, Member{Roles: []string{}})
	})
	c := newTestClient(t, r, true)

	require.NoError(t, c.AddMember(context.Background(), "42", "at"))
	assert.Equal(t, "at", body["access_token"])
	require.NoError(t, c.AddMember(context.Background(), "43", "at"))
}

func TestBotCallsRequireConfig(t *testing.T) {
	c := newTestClient(t, chi.NewRouter(), false)
	ctx := context.Background()
	_, _, err := c.FetchMember(ctx, "1")
	assert.ErrorIs(t, err, ErrBotNotConfigured)
	assert.ErrorIs(t, c.AddMember(ctx, "1", "t"), ErrBotNotConfigured)
	assert.ErrorIs(t, c.AddRole(ctx, "1", "r"), ErrBotNotConfigured)
	_, err = c.FetchGuildStats(ctx)
	assert.ErrorIs(t, err, ErrBotNotConfigured)
}

func TestRoles(t *testing.T) {
	var calls []string
	r := chi.NewRouter()
	r.Put("/guilds/g1/members/{id}/roles/{role}", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "add:"+chi.URLParam(r, "role"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Delete("/guilds/g1/members/{id}/roles/{role}", func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "remove:"+chi.URLParam(r, "role"))
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r, true)
	require.NoError(t, c.AddRole(context.Background(), "42", "901"))
	require.NoError(t, c.RemoveRole(context.Background(), "42", "902"))
	assert.Equal(t, []string{"add:901", "remove:902"}, calls)
}

func TestFetchGuildStats(t *testing.T) {
	var fail atomic.Bool
	r := chi.NewRouter()
	r.Get("/guilds/g1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("with_counts"))
		writeJSON(w, http.StatusOK, guild{ID: "g1", Name: "Conclave", Icon: "ic", ApproximateMemberCount: 120, ApproximatePresenceCount: 30})
	})
	r.Get("/guilds/g1/channels", func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			writeJSON(w, http.StatusBadGateway, map[string]string{"message": "bad gateway"})
			return
		}
		writeJSON(w, http.StatusOK, []channel{{ID: "1", Type: 0}, {ID: "2", Type: 2}, {ID: "3", Type: 4}, {ID: "4", Type: 5}})
	})
	r.Get("/guilds/g1/roles", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []role{{ID: "a"}, {ID: "b"}})
	})
	c := newTestClient(t, r, true)

	st, err := c.FetchGuildStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GuildStats{
		Name: "Conclave", IconURL: "https://cdn.discordapp.com/icons/g1/ic.png",
		MemberCount: 120, OnlineCount: 30, ChannelCount: 4, TextChannels: 2, VoiceChannels: 1, RoleCount: 2,
	}, st)

	fail.Store(true)
	_, err = c.FetchGuildStats(context.Background())
	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestValidSnowflake(t *testing.T) {
	assert.True(t, ValidSnowflake("123456789012345678"))
	assert.True(t, ValidSnowflake("7"))
	assert.False(t, ValidSnowflake(""))
	assert.False(t, ValidSnowflake("../channels/1"))
	assert.False(t, ValidSnowflake("12a"))
	assert.False(t, ValidSnowflake("123456789012345678901"))
}

func TestBotCallsRejectBadIDs(t *testing.T) {
	var hits atomic.Int32
	r := chi.NewRouter()
	r.HandleFunc("/*", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, r, true)
	ctx := context.Background()

	_, _, err := c.FetchMember(ctx, "../../channels/1")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.ErrorIs(t, c.AddMember(ctx, "x", "at"), ErrInvalidID)
	assert.ErrorIs(t, c.AddRole(ctx, "42", "role-a"), ErrInvalidID)
	assert.ErrorIs(t, c.RemoveRole(ctx, "4 2", "901"), ErrInvalidID)
	assert.Zero(t, hits.Load())
}
