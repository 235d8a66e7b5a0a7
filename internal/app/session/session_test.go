package session

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

type fakeUsers struct {
	getUser func(ctx context.Context, id string) (models.User, error)
}

func (f fakeUsers) GetUser(ctx context.Context, id string) (models.User, error) {
	return f.getUser(ctx, id)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newManager(t *testing.T, users UserGetter) (*Manager, *clock) {
	t.Helper()
	c := &clock{t: time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)}
	m, err := NewManager(Options{
		Secret:   []byte("test-session-secret"),
		Resolver: policy.NewResolver(policy.Roles{Admin: []string{"adm"}, Moderator: []string{"mod"}}),
		Users:    users,
	})
	require.NoError(t, err)
	return m.WithClock(c.now), c
}

func sampleIdentity() Identity {
	return Identity{
		UserID:         "6f1c1f5e-8f7a-4c57-9a77-1b1f1d1a1e10",
		DiscordID:      "80351110224678912",
		Username:       "nelly",
		Email:          "nelly@example.com",
		IsServerMember: true,
		Roles:          []string{"mod", "999"},
	}
}

func TestIssueDecode_RoundTrip(t *testing.T) {
	m, c := newManager(t, nil)

	token, issued, err := m.Issue(sampleIdentity())
	require.NoError(t, err)
	assert.Equal(t, c.t, issued.IssuedAt)
	assert.Equal(t, c.t.Add(Lifetime), issued.ExpiresAt)

	got, reason := m.Decode(token)
	require.Empty(t, reason)
	assert.Equal(t, issued, got)
}

func TestDecode_ExpiredRegardlessOfFields(t *testing.T) {
	m, c := newManager(t, nil)

	for _, id := range []Identity{sampleIdentity(), {UserID: "", DiscordID: ""}} {
		token, _, err := m.Issue(id)
		require.NoError(t, err)

		saved := c.t
		c.t = c.t.Add(Lifetime)
		_, reason := m.Decode(token)
		assert.Equal(t, ReasonExpired, reason)
		c.t = saved
	}
}

func TestDecode_ExpiresExactlyAtExp(t *testing.T) {
	m, c := newManager(t, nil)
	token, issued, err := m.Issue(sampleIdentity())
	require.NoError(t, err)

	c.t = issued.ExpiresAt.Add(-time.Second)
	_, reason := m.Decode(token)
	assert.Empty(t, reason)

	c.t = issued.ExpiresAt
	_, reason = m.Decode(token)
	assert.Equal(t, ReasonExpired, reason)
}

func TestDecode_Rejections(t *testing.T) {
	m, _ := newManager(t, nil)
	good, _, err := m.Issue(sampleIdentity())
	require.NoError(t, err)
	parts := strings.Split(good, ".")

	other, _ := newManager(t, nil)
	other.secret = []byte("someone-else")
	forged, _, err := other.Issue(sampleIdentity())
	require.NoError(t, err)

	noIDs, _, err := m.Issue(Identity{Username: "ghost"})
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"userId": "u", "discordId": "d", "exp": time.Now().Add(time.Hour).Unix()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  Reason
	}{
		{"empty", "", ReasonNoToken},
		{"garbage", "not-a-token", ReasonParseError},
		{"truncated", parts[0] + "." + parts[1][:len(parts[1])/2], ReasonParseError},
		{"bad base64", "!!!.###.$$$", ReasonParseError},
		{"json garbage", base64.RawURLEncoding.EncodeToString([]byte("{")) + "." + parts[1] + "." + parts[2], ReasonParseError},
		{"wrong secret", forged, ReasonInvalidFormat},
		{"missing ids", noIDs, ReasonInvalidFormat},
		{"alg none", unsigned, ReasonInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, reason := m.Decode(tt.token)
			assert.Equal(t, tt.want, reason)
		})
	}
}

func TestQuick_ComputesPermissions(t *testing.T) {
	m, _ := newManager(t, nil)
	token, _, err := m.Issue(sampleIdentity())
	require.NoError(t, err)

	res := m.Quick(token)
	require.True(t, res.Valid)
	assert.True(t, res.Permissions.IsModerator)
	assert.False(t, res.Permissions.IsAdmin)
	assert.Equal(t, policy.LevelModerator, res.Level)
}

func TestFull(t *testing.T) {
	var stored models.User
	var lookupErr error
	users := fakeUsers{getUser: func(ctx context.Context, id string) (models.User, error) {
		return stored, lookupErr
	}}
	m, c := newManager(t, users)
	token, _, err := m.Issue(sampleIdentity())
	require.NoError(t, err)

	stored = models.User{ID: sampleIdentity().UserID, Roles: []string{"adm"}, IsServerMember: true, TokenExpiresAt: c.t.Add(-time.Minute)}
	res := m.Full(context.Background(), token)
	require.True(t, res.Valid)
	assert.True(t, res.Permissions.IsAdmin, "stored roles win over token roles")
	assert.True(t, res.DiscordTokenExpired)
	require.NotNil(t, res.User)

	lookupErr = store.ErrNotFound
	res = m.Full(context.Background(), token)
	assert.False(t, res.Valid)
	assert.Equal(t, ReasonUserNotFound, res.Reason)

	lookupErr = errors.New("db down")
	res = m.Full(context.Background(), token)
	assert.Equal(t, ReasonServerError, res.Reason)
	assert.Error(t, res.Err)

	noStore, _ := newManager(t, nil)
	assert.Equal(t, ReasonServerError, noStore.Full(context.Background(), token).Reason)
}

func TestCookies(t *testing.T) {
	m, _ := newManager(t, nil)
	m.secure = true
	token, id, err := m.Issue(sampleIdentity())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.SetCookie(rec, token, id.ExpiresAt)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, 2592000, c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/", c.Path)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(c)
	assert.Equal(t, token, TokenFromRequest(req))

	rec = httptest.NewRecorder()
	m.ClearCookie(rec)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestRefreshStatus(t *testing.T) {
	m, c := newManager(t, nil)
	_, id, err := m.Issue(sampleIdentity())
	require.NoError(t, err)

	needs, left := m.RefreshStatus(id)
	assert.False(t, needs)
	assert.Equal(t, Lifetime, left)

	c.t = id.ExpiresAt.Add(-6 * 24 * time.Hour)
	needs, _ = m.RefreshStatus(id)
	assert.True(t, needs)
}

func TestRequireMiddleware(t *testing.T) {
	m, _ := newManager(t, nil)
	staffToken, _, _ := m.Issue(sampleIdentity())
	plain := sampleIdentity()
	plain.Roles = nil
	plainToken, _, _ := m.Issue(plain)

	h := m.Require(false, zap.NewNop())(RequirePermission(Staff)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := FromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(res.Identity.Username))
	})))

	do := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil)
		if token != "" {
			req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusForbidden, do(plainToken).Code)
	rec := do(staffToken)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nelly", rec.Body.String())
}
