package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/discord"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/session"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/store/memstore"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/domain/models"
)

type fakeGuild struct {
	addRole     func(ctx context.Context, userID, roleID string) error
	removeRole  func(ctx context.Context, userID, roleID string) error
	fetchMember func(ctx context.Context, userID string) (discord.Member, bool, error)
}

func (f *fakeGuild) AddRole(ctx context.Context, userID, roleID string) error {
	return f.addRole(ctx, userID, roleID)
}
func (f *fakeGuild) RemoveRole(ctx context.Context, userID, roleID string) error {
	return f.removeRole(ctx, userID, roleID)
}
func (f *fakeGuild) FetchMember(ctx context.Context, userID string) (discord.Member, bool, error) {
	return f.fetchMember(ctx, userID)
}

type env struct {
	router   chi.Router
	store    *memstore.Store
	sessions *session.Manager
}

func newEnv(t *testing.T, guild Guild) env {
	t.Helper()
	st := memstore.New()
	sessions, err := session.NewManager(session.Options{
		Secret:   []byte("admin-test-secret"),
		Resolver: policy.NewResolver(policy.Roles{Admin: []string{"role-admin"}, Moderator: []string{"role-mod"}}),
		Users:    st,
	})
	require.NoError(t, err)

	opts := Options{Store: st, Sessions: sessions}
	if guild != nil {
		opts.Guild = guild
	}
	r := chi.NewRouter()
	r.Route("/api/admin", New(opts).Routes)
	return env{router: r, store: st, sessions: sessions}
}

// login stores a user with roles and returns their session cookie.
func (e env) login(t *testing.T, discordID string, roles ...string) *http.Cookie {
	t.Helper()
	u, err := e.store.UpsertUser(context.Background(), models.User{
		DiscordID: discordID, Username: "user" + discordID, IsServerMember: true, Roles: roles,
	})
	require.NoError(t, err)
	token, _, err := e.sessions.Issue(session.IdentityFromUser(u))
	require.NoError(t, err)
	return &http.Cookie{Name: session.CookieName, Value: token}
}

func (e env) seed(t *testing.T) {
	t.Helper()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"CT-1-AAAAAA", "CT-2-BBBBBB", "CT-3-CCCCCC"} {
		require.NoError(t, e.store.CreateSubmission(context.Background(), models.Submission{
			ID:          id,
			Kind:        models.KindContact,
			Fields:      map[string]string{"name": "Ada", "email": "ada@example.com", "message": "hello there council"},
			Status:      models.StatusPending,
			Delivered:   true,
			SubmittedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func (e env) do(t *testing.T, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAccessControl(t *testing.T) {
	e := newEnv(t, nil)
	member := e.login(t, "1")
	mod := e.login(t, "2", "role-mod")

	tests := []struct {
		name   string
		path   string
		cookie *http.Cookie
		want   int
	}{
		{"anonymous list", "/api/admin/submissions/contact", nil, http.StatusUnauthorized},
		{"member list", "/api/admin/submissions/contact", member, http.StatusForbidden},
		{"moderator list", "/api/admin/submissions/contact", mod, http.StatusOK},
		{"moderator audit", "/api/admin/audit", mod, http.StatusForbidden},
		{"moderator export", "/api/admin/submissions/contact/export", mod, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.do(t, http.MethodGet, tt.path, "", tt.cookie).Code)
		})
	}
}

func TestListAndReview(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	mod := e.login(t, "2", "role-mod")

	rec := e.do(t, http.MethodGet, "/api/admin/submissions/contact?limit=2", "", mod)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Submissions []models.Submission `json:"submissions"`
		Count       int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)
	assert.Equal(t, "CT-3-CCCCCC", list.Submissions[0].ID, "newest first")

	rec = e.do(t, http.MethodPatch, "/api/admin/submissions/contact/CT-1-AAAAAA", `{"status":"approved","note":"<b>ok</b> @everyone"}`, mod)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	subs, err := e.store.ListSubmissions(context.Background(), store.ListFilter{Kind: models.KindContact, Status: models.StatusApproved})
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "user2", subs[0].ReviewedBy)
	assert.Equal(t, "bok/b", subs[0].ReviewNote)

	rec = e.do(t, http.MethodPatch, "/api/admin/submissions/contact/CT-9-ZZZZZZ", `{"status":"approved"}`, mod)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodPatch, "/api/admin/submissions/contact/CT-1-AAAAAA", `{"status":"maybe"}`, mod)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/admin/submissions/contact?status=bogus", "", mod)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportXLSX(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	admin := e.login(t, "3", "role-admin")

	rec := e.do(t, http.MethodGet, "/api/admin/submissions/contact/export", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("contact")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"ID", "Status", "Submitted", "Delivered", "Attempts", "Name", "Email", "Subject", "Message"}, rows[0][:9])
	assert.Equal(t, "CT-3-CCCCCC", rows[1][0])
	assert.Equal(t, "Ada", rows[1][5])
}

func TestExportCSV(t *testing.T) {
	e := newEnv(t, nil)
	e.seed(t)
	admin := e.login(t, "3", "role-admin")

	rec := e.do(t, http.MethodGet, "/api/admin/submissions/contact/export?format=csv", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 4)

	rec = e.do(t, http.MethodGet, "/api/admin/submissions/contact/export?format=pdf", "", admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAudit(t *testing.T) {
	e := newEnv(t, nil)
	require.NoError(t, e.store.AppendAudit(context.Background(), models.AuditEntry{Kind: models.KindContact, Outcome: models.OutcomeSuccess}))
	admin := e.login(t, "3", "role-admin")

	rec := e.do(t, http.MethodGet, "/api/admin/audit?limit=10", "", admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"success"`)
}

func TestChangeRoles(t *testing.T) {
	var calls []string
	live := []string{"1001"}
	guild := &fakeGuild{
		addRole: func(_ context.Context, user, role string) error {
			calls = append(calls, "+"+role)
			live = append(live, role)
			return nil
		},
		removeRole: func(_ context.Context, user, role string) error {
			calls = append(calls, "-"+role)
			out := live[:0]
			for _, r := range live {
				if r != role {
					out = append(out, r)
				}
			}
			live = out
			return nil
		},
		fetchMember: func(context.Context, string) (discord.Member, bool, error) {
			return discord.Member{Roles: append([]string(nil), live...)}, true, nil
		},
	}
	e := newEnv(t, guild)
	admin := e.login(t, "3", "role-admin")
	e.login(t, "77", "1001")

	rec := e.do(t, http.MethodPost, "/api/admin/members/77/roles", `{"add":["1002"],"remove":["1001"]}`, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"+1002", "-1001"}, calls)

	u, err := e.store.GetUserByDiscordID(context.Background(), "77")
	require.NoError(t, err)
	assert.Equal(t, []string{"1002"}, u.Roles)

	rec = e.do(t, http.MethodPost, "/api/admin/members/77/roles", `{"add":[" "]}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChangeRoles_UpstreamFailure(t *testing.T) {
	guild := &fakeGuild{
		addRole: func(context.Context, string, string) error {
			return &discord.APIError{Op: "add role", Status: http.StatusForbidden}
		},
		removeRole:  func(context.Context, string, string) error { return errors.New("unreachable") },
		fetchMember: func(context.Context, string) (discord.Member, bool, error) { return discord.Member{}, false, nil },
	}
	e := newEnv(t, guild)
	admin := e.login(t, "3", "role-admin")

	rec := e.do(t, http.MethodPost, "/api/admin/members/77/roles", `{"add":["1002"]}`, admin)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestChangeRoles_NoBot(t *testing.T) {
	e := newEnv(t, nil)
	admin := e.login(t, "3", "role-admin")
	rec := e.do(t, http.MethodPost, "/api/admin/members/77/roles", `{"add":["1002"]}`, admin)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestChangeRoles_RejectsNonSnowflakeIDs(t *testing.T) {
	var calls int
	guild := &fakeGuild{
		addRole:     func(context.Context, string, string) error { calls++; return nil },
		removeRole:  func(context.Context, string, string) error { calls++; return nil },
		fetchMember: func(context.Context, string) (discord.Member, bool, error) { calls++; return discord.Member{}, true, nil },
	}
	e := newEnv(t, guild)
	admin := e.login(t, "3", "role-admin")

	rec := e.do(t, http.MethodPost, "/api/admin/members/77/roles", `{"add":["role-b"]}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be a numeric Discord id")

	rec = e.do(t, http.MethodPost, "/api/admin/members/abc/roles", `{"remove":["1001"]}`, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "discordId")
	assert.Zero(t, calls)
}
